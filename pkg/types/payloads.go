package types

import "encoding/json"

type MonsterDeleted struct {
	MonsterID string `json:"monsterId"`
}

type MonstersReordered struct {
	Order []string `json:"order"`
}

type PieceMoved struct {
	PieceID string  `json:"pieceId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type BackgroundUpdated struct {
	ImageURL string `json:"imageUrl"`
}

type BattlefieldState struct {
	State json.RawMessage `json:"state"`
}

type SessionDeleted struct {
	SessionID string `json:"sessionId"`
}

type DiceReset struct {
	PlayerName string `json:"playerName,omitempty"`
}

type BackgroundDeleted struct {
	SessionID string `json:"sessionId"`
}
