// Package types holds the push-channel wire contract shared by the server and
// its clients: the frame envelope, event names and the small relay payloads.
package types

import "encoding/json"

// ClientMessage is an inbound frame.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> Server
const (
	EvtJoinSession       = "join-session"
	EvtJoinBattlefield   = "join-battlefield"
	EvtJoinDiceSession   = "join-dice-session"
	EvtUpdateMonster     = "update-monster"
	EvtDeleteMonster     = "delete-monster"
	EvtSessionUpdate     = "session-update"
	EvtReorderMonsters   = "reorder-monsters"
	EvtUpdateDiceState   = "update-dice-state"
	EvtRollDice          = "roll-dice"
	EvtResetDice         = "reset-dice"
	EvtPieceMoved        = "piece-moved"
	EvtBackgroundUpdated = "background-updated"
	EvtSettingsUpdated   = "battlefield-settings-updated"
	EvtStateUpdated      = "battlefield-state-updated"
)

// Server -> Client. Relayed events that keep their inbound name
// (delete-monster, reset-dice, piece-moved, background-updated,
// battlefield-settings-updated, battlefield-state-updated) reuse the
// constants above.
const (
	EvtMonsterUpdated     = "monster-updated"
	EvtSessionUpdated     = "session-updated"
	EvtSessionDeleted     = "session-deleted"
	EvtMonstersReordered  = "monsters-reordered"
	EvtRollHistorySync    = "roll-history-sync"
	EvtDiceStateUpdated   = "dice-state-updated"
	EvtDiceRolled         = "dice-rolled"
	EvtDiceReset          = "dice-reset"
	EvtBattlefieldUpdated = "battlefield-updated"
	EvtPiecesUpdated      = "battlefield-pieces-updated"
	EvtBackgroundDeleted  = "background-deleted"
)
