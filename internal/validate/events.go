package validate

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/pkg/types"
)

const UnknownPlayer = "Unknown player"

// Command is a parsed push-channel event. The concrete types below form a
// closed set; switch on them.
type Command interface {
	Session() string
	isCommand()
}

type Target struct{ SessionID string }

func (t Target) Session() string { return t.SessionID }
func (Target) isCommand()        {}

// JoinRoom covers join-session and join-battlefield.
type JoinRoom struct{ Target }

type JoinDice struct {
	Target
	PlayerName string
}

type UpdateMonster struct {
	Target
	Monster engine.Combatant
}

type DeleteMonster struct {
	Target
	MonsterID string
}

type UpdateSession struct {
	Target
	Roster Roster
}

type ReorderMonsters struct {
	Target
	Order []string
}

type UpdateDiceState struct {
	Target
	PlayerName string
	State      json.RawMessage
}

type RollDice struct {
	Target
	Record engine.RollRecord
}

type ResetDice struct {
	Target
	PlayerName string
}

type MovePiece struct {
	Target
	PieceID string
	X, Y    float64
}

type ChangeBackground struct {
	Target
	ImageURL string
}

type ChangeSettings struct {
	Target
	Settings engine.Settings
}

type ChangeBattlefieldState struct {
	Target
	State engine.Battlefield
}

// EventSession extracts the sessionId an event claims to target, without
// validating anything else. Join events carry it as a bare string.
func EventSession(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	doc := gjson.ParseBytes(data)
	if doc.Type == gjson.String {
		return doc.Str, true
	}
	sid := doc.Get("sessionId")
	if sid.Type != gjson.String {
		return "", false
	}
	return sid.Str, true
}

// ParseEvent parses the payload of a named push event.
func ParseEvent(event string, data []byte) (Command, error) {
	switch event {
	case types.EvtJoinSession, types.EvtJoinBattlefield:
		return parseJoin(data)
	case types.EvtJoinDiceSession:
		return parseJoinDice(data)
	case types.EvtUpdateMonster:
		return parseUpdateMonster(data)
	case types.EvtDeleteMonster:
		return parseDeleteMonster(data)
	case types.EvtSessionUpdate:
		return parseSessionUpdate(data)
	case types.EvtReorderMonsters:
		return parseReorder(data)
	case types.EvtUpdateDiceState:
		return parseDiceState(data)
	case types.EvtRollDice:
		return parseRollDice(data)
	case types.EvtResetDice:
		return parseResetDice(data)
	case types.EvtPieceMoved:
		return parsePieceMoved(data)
	case types.EvtBackgroundUpdated:
		return parseBackground(data)
	case types.EvtSettingsUpdated:
		return parseSettingsChange(data)
	case types.EvtStateUpdated:
		return parseStateChange(data)
	default:
		return nil, fail("event", ReasonEnum, "unknown event %q", event)
	}
}

func parseJoin(data []byte) (Command, error) {
	if !gjson.ValidBytes(data) {
		return nil, fail("", ReasonMalformed, "payload must be valid JSON")
	}
	r := gjson.ParseBytes(data)
	if r.Type != gjson.String {
		return nil, fail("sessionId", ReasonType, "must be a string")
	}
	if err := SessionID(r.Str); err != nil {
		return nil, err
	}
	return JoinRoom{Target{SessionID: r.Str}}, nil
}

// target reads the sessionId every object-shaped event carries.
func target(data []byte) (gjson.Result, Target, error) {
	doc, err := document(data)
	if err != nil {
		return doc, Target{}, err
	}
	sid := doc.Get("sessionId")
	if sid.Type != gjson.String {
		return doc, Target{}, fail("sessionId", ReasonRequired, "is required")
	}
	if err := SessionID(sid.Str); err != nil {
		return doc, Target{}, err
	}
	return doc, Target{SessionID: sid.Str}, nil
}

func playerName(doc gjson.Result) (string, error) {
	name, err := optionalText(doc, "playerName", "playerName", engine.MaxPlayerNameLength)
	if err != nil {
		return "", err
	}
	if name == "" {
		return UnknownPlayer, nil
	}
	return clean(name), nil
}

func parseJoinDice(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	name, err := playerName(doc)
	if err != nil {
		return nil, err
	}
	return JoinDice{Target: t, PlayerName: name}, nil
}

func parseUpdateMonster(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	obj, err := objectField(doc, "monster", "monster")
	if err != nil {
		return nil, err
	}
	m, err := combatant(obj, "monster")
	if err != nil {
		return nil, err
	}
	return UpdateMonster{Target: t, Monster: m}, nil
}

func parseDeleteMonster(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	id, err := text(doc, "monsterId", "monsterId", 0)
	if err != nil {
		return nil, err
	}
	return DeleteMonster{Target: t, MonsterID: id}, nil
}

func parseSessionUpdate(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	obj, err := objectField(doc, "data", "data")
	if err != nil {
		return nil, err
	}
	r, err := roster(obj, "data")
	if err != nil {
		return nil, err
	}
	return UpdateSession{Target: t, Roster: r}, nil
}

func parseReorder(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	order, err := idList(doc, "order", "order")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for i, id := range order {
		if seen[id] {
			return nil, fail(index("order", i), ReasonDuplicate, "combatant id %q listed twice", id)
		}
		seen[id] = true
	}
	return ReorderMonsters{Target: t, Order: order}, nil
}

func parseDiceState(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	state, err := objectField(doc, "diceState", "diceState")
	if err != nil {
		return nil, err
	}
	name, err := playerName(doc)
	if err != nil {
		return nil, err
	}
	return UpdateDiceState{Target: t, PlayerName: name, State: rawCopy(state)}, nil
}

func parseRollDice(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	rd, err := rollData(doc, "rollData")
	if err != nil {
		return nil, err
	}
	// The dice roller puts playerName inside rollData; accept either spot.
	holder := doc
	if !present(doc.Get("playerName")) {
		holder = rd
	}
	name, err := text(holder, "playerName", "playerName", engine.MaxPlayerNameLength)
	if err != nil {
		return nil, err
	}
	return RollDice{Target: t, Record: engine.RollRecord{PlayerName: name, RollData: rawCopy(rd)}}, nil
}

func parseResetDice(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	name, err := playerName(doc)
	if err != nil {
		return nil, err
	}
	return ResetDice{Target: t, PlayerName: name}, nil
}

func parsePieceMoved(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	id, err := text(doc, "pieceId", "pieceId", 0)
	if err != nil {
		return nil, err
	}
	x, y, err := position(doc, "")
	if err != nil {
		return nil, err
	}
	return MovePiece{Target: t, PieceID: id, X: x, Y: y}, nil
}

func parseBackground(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	url, err := text(doc, "imageUrl", "imageUrl", engine.MaxBackgroundLength)
	if err != nil {
		return nil, err
	}
	return ChangeBackground{Target: t, ImageURL: url}, nil
}

func parseSettingsChange(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	obj, err := objectField(doc, "settings", "settings")
	if err != nil {
		return nil, err
	}
	s, err := settingsObject(obj, "settings", true)
	if err != nil {
		return nil, err
	}
	return ChangeSettings{Target: t, Settings: s}, nil
}

func parseStateChange(data []byte) (Command, error) {
	doc, t, err := target(data)
	if err != nil {
		return nil, err
	}
	obj, err := objectField(doc, "state", "state")
	if err != nil {
		return nil, err
	}
	bf, err := battlefield(obj, "state")
	if err != nil {
		return nil, err
	}
	return ChangeBattlefieldState{Target: t, State: bf}, nil
}
