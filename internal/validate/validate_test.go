package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/pkg/types"
)

func requireReason(t *testing.T, err error, field string, reason Reason) {
	t.Helper()
	verr, ok := AsError(err)
	require.True(t, ok, "want *validate.Error, got %v", err)
	assert.Equal(t, field, verr.Field)
	assert.Equal(t, reason, verr.Reason)
}

func TestSessionID(t *testing.T) {
	cases := []struct {
		name string
		id   string
		ok   bool
	}{
		{name: "too short", id: "ab", ok: false},
		{name: "minimum", id: "abc", ok: true},
		{name: "typical", id: "table-7", ok: true},
		{name: "maximum", id: string(make([]byte, 50)), ok: true},
		{name: "too long", id: string(make([]byte, 51)), ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := SessionID(tc.id)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			requireReason(t, err, "sessionId", ReasonLength)
		})
	}
}

func TestParseRosterAcceptsAndClamps(t *testing.T) {
	body := `{
		"monsters": [
			{"id":"m1","name":" Goblin1 ","currentHp":12,"maxHp":7,"initiative":12,"conditions":["poisoned","poisoned"]},
			{"id":"m2","name":"Orc","currentHp":-4,"maxHp":15,"initiative":3,"isAdventurer":true,"tempHp":2}
		],
		"monsterOrder": ["m2","m1"]
	}`

	r, err := ParseRoster([]byte(body))
	require.NoError(t, err)
	require.Len(t, r.Monsters, 2)

	assert.Equal(t, "Goblin1", r.Monsters[0].Name)
	assert.Equal(t, 7, r.Monsters[0].CurrentHP, "currentHp clamps to maxHp")
	assert.Equal(t, []engine.Condition{engine.ConditionPoisoned}, r.Monsters[0].Conditions)
	assert.Equal(t, 0, r.Monsters[1].CurrentHP, "negative currentHp clamps to zero")
	assert.True(t, r.Monsters[1].IsAdventurer)
	assert.Equal(t, 2, r.Monsters[1].TempHP)
	assert.Equal(t, []string{"m2", "m1"}, r.Order)
}

func TestParseRosterWithoutOrder(t *testing.T) {
	r, err := ParseRoster([]byte(`{"monsters":[]}`))
	require.NoError(t, err)
	assert.Nil(t, r.Order)
	assert.Empty(t, r.Monsters)
}

func TestParseRosterRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		field  string
		reason Reason
	}{
		{name: "not json", body: `{`, field: "", reason: ReasonMalformed},
		{name: "not an object", body: `[1]`, field: "", reason: ReasonType},
		{name: "monsters missing", body: `{}`, field: "monsters", reason: ReasonRequired},
		{name: "monsters not array", body: `{"monsters":{}}`, field: "monsters", reason: ReasonType},
		{name: "missing id", body: `{"monsters":[{"name":"a","currentHp":1,"maxHp":1,"initiative":1}]}`, field: "monsters[0].id", reason: ReasonRequired},
		{name: "empty name", body: `{"monsters":[{"id":"a","name":"  ","currentHp":1,"maxHp":1,"initiative":1}]}`, field: "monsters[0].name", reason: ReasonRequired},
		{name: "string hp", body: `{"monsters":[{"id":"a","name":"a","currentHp":"1","maxHp":1,"initiative":1}]}`, field: "monsters[0].currentHp", reason: ReasonType},
		{name: "fractional hp", body: `{"monsters":[{"id":"a","name":"a","currentHp":1.5,"maxHp":2,"initiative":1}]}`, field: "monsters[0].currentHp", reason: ReasonType},
		{name: "fractional initiative", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":12.5}]}`, field: "monsters[0].initiative", reason: ReasonType},
		{name: "zero max hp", body: `{"monsters":[{"id":"a","name":"a","currentHp":0,"maxHp":0,"initiative":1}]}`, field: "monsters[0].maxHp", reason: ReasonRange},
		{name: "initiative out of range", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":101}]}`, field: "monsters[0].initiative", reason: ReasonRange},
		{name: "unknown condition", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":1,"conditions":["on-fire"]}]}`, field: "monsters[0].conditions[0]", reason: ReasonEnum},
		{name: "duplicate combatant", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":1},{"id":"a","name":"b","currentHp":1,"maxHp":1,"initiative":1}]}`, field: "monsters[1].id", reason: ReasonDuplicate},
		{name: "order references unknown id", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":1}],"monsterOrder":["a","ghost"]}`, field: "monsterOrder[1]", reason: ReasonUnknownReference},
		{name: "order lists id twice", body: `{"monsters":[{"id":"a","name":"a","currentHp":1,"maxHp":1,"initiative":1}],"monsterOrder":["a","a"]}`, field: "monsterOrder[1]", reason: ReasonDuplicate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRoster([]byte(tc.body))
			requireReason(t, err, tc.field, tc.reason)
		})
	}
}

func TestCheckOrderAllowsPartial(t *testing.T) {
	monsters := []engine.Combatant{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	require.NoError(t, CheckOrder("order", []string{"c"}, monsters))
	require.NoError(t, CheckOrder("order", []string{}, monsters))
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(`{"settings":{"gridSize":40,"showGrid":false}}`))
	require.NoError(t, err)
	assert.Equal(t, engine.Settings{GridSize: 40, ShowGrid: false}, s)

	cases := []struct {
		name   string
		body   string
		field  string
		reason Reason
	}{
		{name: "grid too small", body: `{"settings":{"gridSize":9,"showGrid":true}}`, field: "settings.gridSize", reason: ReasonRange},
		{name: "grid too large", body: `{"settings":{"gridSize":201,"showGrid":true}}`, field: "settings.gridSize", reason: ReasonRange},
		{name: "showGrid not bool", body: `{"settings":{"gridSize":50,"showGrid":"yes"}}`, field: "settings.showGrid", reason: ReasonType},
		{name: "showGrid missing", body: `{"settings":{"gridSize":50}}`, field: "settings.showGrid", reason: ReasonRequired},
		{name: "settings missing", body: `{}`, field: "settings", reason: ReasonRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tc.body))
			requireReason(t, err, tc.field, tc.reason)
		})
	}
}

func TestParsePieces(t *testing.T) {
	pieces, err := ParsePieces([]byte(`{"pieces":[{"id":"p1","name":"Knight","x":100,"y":50.5,"currentHp":3,"maxHp":10}]}`))
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, 50.5, pieces[0].Y)

	_, err = ParsePieces([]byte(`{"pieces":[{"id":"p1","name":"Knight","x":1,"y":1,"currentHp":11,"maxHp":10}]}`))
	requireReason(t, err, "pieces[0].currentHp", ReasonRange)

	_, err = ParsePieces([]byte(`{"pieces":[{"id":"p1","name":"Knight","x":1,"y":1,"currentHp":-1,"maxHp":10}]}`))
	requireReason(t, err, "pieces[0].currentHp", ReasonRange)

	_, err = ParsePieces([]byte(`{"pieces":[{"id":"p1","name":"Knight","x":-1,"y":1,"currentHp":1,"maxHp":10}]}`))
	requireReason(t, err, "pieces[0].x", ReasonRange)
}

func TestParseBattlefieldDefaults(t *testing.T) {
	bf, err := ParseBattlefield([]byte(`{"battlefield":{"background":"/uploads/a.png"}}`))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a.png", bf.Background)
	assert.Equal(t, engine.DefaultSettings(), bf.Settings)
	assert.NotNil(t, bf.Pieces)

	_, err = ParseBattlefield([]byte(`{"battlefield":{"pieces":{}}}`))
	requireReason(t, err, "battlefield.pieces", ReasonType)
}

func TestParseRoll(t *testing.T) {
	rec, err := ParseRoll([]byte(`{"playerName":" Ana ","rollData":{"dice":[{"type":"d6","value":4},{"type":"d6","value":1},{"type":"d6","value":6}],"label":"3d6"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec.PlayerName)
	assert.Equal(t, 11, engine.RollTotal(engine.DiceOf(rec.RollData)))
	assert.Contains(t, string(rec.RollData), `"label":"3d6"`)

	cases := []struct {
		name   string
		body   string
		field  string
		reason Reason
	}{
		{name: "no player", body: `{"rollData":{"dice":[{"type":"d6","value":1}]}}`, field: "playerName", reason: ReasonRequired},
		{name: "blank player", body: `{"playerName":"  ","rollData":{"dice":[{"type":"d6","value":1}]}}`, field: "playerName", reason: ReasonRequired},
		{name: "no dice", body: `{"playerName":"a","rollData":{"dice":[]}}`, field: "rollData.dice", reason: ReasonRequired},
		{name: "die without type", body: `{"playerName":"a","rollData":{"dice":[{"value":1}]}}`, field: "rollData.dice[0].type", reason: ReasonRequired},
		{name: "die with fractional value", body: `{"playerName":"a","rollData":{"dice":[{"type":"d6","value":3.5}]}}`, field: "rollData.dice[0].value", reason: ReasonType},
		{name: "die with string value", body: `{"playerName":"a","rollData":{"dice":[{"type":"d6","value":"4"}]}}`, field: "rollData.dice[0].value", reason: ReasonType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRoll([]byte(tc.body))
			requireReason(t, err, tc.field, tc.reason)
		})
	}
}

func TestParseHPChange(t *testing.T) {
	ch, err := ParseHPChange([]byte(`{"delta":-10}`))
	require.NoError(t, err)
	require.NotNil(t, ch.Delta)
	assert.Equal(t, -10, *ch.Delta)

	ch, err = ParseHPChange([]byte(`{"currentHp":4}`))
	require.NoError(t, err)
	require.NotNil(t, ch.Set)

	_, err = ParseHPChange([]byte(`{}`))
	requireReason(t, err, "delta", ReasonRequired)
	_, err = ParseHPChange([]byte(`{"delta":1,"currentHp":2}`))
	requireReason(t, err, "delta", ReasonMalformed)
	_, err = ParseHPChange([]byte(`{"delta":-2.5}`))
	requireReason(t, err, "delta", ReasonType)

	ch, err = ParseHPChange([]byte(`{"delta":-3.0}`))
	require.NoError(t, err, "whole numbers written as floats are integers")
	assert.Equal(t, -3, *ch.Delta)
}

func TestParseEventTaggedUnion(t *testing.T) {
	cases := []struct {
		name  string
		event string
		data  string
		check func(t *testing.T, cmd Command)
	}{
		{
			name: "join session", event: types.EvtJoinSession, data: `"table-7"`,
			check: func(t *testing.T, cmd Command) { assert.IsType(t, JoinRoom{}, cmd) },
		},
		{
			name: "join dice defaults player", event: types.EvtJoinDiceSession, data: `{"sessionId":"table-7"}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, UnknownPlayer, cmd.(JoinDice).PlayerName)
			},
		},
		{
			name: "piece moved", event: types.EvtPieceMoved, data: `{"sessionId":"table-7","pieceId":"p1","x":10,"y":20}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, MovePiece{Target: Target{"table-7"}, PieceID: "p1", X: 10, Y: 20}, cmd)
			},
		},
		{
			name: "roll with player inside rollData", event: types.EvtRollDice,
			data: `{"sessionId":"table-7","rollData":{"playerName":"Bo","dice":[{"type":"d20","value":17}]}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, "Bo", cmd.(RollDice).Record.PlayerName)
			},
		},
		{
			name: "reorder", event: types.EvtReorderMonsters, data: `{"sessionId":"table-7","order":["b","a"]}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, []string{"b", "a"}, cmd.(ReorderMonsters).Order)
			},
		},
		{
			name: "state update", event: types.EvtStateUpdated, data: `{"sessionId":"table-7","state":{"pieces":[]}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, engine.DefaultSettings(), cmd.(ChangeBattlefieldState).State.Settings)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := ParseEvent(tc.event, []byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, "table-7", cmd.Session())
			tc.check(t, cmd)
		})
	}
}

func TestParseEventRejections(t *testing.T) {
	_, err := ParseEvent("launch-missiles", []byte(`{}`))
	requireReason(t, err, "event", ReasonEnum)

	_, err = ParseEvent(types.EvtPieceMoved, []byte(`{"sessionId":"table-7","pieceId":"p1","x":10}`))
	requireReason(t, err, "y", ReasonRequired)

	_, err = ParseEvent(types.EvtReorderMonsters, []byte(`{"sessionId":"table-7","order":["a","a"]}`))
	requireReason(t, err, "order[1]", ReasonDuplicate)

	_, err = ParseEvent(types.EvtUpdateMonster, []byte(`{"monster":{}}`))
	requireReason(t, err, "sessionId", ReasonRequired)
}

func TestEventSession(t *testing.T) {
	sid, ok := EventSession([]byte(`"table-7"`))
	assert.True(t, ok)
	assert.Equal(t, "table-7", sid)

	sid, ok = EventSession([]byte(`{"sessionId":"other","x":1}`))
	assert.True(t, ok)
	assert.Equal(t, "other", sid)

	_, ok = EventSession([]byte(`{"x":1}`))
	assert.False(t, ok)
}
