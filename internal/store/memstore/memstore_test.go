package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
)

var _ coordinator.Store = (*Store)(nil)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func goblin() engine.Combatant {
	return engine.Combatant{ID: "m1", Name: "Goblin1", CurrentHP: 7, MaxHP: 7, Initiative: 12, Conditions: []engine.Condition{}}
}

func TestUpsertRosterCreatesSession(t *testing.T) {
	ctx := context.Background()
	s := New()

	got, err := s.UpsertRoster(ctx, "table-7", []engine.Combatant{goblin()}, []string{"m1"}, t0)
	require.NoError(t, err)
	assert.Equal(t, "table-7", got.SessionID)
	assert.Equal(t, engine.DefaultSettings(), got.Battlefield.Settings)
	assert.Equal(t, t0, got.CreatedAt)

	later := t0.Add(time.Minute)
	_, err = s.UpsertRoster(ctx, "table-7", []engine.Combatant{}, nil, later)
	require.NoError(t, err)
	sess, err := s.Get(ctx, "table-7")
	require.NoError(t, err)
	assert.Empty(t, sess.Monsters)
	assert.NotNil(t, sess.MonsterOrder)
	assert.Equal(t, t0, sess.CreatedAt)
	assert.Equal(t, later, sess.LastUpdated)
}

func TestMissingSessionWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	checks := map[string]error{
		"order":    s.SetOrder(ctx, "nope", []string{}, nil, t0),
		"settings": s.SetSettings(ctx, "nope", engine.DefaultSettings(), t0),
		"pieces":   s.SetPieces(ctx, "nope", nil, t0),
		"clear":    s.ClearRolls(ctx, "nope", t0),
	}
	for name, err := range checks {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}

	_, err := s.SwapBackground(ctx, "nope", "/uploads/a.png", t0)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SetBattlefield(ctx, "nope", engine.Battlefield{}, t0)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Delete(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, _, err = s.RecentRolls(ctx, "nope", 20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateCombatantClampsUnderLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.UpsertRoster(ctx, "table-7", []engine.Combatant{goblin()}, []string{"m1"}, t0)
	require.NoError(t, err)

	got, err := s.UpdateCombatant(ctx, "table-7", "m1", func(c engine.Combatant) (engine.Combatant, error) {
		return engine.AdjustHP(c, -10), nil
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentHP)

	_, err = s.UpdateCombatant(ctx, "table-7", "ghost", func(c engine.Combatant) (engine.Combatant, error) { return c, nil }, t0)
	assert.ErrorIs(t, err, engine.ErrCombatantNotFound)

	boom := errors.New("boom")
	_, err = s.UpdateCombatant(ctx, "table-7", "m1", func(c engine.Combatant) (engine.Combatant, error) {
		c.CurrentHP = 99
		return c, boom
	}, t0)
	assert.ErrorIs(t, err, boom)
	sess, _ := s.Get(ctx, "table-7")
	assert.Equal(t, 0, sess.Monsters[0].CurrentHP, "failed update must not be applied")
}

func TestSetOrderChecksCurrentRoster(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.UpsertRoster(ctx, "table-7", []engine.Combatant{goblin()}, []string{"m1"}, t0)
	require.NoError(t, err)

	var seen []string
	reject := errors.New("unknown id")
	err = s.SetOrder(ctx, "table-7", []string{"m2"}, func(monsters []engine.Combatant) error {
		for _, m := range monsters {
			seen = append(seen, m.ID)
		}
		return reject
	}, t0)
	assert.ErrorIs(t, err, reject)
	assert.Equal(t, []string{"m1"}, seen)
	sess, _ := s.Get(ctx, "table-7")
	assert.Equal(t, []string{"m1"}, sess.MonsterOrder, "rejected order must not be stored")

	require.NoError(t, s.SetOrder(ctx, "table-7", []string{}, func([]engine.Combatant) error { return nil }, t0))
	sess, _ = s.Get(ctx, "table-7")
	assert.Empty(t, sess.MonsterOrder)
}

func TestSwapBackgroundReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.UpsertRoster(ctx, "table-7", nil, nil, t0)

	prev, err := s.SwapBackground(ctx, "table-7", "/uploads/a.png", t0)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.SwapBackground(ctx, "table-7", "/uploads/b.png", t0)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a.png", prev)

	prev, err = s.SwapBackground(ctx, "table-7", "", t0)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/b.png", prev)
}

func TestRollLog(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 25; i++ {
		_, err := s.AppendRoll(ctx, "dice-1", engine.RollRecord{
			PlayerName: "Ana",
			RollData:   json.RawMessage(`{"dice":[{"type":"d20","value":` + string(rune('1'+i%9)) + `}]}`),
			Timestamp:  t0.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	recent, total, err := s.RecentRolls(ctx, "dice-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, recent, 20)
	assert.Equal(t, t0.Add(5*time.Second), recent[0].Timestamp)
	assert.Equal(t, t0.Add(24*time.Second), recent[19].Timestamp)

	require.NoError(t, s.ClearRolls(ctx, "dice-1", t0))
	recent, total, err = s.RecentRolls(ctx, "dice-1", 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, recent)
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.UpsertRoster(ctx, "old-table", nil, nil, t0.Add(-48*time.Hour))
	_, _ = s.UpsertRoster(ctx, "table-7", []engine.Combatant{goblin()}, nil, t0)

	got, err := s.ListActive(ctx, t0.Add(-store.ActiveWindow))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "table-7", got[0].SessionID)
	assert.Equal(t, 1, got[0].TotalMonsters)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.UpsertRoster(ctx, "table-7", []engine.Combatant{goblin()}, []string{"m1"}, t0)

	sess, _ := s.Get(ctx, "table-7")
	sess.Monsters[0].Name = "tampered"
	sess.MonsterOrder[0] = "tampered"

	again, _ := s.Get(ctx, "table-7")
	assert.Equal(t, "Goblin1", again.Monsters[0].Name)
	assert.Equal(t, "m1", again.MonsterOrder[0])
}
