// Package memstore is an in-process Session Store. It backs tests and
// STORE_DRIVER=memory; state is lost on restart.
package memstore

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]*engine.Session
}

func New() *Store {
	return &Store{sessions: make(map[string]*engine.Session)}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Get(_ context.Context, sessionID string) (engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return engine.Session{}, store.ErrNotFound
	}
	return clone(*sess), nil
}

func (s *Store) ListActive(_ context.Context, since time.Time) ([]engine.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []engine.Summary{}
	for _, sess := range s.sessions {
		if sess.LastUpdated.Before(since) {
			continue
		}
		out = append(out, engine.Summary{
			SessionID:     sess.SessionID,
			TotalMonsters: engine.TotalMonsters(*sess),
			LastUpdated:   sess.LastUpdated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

// ensureLocked returns the session, creating an empty one when missing.
func (s *Store) ensureLocked(sessionID string, now time.Time) *engine.Session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		fresh := engine.NewEmptySession(sessionID, now)
		sess = &fresh
		s.sessions[sessionID] = sess
	}
	return sess
}

func touch(sess *engine.Session, now time.Time) {
	sess.LastUpdated = now
	sess.UpdatedAt = now
}

func (s *Store) UpsertRoster(_ context.Context, sessionID string, monsters []engine.Combatant, order []string, now time.Time) (engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureLocked(sessionID, now)
	sess.Monsters = cloneCombatants(monsters)
	sess.MonsterOrder = cloneStrings(order)
	touch(sess, now)
	return clone(*sess), nil
}

func (s *Store) SetOrder(_ context.Context, sessionID string, order []string, check func([]engine.Combatant) error, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if check != nil {
		if err := check(cloneCombatants(sess.Monsters)); err != nil {
			return err
		}
	}
	sess.MonsterOrder = cloneStrings(order)
	touch(sess, now)
	return nil
}

func (s *Store) UpdateCombatant(_ context.Context, sessionID, combatantID string, fn func(engine.Combatant) (engine.Combatant, error), now time.Time) (engine.Combatant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return engine.Combatant{}, store.ErrNotFound
	}
	i := engine.FindCombatant(sess.Monsters, combatantID)
	if i < 0 {
		return engine.Combatant{}, engine.ErrCombatantNotFound
	}
	next, err := fn(cloneCombatants(sess.Monsters[i : i+1])[0])
	if err != nil {
		return engine.Combatant{}, err
	}
	sess.Monsters[i] = next
	touch(sess, now)
	return cloneCombatants(sess.Monsters[i : i+1])[0], nil
}

func (s *Store) SetBattlefield(_ context.Context, sessionID string, bf engine.Battlefield, now time.Time) (engine.Battlefield, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return engine.Battlefield{}, store.ErrNotFound
	}
	sess.Battlefield = cloneBattlefield(bf)
	touch(sess, now)
	return cloneBattlefield(sess.Battlefield), nil
}

func (s *Store) SetSettings(_ context.Context, sessionID string, settings engine.Settings, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	sess.Battlefield.Settings = settings
	touch(sess, now)
	return nil
}

func (s *Store) SetPieces(_ context.Context, sessionID string, pieces []engine.Piece, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	sess.Battlefield.Pieces = clonePieces(pieces)
	touch(sess, now)
	return nil
}

func (s *Store) SwapBackground(_ context.Context, sessionID, ref string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", store.ErrNotFound
	}
	prev := sess.Battlefield.Background
	sess.Battlefield.Background = ref
	touch(sess, now)
	return prev, nil
}

func (s *Store) Delete(_ context.Context, sessionID string) (engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return engine.Session{}, store.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return clone(*sess), nil
}

func (s *Store) AppendRoll(_ context.Context, sessionID string, rec engine.RollRecord) (engine.RollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureLocked(sessionID, rec.Timestamp)
	rec = cloneRoll(rec)
	sess.DiceHistory = append(sess.DiceHistory, rec)
	touch(sess, rec.Timestamp)
	return cloneRoll(rec), nil
}

func (s *Store) RecentRolls(_ context.Context, sessionID string, limit int) ([]engine.RollRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, 0, store.ErrNotFound
	}
	total := len(sess.DiceHistory)
	from := 0
	if limit > 0 && total > limit {
		from = total - limit
	}
	return cloneRolls(sess.DiceHistory[from:]), total, nil
}

func (s *Store) ClearRolls(_ context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	sess.DiceHistory = []engine.RollRecord{}
	touch(sess, now)
	return nil
}

func clone(s engine.Session) engine.Session {
	s.Monsters = cloneCombatants(s.Monsters)
	s.MonsterOrder = cloneStrings(s.MonsterOrder)
	s.Battlefield = cloneBattlefield(s.Battlefield)
	s.DiceHistory = cloneRolls(s.DiceHistory)
	return s
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}

func cloneCombatants(in []engine.Combatant) []engine.Combatant {
	out := make([]engine.Combatant, len(in))
	for i, c := range in {
		c.Conditions = slices.Clone(c.Conditions)
		if c.Conditions == nil {
			c.Conditions = []engine.Condition{}
		}
		out[i] = c
	}
	return out
}

func clonePieces(in []engine.Piece) []engine.Piece {
	out := make([]engine.Piece, len(in))
	copy(out, in)
	return out
}

func cloneBattlefield(bf engine.Battlefield) engine.Battlefield {
	bf.Pieces = clonePieces(bf.Pieces)
	return bf
}

func cloneRoll(r engine.RollRecord) engine.RollRecord {
	r.RollData = json.RawMessage(slices.Clone([]byte(r.RollData)))
	return r
}

func cloneRolls(in []engine.RollRecord) []engine.RollRecord {
	out := make([]engine.RollRecord, len(in))
	for i, r := range in {
		out[i] = cloneRoll(r)
	}
	return out
}
