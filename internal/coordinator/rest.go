package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/validate"
	"github.com/DoyleJ11/dnd-assistant-backend/pkg/types"
)

// Request/response operations. They publish to every subscriber of the
// session, and return validation errors as *validate.Error and missing
// sessions as store.ErrNotFound.

const DefaultHistoryLimit = 20

type RollPage struct {
	Data  []engine.RollRecord `json:"data"`
	Total int                 `json:"total"`
	Limit int                 `json:"limit"`
}

// publish is best effort: the write already happened, so a router failure is
// logged rather than reported to the caller.
func (c *Coordinator) publish(sessionID, event string, payload any) {
	if err := c.bus.Publish(sessionID, event, payload, ""); err != nil {
		c.log.Warn("broadcast failed", zap.String("session_id", sessionID), zap.String("event", event), zap.Error(err))
	}
}

func (c *Coordinator) Health(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (engine.Session, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.Session{}, err
	}
	return c.store.Get(ctx, sessionID)
}

// ActiveSessions lists sessions touched within store.ActiveWindow.
func (c *Coordinator) ActiveSessions(ctx context.Context) ([]engine.Summary, error) {
	return c.store.ListActive(ctx, c.now().Add(-store.ActiveWindow))
}

// SaveRoster upserts the combatant list. Without a monsterOrder the order is
// derived from initiative.
func (c *Coordinator) SaveRoster(ctx context.Context, sessionID string, body []byte) (engine.Session, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.Session{}, err
	}
	r, err := validate.ParseRoster(body)
	if err != nil {
		return engine.Session{}, err
	}
	sess, err := c.store.UpsertRoster(ctx, sessionID, r.Monsters, orderOrDerived(r), c.now())
	if err != nil {
		return engine.Session{}, err
	}
	c.publish(sessionID, types.EvtSessionUpdated, rosterPayload(sess.Monsters, sess.MonsterOrder))
	return sess, nil
}

type battlefieldUpdated struct {
	Battlefield engine.Battlefield `json:"battlefield"`
}

func (c *Coordinator) ReplaceBattlefield(ctx context.Context, sessionID string, body []byte) (engine.Battlefield, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.Battlefield{}, err
	}
	bf, err := validate.ParseBattlefield(body)
	if err != nil {
		return engine.Battlefield{}, err
	}
	bf, err = c.store.SetBattlefield(ctx, sessionID, bf, c.now())
	if err != nil {
		return engine.Battlefield{}, err
	}
	c.publish(sessionID, types.EvtBattlefieldUpdated, battlefieldUpdated{Battlefield: bf})
	return bf, nil
}

func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	if err := validate.SessionID(sessionID); err != nil {
		return err
	}
	sess, err := c.store.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if bg := sess.Battlefield.Background; bg != "" {
		if err := c.assets.Delete(ctx, bg); err != nil {
			c.log.Warn("orphaned background", zap.String("session_id", sessionID), zap.String("ref", bg), zap.Error(err))
		}
	}
	c.cache.Forget(sessionID)
	c.publish(sessionID, types.EvtSessionDeleted, types.SessionDeleted{SessionID: sessionID})
	return nil
}

func (c *Coordinator) updateCombatant(ctx context.Context, sessionID, combatantID string, fn func(engine.Combatant) (engine.Combatant, error)) (engine.Combatant, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.Combatant{}, err
	}
	m, err := c.store.UpdateCombatant(ctx, sessionID, combatantID, fn, c.now())
	if err != nil {
		return engine.Combatant{}, err
	}
	c.publish(sessionID, types.EvtMonsterUpdated, m)
	return m, nil
}

// AdjustHP applies {delta} or {currentHp}; the result is always clamped to
// [0, maxHp].
func (c *Coordinator) AdjustHP(ctx context.Context, sessionID, combatantID string, body []byte) (engine.Combatant, error) {
	change, err := validate.ParseHPChange(body)
	if err != nil {
		return engine.Combatant{}, err
	}
	return c.updateCombatant(ctx, sessionID, combatantID, func(m engine.Combatant) (engine.Combatant, error) {
		if change.Delta != nil {
			return engine.AdjustHP(m, *change.Delta), nil
		}
		return engine.SetHP(m, *change.Set), nil
	})
}

func (c *Coordinator) AddCondition(ctx context.Context, sessionID, combatantID string, body []byte) (engine.Combatant, error) {
	cond, err := validate.ParseCondition(body)
	if err != nil {
		return engine.Combatant{}, err
	}
	return c.updateCombatant(ctx, sessionID, combatantID, func(m engine.Combatant) (engine.Combatant, error) {
		return engine.AddCondition(m, cond)
	})
}

func (c *Coordinator) RemoveCondition(ctx context.Context, sessionID, combatantID, name string) (engine.Combatant, error) {
	cond, err := validate.ConditionName(name)
	if err != nil {
		return engine.Combatant{}, err
	}
	return c.updateCombatant(ctx, sessionID, combatantID, func(m engine.Combatant) (engine.Combatant, error) {
		return engine.RemoveCondition(m, cond), nil
	})
}

type settingsUpdated struct {
	Settings engine.Settings `json:"settings"`
}

// UpdateSettings is idempotent: the same body always yields the same stored
// settings and the same broadcast.
func (c *Coordinator) UpdateSettings(ctx context.Context, sessionID string, body []byte) (engine.Settings, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.Settings{}, err
	}
	s, err := validate.ParseSettings(body)
	if err != nil {
		return engine.Settings{}, err
	}
	if err := c.store.SetSettings(ctx, sessionID, s, c.now()); err != nil {
		return engine.Settings{}, err
	}
	c.publish(sessionID, types.EvtSettingsUpdated, settingsUpdated{Settings: s})
	return s, nil
}

type piecesUpdated struct {
	Pieces []engine.Piece `json:"pieces"`
}

func (c *Coordinator) UpdatePieces(ctx context.Context, sessionID string, body []byte) ([]engine.Piece, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return nil, err
	}
	pieces, err := validate.ParsePieces(body)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetPieces(ctx, sessionID, pieces, c.now()); err != nil {
		return nil, err
	}
	c.publish(sessionID, types.EvtPiecesUpdated, piecesUpdated{Pieces: pieces})
	return pieces, nil
}

// ReplaceBackground stores the upload, then swaps it onto the session. If
// the session vanished in the meantime the new asset is removed and
// store.ErrNotFound returned; otherwise the previous asset is removed.
func (c *Coordinator) ReplaceBackground(ctx context.Context, sessionID, filename string, r io.Reader) (string, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return "", err
	}
	ref, err := c.assets.Save(ctx, filename, r)
	if err != nil {
		return "", err
	}
	prev, err := c.store.SwapBackground(ctx, sessionID, ref, c.now())
	if err != nil {
		if derr := c.assets.Delete(ctx, ref); derr != nil {
			err = multierr.Append(err, fmt.Errorf("discard upload: %w", derr))
		}
		return "", err
	}
	if prev != "" && prev != ref {
		if err := c.assets.Delete(ctx, prev); err != nil {
			c.log.Warn("previous background not removed", zap.String("session_id", sessionID), zap.String("ref", prev), zap.Error(err))
		}
	}
	c.publish(sessionID, types.EvtBackgroundUpdated, types.BackgroundUpdated{ImageURL: ref})
	return ref, nil
}

func (c *Coordinator) ClearBackground(ctx context.Context, sessionID string) error {
	if err := validate.SessionID(sessionID); err != nil {
		return err
	}
	prev, err := c.store.SwapBackground(ctx, sessionID, "", c.now())
	if err != nil {
		return err
	}
	if prev != "" {
		if err := c.assets.Delete(ctx, prev); err != nil {
			c.log.Warn("background file not removed", zap.String("session_id", sessionID), zap.String("ref", prev), zap.Error(err))
		}
	}
	c.publish(sessionID, types.EvtBackgroundDeleted, types.BackgroundDeleted{SessionID: sessionID})
	return nil
}

// RollHistory returns the newest limit rolls of the durable log, oldest
// first. limit <= 0 means DefaultHistoryLimit.
func (c *Coordinator) RollHistory(ctx context.Context, sessionID string, limit int) (RollPage, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return RollPage{}, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, total, err := c.store.RecentRolls(ctx, sessionID, limit)
	if err != nil {
		return RollPage{}, err
	}
	if recs == nil {
		recs = []engine.RollRecord{}
	}
	return RollPage{Data: recs, Total: total, Limit: limit}, nil
}

func (c *Coordinator) RecordRoll(ctx context.Context, sessionID string, body []byte) (engine.RollRecord, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.RollRecord{}, err
	}
	rec, err := validate.ParseRoll(body)
	if err != nil {
		return engine.RollRecord{}, err
	}
	stored, err := c.appendRoll(ctx, sessionID, rec)
	if err != nil {
		return engine.RollRecord{}, err
	}
	c.publish(sessionID, types.EvtDiceRolled, stored)
	return stored, nil
}

func (c *Coordinator) ResetDice(ctx context.Context, sessionID string) error {
	if err := validate.SessionID(sessionID); err != nil {
		return err
	}
	if err := c.store.ClearRolls(ctx, sessionID, c.now()); err != nil {
		return err
	}
	c.cache.Clear(sessionID)
	c.publish(sessionID, types.EvtDiceReset, types.DiceReset{})
	return nil
}

// DiceStats aggregates over the whole durable log, not just the cached tail.
func (c *Coordinator) DiceStats(ctx context.Context, sessionID string) (engine.DiceStats, error) {
	if err := validate.SessionID(sessionID); err != nil {
		return engine.DiceStats{}, err
	}
	recs, _, err := c.store.RecentRolls(ctx, sessionID, 0)
	if err != nil {
		return engine.DiceStats{}, err
	}
	return engine.ComputeStats(recs), nil
}

// IsNotFound reports whether err means the session or combatant is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, engine.ErrCombatantNotFound)
}
