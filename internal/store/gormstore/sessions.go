package gormstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
)

func byID(sessionID string) (string, string) { return "session_id = ?", sessionID }

func (s *Store) Get(ctx context.Context, sessionID string) (engine.Session, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	db := s.db.WithContext(ctx)

	var row sessionRow
	if err := db.Where(byID(sessionID)).First(&row).Error; err != nil {
		return engine.Session{}, translate(err)
	}
	sess, err := row.toSession()
	if err != nil {
		return engine.Session{}, fmt.Errorf("gormstore: session %s: %w", sessionID, err)
	}

	var rolls []rollRow
	if err := db.Where(byID(sessionID)).Order("id ASC").Find(&rolls).Error; err != nil {
		return engine.Session{}, translate(err)
	}
	sess.DiceHistory = toRecords(rolls)
	return sess, nil
}

func (s *Store) ListActive(ctx context.Context, since time.Time) ([]engine.Summary, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Select("session_id", "monsters", "last_updated").
		Where("last_updated >= ?", since).
		Order("last_updated DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]engine.Summary, 0, len(rows))
	for _, row := range rows {
		monsters, err := decodeList[engine.Combatant](row.Monsters)
		if err != nil {
			return nil, fmt.Errorf("gormstore: session %s: %w", row.SessionID, err)
		}
		out = append(out, engine.Summary{
			SessionID:     row.SessionID,
			TotalMonsters: len(monsters),
			LastUpdated:   row.LastUpdated,
		})
	}
	return out, nil
}

// update sets columns on an existing session, stamping lastUpdated.
func (s *Store) update(ctx context.Context, db *gorm.DB, sessionID string, cols map[string]any, now time.Time) error {
	cols["last_updated"] = now
	cols["updated_at"] = now
	res := db.WithContext(ctx).Model(&sessionRow{}).Where(byID(sessionID)).Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertRoster(ctx context.Context, sessionID string, monsters []engine.Combatant, order []string, now time.Time) (engine.Session, error) {
	m, err := encodeList(monsters)
	if err != nil {
		return engine.Session{}, err
	}
	o, err := encodeList(order)
	if err != nil {
		return engine.Session{}, err
	}

	opCtx, cancel := s.opContext(ctx)
	row := newSessionRow(sessionID, now)
	row.Monsters, row.MonsterOrder = m, o
	err = s.db.WithContext(opCtx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"monsters", "monster_order", "last_updated", "updated_at"}),
	}).Create(&row).Error
	cancel()
	if err != nil {
		return engine.Session{}, translate(err)
	}
	return s.Get(ctx, sessionID)
}

// SetOrder locks the row so the roster check and the write see the same
// monsters.
func (s *Store) SetOrder(ctx context.Context, sessionID string, order []string, check func([]engine.Combatant) error, now time.Time) error {
	o, err := encodeList(order)
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("session_id", "monsters").
			Where(byID(sessionID)).
			First(&row).Error
		if err != nil {
			return translate(err)
		}
		if check != nil {
			monsters, err := decodeList[engine.Combatant](row.Monsters)
			if err != nil {
				return err
			}
			if err := check(monsters); err != nil {
				return err
			}
		}
		return s.update(ctx, tx, sessionID, map[string]any{"monster_order": o}, now)
	})
}

func (s *Store) UpdateCombatant(ctx context.Context, sessionID, combatantID string, fn func(engine.Combatant) (engine.Combatant, error), now time.Time) (engine.Combatant, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var out engine.Combatant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("session_id", "monsters").
			Where(byID(sessionID)).
			First(&row).Error
		if err != nil {
			return translate(err)
		}
		monsters, err := decodeList[engine.Combatant](row.Monsters)
		if err != nil {
			return err
		}
		i := engine.FindCombatant(monsters, combatantID)
		if i < 0 {
			return engine.ErrCombatantNotFound
		}
		next, err := fn(monsters[i])
		if err != nil {
			return err
		}
		monsters[i] = next
		b, err := encodeList(monsters)
		if err != nil {
			return err
		}
		out = next
		return s.update(ctx, tx, sessionID, map[string]any{"monsters": b}, now)
	})
	if err != nil {
		return engine.Combatant{}, err
	}
	if out.Conditions == nil {
		out.Conditions = []engine.Condition{}
	}
	return out, nil
}

func (s *Store) SetBattlefield(ctx context.Context, sessionID string, bf engine.Battlefield, now time.Time) (engine.Battlefield, error) {
	p, err := encodeList(bf.Pieces)
	if err != nil {
		return engine.Battlefield{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	err = s.update(ctx, s.db, sessionID, map[string]any{
		"background": bf.Background,
		"pieces":     p,
		"grid_size":  bf.Settings.GridSize,
		"show_grid":  bf.Settings.ShowGrid,
	}, now)
	if err != nil {
		return engine.Battlefield{}, err
	}
	if bf.Pieces == nil {
		bf.Pieces = []engine.Piece{}
	}
	return bf, nil
}

func (s *Store) SetSettings(ctx context.Context, sessionID string, settings engine.Settings, now time.Time) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.update(ctx, s.db, sessionID, map[string]any{
		"grid_size": settings.GridSize,
		"show_grid": settings.ShowGrid,
	}, now)
}

func (s *Store) SetPieces(ctx context.Context, sessionID string, pieces []engine.Piece, now time.Time) error {
	p, err := encodeList(pieces)
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.update(ctx, s.db, sessionID, map[string]any{"pieces": p}, now)
}

func (s *Store) SwapBackground(ctx context.Context, sessionID, ref string, now time.Time) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var prev string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("session_id", "background").
			Where(byID(sessionID)).
			First(&row).Error
		if err != nil {
			return translate(err)
		}
		prev = row.Background
		return s.update(ctx, tx, sessionID, map[string]any{"background": ref}, now)
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (engine.Session, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var deleted engine.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(byID(sessionID)).First(&row).Error; err != nil {
			return translate(err)
		}
		sess, err := row.toSession()
		if err != nil {
			return err
		}
		if err := tx.Where(byID(sessionID)).Delete(&rollRow{}).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where(byID(sessionID)).Delete(&sessionRow{}).Error; err != nil {
			return translate(err)
		}
		deleted = sess
		return nil
	})
	if err != nil {
		return engine.Session{}, err
	}
	return deleted, nil
}

func (s *Store) AppendRoll(ctx context.Context, sessionID string, rec engine.RollRecord) (engine.RollRecord, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := rollRow{
		SessionID:  sessionID,
		PlayerName: rec.PlayerName,
		RollData:   slices.Clone([]byte(rec.RollData)),
		Timestamp:  rec.Timestamp,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := newSessionRow(sessionID, rec.Timestamp)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return translate(err)
		}
		if err := s.update(ctx, tx, sessionID, map[string]any{}, rec.Timestamp); err != nil {
			return err
		}
		return translate(tx.Create(&row).Error)
	})
	if err != nil {
		return engine.RollRecord{}, err
	}
	return row.toRecord(), nil
}

func (s *Store) RecentRolls(ctx context.Context, sessionID string, limit int) ([]engine.RollRecord, int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&sessionRow{}).Where(byID(sessionID)).Count(&n).Error; err != nil {
		return nil, 0, translate(err)
	}
	if n == 0 {
		return nil, 0, store.ErrNotFound
	}

	var total int64
	if err := db.Model(&rollRow{}).Where(byID(sessionID)).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var rows []rollRow
	q := db.Where(byID(sessionID)).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, translate(err)
	}
	slices.Reverse(rows)
	return toRecords(rows), int(total), nil
}

func (s *Store) ClearRolls(ctx context.Context, sessionID string, now time.Time) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.update(ctx, tx, sessionID, map[string]any{}, now); err != nil {
			return err
		}
		return translate(tx.Where(byID(sessionID)).Delete(&rollRow{}).Error)
	})
}
