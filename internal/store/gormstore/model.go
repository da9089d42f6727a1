package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

// sessionRow keeps each independently-written field in its own column so
// writers never overwrite each other's fields.
type sessionRow struct {
	SessionID    string    `gorm:"column:session_id;primaryKey;size:50"`
	Monsters     []byte    `gorm:"column:monsters;type:jsonb;not null"`
	MonsterOrder []byte    `gorm:"column:monster_order;type:jsonb;not null"`
	Background   string    `gorm:"column:background;size:500;not null"`
	Pieces       []byte    `gorm:"column:pieces;type:jsonb;not null"`
	GridSize     int       `gorm:"column:grid_size;not null"`
	ShowGrid     bool      `gorm:"column:show_grid;not null"`
	LastUpdated  time.Time `gorm:"column:last_updated;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (sessionRow) TableName() string { return "sessions" }

type rollRow struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID  string    `gorm:"column:session_id;size:50;not null;index:idx_dice_rolls_session"`
	PlayerName string    `gorm:"column:player_name;size:50;not null"`
	RollData   []byte    `gorm:"column:roll_data;type:jsonb;not null"`
	Timestamp  time.Time `gorm:"column:timestamp;not null"`
}

func (rollRow) TableName() string { return "dice_rolls" }

func newSessionRow(sessionID string, now time.Time) sessionRow {
	empty := []byte("[]")
	settings := engine.DefaultSettings()
	return sessionRow{
		SessionID:    sessionID,
		Monsters:     empty,
		MonsterOrder: empty,
		Pieces:       empty,
		GridSize:     settings.GridSize,
		ShowGrid:     settings.ShowGrid,
		LastUpdated:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func encodeList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

func decodeList[T any](data []byte) ([]T, error) {
	out := []T{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func (r sessionRow) toSession() (engine.Session, error) {
	monsters, err := decodeList[engine.Combatant](r.Monsters)
	if err != nil {
		return engine.Session{}, err
	}
	for i := range monsters {
		if monsters[i].Conditions == nil {
			monsters[i].Conditions = []engine.Condition{}
		}
	}
	order, err := decodeList[string](r.MonsterOrder)
	if err != nil {
		return engine.Session{}, err
	}
	pieces, err := decodeList[engine.Piece](r.Pieces)
	if err != nil {
		return engine.Session{}, err
	}
	return engine.Session{
		SessionID:    r.SessionID,
		Monsters:     monsters,
		MonsterOrder: order,
		Battlefield: engine.Battlefield{
			Background: r.Background,
			Pieces:     pieces,
			Settings:   engine.Settings{GridSize: r.GridSize, ShowGrid: r.ShowGrid},
		},
		DiceHistory: []engine.RollRecord{},
		LastUpdated: r.LastUpdated,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (r rollRow) toRecord() engine.RollRecord {
	return engine.RollRecord{
		PlayerName: r.PlayerName,
		RollData:   json.RawMessage(r.RollData),
		Timestamp:  r.Timestamp,
	}
}

func toRecords(rows []rollRow) []engine.RollRecord {
	out := make([]engine.RollRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out
}
