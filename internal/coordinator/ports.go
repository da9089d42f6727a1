package coordinator

import (
	"context"
	"io"
	"time"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

// Store is the Session Store as the coordinator needs it. Every write is a
// field-level atomic update; none of them read-modify-write whole sessions.
// Missing sessions are reported as store.ErrNotFound.
type Store interface {
	Get(ctx context.Context, sessionID string) (engine.Session, error)
	ListActive(ctx context.Context, since time.Time) ([]engine.Summary, error)

	// UpsertRoster creates the session if needed.
	UpsertRoster(ctx context.Context, sessionID string, monsters []engine.Combatant, order []string, now time.Time) (engine.Session, error)
	// SetOrder stores order after check accepts it against the roster as it
	// stands under the same lock. A nil check accepts any order.
	SetOrder(ctx context.Context, sessionID string, order []string, check func([]engine.Combatant) error, now time.Time) error
	// UpdateCombatant applies fn to one combatant under a row lock.
	UpdateCombatant(ctx context.Context, sessionID, combatantID string, fn func(engine.Combatant) (engine.Combatant, error), now time.Time) (engine.Combatant, error)

	SetBattlefield(ctx context.Context, sessionID string, bf engine.Battlefield, now time.Time) (engine.Battlefield, error)
	SetSettings(ctx context.Context, sessionID string, s engine.Settings, now time.Time) error
	SetPieces(ctx context.Context, sessionID string, pieces []engine.Piece, now time.Time) error
	// SwapBackground stores ref ("" clears it) and returns the reference it replaced.
	SwapBackground(ctx context.Context, sessionID, ref string, now time.Time) (string, error)

	Delete(ctx context.Context, sessionID string) (engine.Session, error)

	// AppendRoll adds to the durable roll log, creating the session if needed,
	// and returns the record as stored.
	AppendRoll(ctx context.Context, sessionID string, rec engine.RollRecord) (engine.RollRecord, error)
	// RecentRolls returns up to limit of the newest rolls, oldest first, and
	// the size of the whole log.
	RecentRolls(ctx context.Context, sessionID string, limit int) ([]engine.RollRecord, int, error)
	ClearRolls(ctx context.Context, sessionID string, now time.Time) error

	Ping(ctx context.Context) error
}

// Broadcaster fans encoded events out to rooms. *hub.Hub implements it.
type Broadcaster interface {
	Subscribe(connID, room string) error
	Publish(room, event string, payload any, excludeConnID string) error
	SendTo(connID, event string, payload any) error
}

// AssetStore keeps uploaded background images.
type AssetStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// RollCache is the in-memory tail of each session's roll log.
// *rollcache.Cache implements it.
type RollCache interface {
	Capacity() int
	Append(sessionID string, rec engine.RollRecord)
	Snapshot(sessionID string) ([]engine.RollRecord, bool)
	Clear(sessionID string)
	Seed(sessionID string, recs []engine.RollRecord) bool
	Forget(sessionID string)
}
