// Package coordinator turns validated client intents into store writes and
// room broadcasts. Every mutation runs validate, store write, roll cache
// update (dice only), publish, in that order; nothing is broadcast before
// the store confirmed it.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/validate"
	"github.com/DoyleJ11/dnd-assistant-backend/pkg/types"
)

// Inbound is one push-channel frame from a connection bound to SessionID.
type Inbound struct {
	ConnID    string
	SessionID string
	Event     string
	Data      json.RawMessage
}

type Options struct {
	Log *zap.Logger
	Now func() time.Time
	// Workers is the number of push-event lanes. Events of one session always
	// share a lane, so they are applied in arrival order.
	Workers   int
	InboxSize int
}

type Coordinator struct {
	store   Store
	bus     Broadcaster
	cache   RollCache
	assets  AssetStore
	log     *zap.Logger
	now     func() time.Time
	workers int
	inbox   chan Inbound
}

func New(st Store, bus Broadcaster, cache RollCache, assets AssetStore, opts Options) *Coordinator {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	return &Coordinator{
		store:   st,
		bus:     bus,
		cache:   cache,
		assets:  assets,
		log:     opts.Log.With(zap.String("component", "coordinator")),
		now:     func() time.Time { return opts.Now().UTC() },
		workers: opts.Workers,
		inbox:   make(chan Inbound, opts.InboxSize),
	}
}

func (c *Coordinator) Inbox() chan<- Inbound { return c.inbox }

// Run drains the inbox until ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	lanes := make([]chan Inbound, c.workers)
	for i := range lanes {
		lane := make(chan Inbound, 64)
		lanes[i] = lane
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case in := <-lane:
					c.Handle(ctx, in)
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case in := <-c.inbox:
				select {
				case lanes[laneOf(in.SessionID, len(lanes))] <- in:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func laneOf(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}

// Handle applies one push event. Events claiming a session other than the
// one the connection is bound to, and events that fail validation, are
// dropped without a reply. Store failures are logged and not broadcast.
func (c *Coordinator) Handle(ctx context.Context, in Inbound) {
	log := c.log.With(
		zap.String("conn_id", in.ConnID),
		zap.String("session_id", in.SessionID),
		zap.String("event", in.Event),
	)

	claimed, ok := validate.EventSession(in.Data)
	if !ok || claimed != in.SessionID {
		log.Debug("dropping event for foreign session", zap.String("claimed", claimed))
		return
	}
	cmd, err := validate.ParseEvent(in.Event, in.Data)
	if err != nil {
		log.Warn("rejected event", zap.Error(err))
		return
	}
	if err := c.apply(ctx, in.ConnID, cmd); err != nil {
		log.Error("event not applied", zap.Error(err))
	}
}

func (c *Coordinator) apply(ctx context.Context, origin string, cmd validate.Command) error {
	sid := cmd.Session()
	relay := func(event string, payload any) error {
		return c.bus.Publish(sid, event, payload, origin)
	}

	switch cmd := cmd.(type) {
	case validate.JoinRoom:
		return c.bus.Subscribe(origin, sid)

	case validate.JoinDice:
		if err := c.bus.Subscribe(origin, sid); err != nil {
			return err
		}
		c.hydrate(ctx, sid)
		recs, _ := c.cache.Snapshot(sid)
		return c.bus.SendTo(origin, types.EvtRollHistorySync, recs)

	case validate.UpdateMonster:
		return relay(types.EvtMonsterUpdated, cmd.Monster)

	case validate.DeleteMonster:
		return relay(types.EvtDeleteMonster, types.MonsterDeleted{MonsterID: cmd.MonsterID})

	case validate.UpdateSession:
		return relay(types.EvtSessionUpdated, rosterPayload(cmd.Roster.Monsters, orderOrDerived(cmd.Roster)))

	case validate.ReorderMonsters:
		check := func(monsters []engine.Combatant) error {
			return validate.CheckOrder("order", cmd.Order, monsters)
		}
		if err := c.store.SetOrder(ctx, sid, cmd.Order, check, c.now()); err != nil {
			return err
		}
		return relay(types.EvtMonstersReordered, types.MonstersReordered{Order: cmd.Order})

	case validate.UpdateDiceState:
		return relay(types.EvtDiceStateUpdated, cmd.State)

	case validate.RollDice:
		stored, err := c.appendRoll(ctx, sid, cmd.Record)
		if err != nil {
			return err
		}
		return relay(types.EvtDiceRolled, stored)

	case validate.ResetDice:
		err := c.store.ClearRolls(ctx, sid, c.now())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		c.cache.Clear(sid)
		return relay(types.EvtResetDice, types.DiceReset{PlayerName: cmd.PlayerName})

	case validate.MovePiece:
		return relay(types.EvtPieceMoved, types.PieceMoved{PieceID: cmd.PieceID, X: cmd.X, Y: cmd.Y})

	case validate.ChangeBackground:
		return relay(types.EvtBackgroundUpdated, types.BackgroundUpdated{ImageURL: cmd.ImageURL})

	case validate.ChangeSettings:
		return relay(types.EvtSettingsUpdated, cmd.Settings)

	case validate.ChangeBattlefieldState:
		state, err := json.Marshal(cmd.State)
		if err != nil {
			return err
		}
		return relay(types.EvtStateUpdated, types.BattlefieldState{State: state})
	}
	return nil
}

// hydrate seeds the roll cache from the tail of the durable log the first
// time a session is touched in this process.
func (c *Coordinator) hydrate(ctx context.Context, sessionID string) {
	if _, ok := c.cache.Snapshot(sessionID); ok {
		return
	}
	recs, _, err := c.store.RecentRolls(ctx, sessionID, c.cache.Capacity())
	switch {
	case errors.Is(err, store.ErrNotFound):
		recs = nil
	case err != nil:
		// Left unseeded so the next join tries again.
		c.log.Warn("roll history unavailable", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	c.cache.Seed(sessionID, recs)
}

func (c *Coordinator) appendRoll(ctx context.Context, sessionID string, rec engine.RollRecord) (engine.RollRecord, error) {
	c.hydrate(ctx, sessionID)
	rec.Timestamp = c.now()
	stored, err := c.store.AppendRoll(ctx, sessionID, rec)
	if err != nil {
		return engine.RollRecord{}, err
	}
	c.cache.Append(sessionID, stored)
	return stored, nil
}

type sessionUpdated struct {
	Monsters     []engine.Combatant `json:"monsters"`
	MonsterOrder []string           `json:"monsterOrder"`
}

func rosterPayload(monsters []engine.Combatant, order []string) sessionUpdated {
	if monsters == nil {
		monsters = []engine.Combatant{}
	}
	if order == nil {
		order = []string{}
	}
	return sessionUpdated{Monsters: monsters, MonsterOrder: order}
}

func orderOrDerived(r validate.Roster) []string {
	if r.Order != nil {
		return r.Order
	}
	return engine.InitiativeOrder(r.Monsters)
}
