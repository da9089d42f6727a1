// Package hub routes outbound events to the connections subscribed to a
// session. It owns the connection registry and one lobby per session; all
// state lives in the hub goroutine and is reached through typed messages.
package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

// Register makes a connection addressable by SendTo. It joins no room.
type Register struct {
	Member lobby.Member
}

// Subscribe joins a registered connection to a room, creating the room's
// lobby on first use.
type Subscribe struct {
	ConnID string
	Room   string
}

type Publish struct {
	Room      string
	Event     lobby.Event
	ExcludeID string
}

// SendTo delivers an event to one connection only.
type SendTo struct {
	ConnID string
	Event  lobby.Event
}

// UnsubscribeAll removes a connection from every room and forgets it.
type UnsubscribeAll struct {
	ConnID string
}

type GetRoom struct {
	Code  string
	Reply chan *lobby.Lobby
}

type ShutdownHub struct{}

func (Register) isHubMsg()       {}
func (Subscribe) isHubMsg()      {}
func (Publish) isHubMsg()        {}
func (SendTo) isHubMsg()         {}
func (UnsubscribeAll) isHubMsg() {}
func (GetRoom) isHubMsg()        {}
func (ShutdownHub) isHubMsg()    {}

type conn struct {
	member lobby.Member
	rooms  map[string]bool
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	// members counts subscribed connections per room.
	members map[string]int
	conns   map[string]*conn
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 256),
		lobbies: make(map[string]*lobby.Lobby),
		members: make(map[string]int),
		conns:   make(map[string]*conn),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				h.conns[msg.Member.ID] = &conn{member: msg.Member, rooms: map[string]bool{}}

			case Subscribe:
				c := h.conns[msg.ConnID]
				if c == nil {
					h.log.Debug("subscribe for unknown connection", zap.String("conn_id", msg.ConnID))
					break
				}
				if c.rooms[msg.Room] {
					break
				}
				c.rooms[msg.Room] = true
				h.members[msg.Room]++
				h.toLobby(h.ensure(msg.Room), lobby.Join{Member: c.member})

			case Publish:
				// A room nobody joined has nobody to tell.
				if lb := h.lobbies[msg.Room]; lb != nil {
					h.toLobby(lb, lobby.Publish{Event: msg.Event, ExcludeID: msg.ExcludeID})
				}

			case SendTo:
				c := h.conns[msg.ConnID]
				if c == nil {
					break
				}
				select {
				case c.member.Outbox <- msg.Event:
				default:
					h.log.Warn("evicting slow connection", zap.String("conn_id", msg.ConnID), zap.String("event", msg.Event.Name))
					h.drop(msg.ConnID)
					if c.member.Evict != nil {
						c.member.Evict()
					}
				}

			case UnsubscribeAll:
				h.drop(msg.ConnID)

			case GetRoom:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(room string) *lobby.Lobby {
	if lb := h.lobbies[room]; lb != nil {
		return lb
	}
	lb := lobby.NewLobby(h.ctx, room, h.log)
	h.lobbies[room] = lb
	return lb
}

func (h *Hub) drop(connID string) {
	c := h.conns[connID]
	if c == nil {
		return
	}
	for room := range c.rooms {
		if lb := h.lobbies[room]; lb != nil {
			h.toLobby(lb, lobby.Leave{MemberID: connID})
		}
		if h.members[room]--; h.members[room] <= 0 {
			h.removeLobby(room)
		}
	}
	delete(h.conns, connID)
}

// removeLobby stops an empty room's lobby so its goroutine does not outlive
// the last subscriber.
func (h *Hub) removeLobby(room string) {
	if lb := h.lobbies[room]; lb != nil {
		h.toLobby(lb, lobby.Shutdown{})
		delete(h.lobbies, room)
	}
	delete(h.members, room)
}

func (h *Hub) toLobby(lb *lobby.Lobby, m lobby.Msg) {
	select {
	case lb.Inbox() <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		select {
		case lb.Inbox() <- lobby.Shutdown{}:
		default:
		}
	}
	clear(h.lobbies)
	clear(h.members)
	clear(h.conns)
	h.cancel()
}

func (h *Hub) send(m HubMsg) error {
	if err := h.ctx.Err(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub: %w", h.ctx.Err())
	}
}

func encode(event string, payload any) (lobby.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return lobby.Event{}, fmt.Errorf("hub: encode %s: %w", event, err)
	}
	return lobby.Event{Name: event, Data: data}, nil
}

// Register is a convenience wrapper around the Register message.
func (h *Hub) Register(m lobby.Member) error { return h.send(Register{Member: m}) }

func (h *Hub) Subscribe(connID, room string) error {
	return h.send(Subscribe{ConnID: connID, Room: room})
}

func (h *Hub) Unsubscribe(connID string) error { return h.send(UnsubscribeAll{ConnID: connID}) }

// Publish encodes payload once and fans it out to room, skipping
// excludeConnID when it is non-empty.
func (h *Hub) Publish(room, event string, payload any, excludeConnID string) error {
	ev, err := encode(event, payload)
	if err != nil {
		return err
	}
	return h.send(Publish{Room: room, Event: ev, ExcludeID: excludeConnID})
}

func (h *Hub) SendTo(connID, event string, payload any) error {
	ev, err := encode(event, payload)
	if err != nil {
		return err
	}
	return h.send(SendTo{ConnID: connID, Event: ev})
}

// Room returns the lobby for code, or nil if nobody is subscribed to it.
func (h *Hub) Room(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, fmt.Errorf("hub: %w", h.ctx.Err())
	}
}

// Shutdown stops every lobby and the hub loop.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
