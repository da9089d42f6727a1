// Package lobby is one room of the broadcast router: the live connections
// subscribed to a single session and the fan-out loop that feeds them.
package lobby

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

// Event is an encoded outbound frame. Data is shared between members; treat
// it as read-only.
type Event struct {
	Name string
	Data json.RawMessage
}

// Member is a subscribed connection. Evict is called from the lobby loop when
// the member cannot keep up and must not block.
type Member struct {
	ID     string
	Outbox chan<- Event
	Evict  func()
}

type Join struct {
	Member Member
}

func (Join) isLobbyMsg() {}

type Leave struct{ MemberID string }

func (Leave) isLobbyMsg() {}

// Publish fans Event out to every member except ExcludeID (if set).
type Publish struct {
	Event     Event
	ExcludeID string
}

func (Publish) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Room      string
	Members   []string
	Published int
}

type Lobby struct {
	room      string
	inbox     chan Msg
	members   map[string]Member
	published int
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewLobby(parent context.Context, room string, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		room:    room,
		inbox:   make(chan Msg, 64),
		members: make(map[string]Member),
		log:     log.With(zap.String("session_id", room)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.members[msg.Member.ID] = msg.Member

			case Leave:
				delete(l.members, msg.MemberID)

			case Publish:
				l.published++
				l.broadcast(msg.Event, msg.ExcludeID)

			case GetState:
				ids := make([]string, 0, len(l.members))
				for id := range l.members {
					ids = append(ids, id)
				}
				msg.Reply <- View{Room: l.room, Members: ids, Published: l.published}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	clear(l.members)
	l.cancel()
}

func (l *Lobby) broadcast(ev Event, exclude string) {
	for id, m := range l.members {
		if id == exclude {
			continue
		}
		select {
		case m.Outbox <- ev:
			// ok
		default:
			// Slow consumer: drop it. It resyncs with a full pull on reconnect.
			l.log.Warn("evicting slow subscriber", zap.String("conn_id", id), zap.String("event", ev.Name))
			delete(l.members, id)
			if m.Evict != nil {
				m.Evict()
			}
		}
	}
}

// Inbox exposes the lobby's queue to the hub and to tests.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Room() string { return l.room }

// Done is closed once the lobby loop has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
