// Package ws serves the push channel. Each connection is bound to the
// sessionId given at connect time; frames are {"event","data"} JSON text
// messages in both directions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/lobby"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/validate"
	"github.com/DoyleJ11/dnd-assistant-backend/pkg/types"
)

const maxFrameBytes = 1 << 20

// Router is the part of the hub a connection needs for its lifetime.
type Router interface {
	Register(m lobby.Member) error
	Unsubscribe(connID string) error
}

type Options struct {
	OutboxSize   int
	WriteTimeout time.Duration
	// PongTimeout bounds how long a keepalive ping may go unanswered.
	PongTimeout    time.Duration
	OriginPatterns []string
	Log            *zap.Logger
}

func (o *Options) defaults() {
	if o.OutboxSize <= 0 {
		o.OutboxSize = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

func Handler(h Router, inbox chan<- coordinator.Inbound, opts Options) http.HandlerFunc {
	opts.defaults()
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if err := validate.SessionID(sessionID); err != nil {
			http.Error(w, "invalid sessionId", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		conn.SetReadLimit(maxFrameBytes)

		connID := uuid.NewString()
		log := opts.Log.With(zap.String("conn_id", connID), zap.String("session_id", sessionID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan lobby.Event, opts.OutboxSize)
		if err := h.Register(lobby.Member{ID: connID, Outbox: out, Evict: cancel}); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		defer func() { _ = h.Unsubscribe(connID) }()
		log.Debug("connected")

		go writeLoop(ctx, cancel, conn, out, opts, log)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch {
				case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
					websocket.CloseStatus(err) == websocket.StatusGoingAway:
					log.Debug("disconnected")
				case r.Context().Err() == nil && ctx.Err() != nil:
					// Evicted as a slow consumer or the keepalive failed.
					log.Info("closing connection")
					conn.Close(websocket.StatusPolicyViolation, "connection closed by server")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil || cm.Event == "" {
				log.Debug("ignoring malformed frame")
				continue
			}

			select {
			case inbox <- coordinator.Inbound{ConnID: connID, SessionID: sessionID, Event: cm.Event, Data: cm.Data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan lobby.Event, opts Options, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(opts.PongTimeout / 2)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-out:
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, types.ServerMessage{Event: ev.Name, Data: ev.Data})
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("write failed", zap.String("event", ev.Name), zap.Error(err))
				}
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, opts.PongTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("keepalive failed", zap.Error(err))
				return
			}
		}
	}
}
