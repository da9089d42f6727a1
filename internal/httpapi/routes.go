package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/ws"
)

type Deps struct {
	Coordinator *coordinator.Coordinator
	Router      ws.Router
	WS          ws.Options

	// UploadDir is served read-only under UploadURLPrefix.
	UploadDir       string
	UploadURLPrefix string
	MaxUploadBytes  int64

	CORSOrigin string
	Log        *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	c := d.Coordinator

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))
	r.Use(cors(d.CORSOrigin))

	r.Get("/api/health", Health(c, log))

	r.Route("/api/battles/sessions", func(r chi.Router) {
		r.Get("/", ListSessions(c, log))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", GetSession(c, log))
			r.Post("/", SaveRoster(c, log))
			r.Delete("/", DeleteSession(c, log))
			r.Post("/battlefield", ReplaceBattlefield(c, log))
			r.Post("/monsters/{monsterID}/hp", AdjustHP(c, log))
			r.Post("/monsters/{monsterID}/conditions", AddCondition(c, log))
			r.Delete("/monsters/{monsterID}/conditions/{condition}", RemoveCondition(c, log))
		})
	})

	r.Route("/api/battlefield/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/settings", UpdateSettings(c, log))
		r.Post("/pieces", UpdatePieces(c, log))
		r.Post("/background", UploadBackground(c, d.MaxUploadBytes, log))
		r.Delete("/background", ClearBackground(c, log))
	})

	r.Route("/api/dice/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", RollHistory(c, log))
		r.Post("/", RecordRoll(c, log))
		r.Delete("/", ResetDice(c, log))
		r.Get("/stats", DiceStats(c, log))
	})

	wsOpts := d.WS
	if wsOpts.Log == nil {
		wsOpts.Log = log
	}
	r.Get("/ws", ws.Handler(d.Router, c.Inbox(), wsOpts))

	if d.UploadDir != "" {
		prefix := "/" + strings.Trim(d.UploadURLPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(d.UploadDir))))
	}
	return r
}
