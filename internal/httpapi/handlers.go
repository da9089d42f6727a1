package httpapi

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/assets"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

const (
	ServiceName = "dnd-assistant-backend"
	Version     = "1.0.0"

	maxBodyBytes  = 1 << 20
	uploadField   = "background"
	healthTimeout = 2 * time.Second
)

// sessionView is a session plus its derived counters.
type sessionView struct {
	engine.Session
	ActiveMonsters int `json:"activeMonsters"`
	TotalMonsters  int `json:"totalMonsters"`
}

func viewOf(s engine.Session) sessionView {
	return sessionView{Session: s, ActiveMonsters: engine.ActiveMonsters(s), TotalMonsters: engine.TotalMonsters(s)}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

func Health(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		body := healthBody{Status: "ok", Service: ServiceName, Version: Version, Store: "ok"}
		if err := c.Health(ctx); err != nil {
			log.Warn("health check: store unreachable", zap.Error(err))
			body.Status, body.Store = "degraded", "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func ListSessions(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := c.ActiveSessions(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if list == nil {
			list = []engine.Summary{}
		}
		writeData(w, list)
	}
}

func GetSession(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := c.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, viewOf(sess))
	}
}

func SaveRoster(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		sess, err := c.SaveRoster(r.Context(), chi.URLParam(r, "sessionID"), body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, viewOf(sess))
	}
}

func ReplaceBattlefield(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		bf, err := c.ReplaceBattlefield(r.Context(), chi.URLParam(r, "sessionID"), body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, bf)
	}
}

func DeleteSession(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
			writeError(w, r, log, err)
			return
		}
		writeMessage(w, "session deleted")
	}
}

// combatantHandler covers the HP and condition endpoints, which share a
// shape: read the body, apply to one combatant, return it.
func combatantHandler(
	log *zap.Logger,
	op func(ctx context.Context, sessionID, combatantID string, r *http.Request, body []byte) (engine.Combatant, error),
	withBody bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if withBody {
			var err error
			if body, err = readBody(w, r); err != nil {
				writeError(w, r, log, err)
				return
			}
		}
		m, err := op(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "monsterID"), r, body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, m)
	}
}

func AdjustHP(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return combatantHandler(log, func(ctx context.Context, sid, cid string, _ *http.Request, body []byte) (engine.Combatant, error) {
		return c.AdjustHP(ctx, sid, cid, body)
	}, true)
}

func AddCondition(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return combatantHandler(log, func(ctx context.Context, sid, cid string, _ *http.Request, body []byte) (engine.Combatant, error) {
		return c.AddCondition(ctx, sid, cid, body)
	}, true)
}

func RemoveCondition(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return combatantHandler(log, func(ctx context.Context, sid, cid string, r *http.Request, _ []byte) (engine.Combatant, error) {
		return c.RemoveCondition(ctx, sid, cid, chi.URLParam(r, "condition"))
	}, false)
}

func UpdateSettings(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		s, err := c.UpdateSettings(r.Context(), chi.URLParam(r, "sessionID"), body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, s)
	}
}

func UpdatePieces(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		pieces, err := c.UpdatePieces(r.Context(), chi.URLParam(r, "sessionID"), body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, pieces)
	}
}

type uploaded struct {
	ImageURL string `json:"imageUrl"`
}

// UploadBackground streams the "background" part of a multipart body into
// the asset store without buffering the whole request.
func UploadBackground(c *coordinator.Coordinator, maxBytes int64, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Headroom for the multipart framing; the asset store enforces the
		// exact file limit.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+maxBodyBytes)
		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, r, log, assets.ErrEmpty)
			return
		}
		part, err := findPart(mr, uploadField)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		defer part.Close()

		ref, err := c.ReplaceBackground(r.Context(), chi.URLParam(r, "sessionID"), part.FileName(), part)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, uploaded{ImageURL: ref})
	}
}

func findPart(mr *multipart.Reader, name string) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, assets.ErrEmpty
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == name && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func ClearBackground(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.ClearBackground(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
			writeError(w, r, log, err)
			return
		}
		writeMessage(w, "background removed")
	}
}

type rollPage struct {
	Success bool `json:"success"`
	coordinator.RollPage
}

// RollHistory honours ?limit=; anything that is not a positive integer
// falls back to the default page size.
func RollHistory(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = coordinator.DefaultHistoryLimit
		}
		page, err := c.RollHistory(r.Context(), chi.URLParam(r, "sessionID"), limit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rollPage{Success: true, RollPage: page})
	}
}

func RecordRoll(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		rec, err := c.RecordRoll(r.Context(), chi.URLParam(r, "sessionID"), body)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, rec)
	}
}

func ResetDice(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.ResetDice(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
			writeError(w, r, log, err)
			return
		}
		writeMessage(w, "dice history cleared")
	}
}

func DiceStats(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := c.DiceStats(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeData(w, stats)
	}
}
