package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/assets"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/validate"
)

// Error codes in the response envelope.
const (
	codeNotFound      = "not_found"
	codeConflict      = "conflict"
	codeInvalidUpload = "invalid_upload"
	codeTooLarge      = "too_large"
	codeServer        = "server_error"
)

type okEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, okEnvelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, okEnvelope{Success: true, Message: msg})
}

// writeError maps an operation error onto a status and envelope. Unexpected
// errors are logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var maxErr *http.MaxBytesError
	if verr, ok := validate.AsError(err); ok {
		writeJSON(w, http.StatusBadRequest, errEnvelope{Error: string(verr.Reason), Message: verr.Message, Field: verr.Field})
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errEnvelope{Error: codeNotFound, Message: "session not found"})
	case errors.Is(err, engine.ErrCombatantNotFound):
		writeJSON(w, http.StatusNotFound, errEnvelope{Error: codeNotFound, Message: "combatant not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errEnvelope{Error: codeConflict, Message: "conflicting write"})
	case errors.Is(err, assets.ErrUnsupportedType), errors.Is(err, assets.ErrEmpty):
		writeJSON(w, http.StatusBadRequest, errEnvelope{Error: codeInvalidUpload, Message: err.Error()})
	case errors.Is(err, assets.ErrTooLarge), errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errEnvelope{Error: codeTooLarge, Message: "request body too large"})
	default:
		log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errEnvelope{Error: codeServer, Message: "internal server error"})
	}
}
