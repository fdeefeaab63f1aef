package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"clicker-quiz-service/internal/app"
	"clicker-quiz-service/internal/domain"
	"clicker-quiz-service/internal/infra/bridge"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultKeyEventRate  = rate.Limit(50)
	defaultKeyEventBurst = 100
)

// KeyEventRecorder is the local key event feed the receiver posts presses into.
type KeyEventRecorder interface {
	Record(ctx context.Context, participant, info string) (domain.KeyEvent, error)
	Latest(ctx context.Context) (domain.KeyEvent, error)
}

// APIHandler serves the REST surface for sessions and the key event bridge.
type APIHandler struct {
	service *app.SessionService
	feed    KeyEventRecorder
	limiter *rate.Limiter
}

// APIOption customizes an APIHandler.
type APIOption func(*APIHandler)

// WithKeyEventLimit bounds how fast presses may be recorded.
func WithKeyEventLimit(r rate.Limit, burst int) APIOption {
	return func(h *APIHandler) { h.limiter = rate.NewLimiter(r, burst) }
}

func NewAPIHandler(service *app.SessionService, feed KeyEventRecorder, opts ...APIOption) *APIHandler {
	h := &APIHandler{
		service: service,
		feed:    feed,
		limiter: rate.NewLimiter(defaultKeyEventRate, defaultKeyEventBurst),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type startSessionRequest struct {
	PaperID string `json:"paperId"`
}

type commandRequest struct {
	Action string `json:"action"`
}

func (h *APIHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List(r.Context()))
}

func (h *APIHandler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PaperID) == "" {
		writeError(w, http.StatusBadRequest, "paperId is required")
		return
	}
	session, err := h.service.Start(r.Context(), req.PaperID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *APIHandler) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Stop(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) sendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command payload")
		return
	}
	if err := h.service.Command(r.Context(), r.PathValue("id"), req.Action); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) recordKeyEvent(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var payload bridge.KeyEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid key event payload")
		return
	}
	if payload.KeyID == "" || payload.Info == "" {
		writeError(w, http.StatusBadRequest, "key_id and info are required")
		return
	}
	ev, err := h.feed.Record(r.Context(), string(payload.KeyID), payload.Info)
	if err != nil {
		log.Error().Err(err).Msg("record key event")
		writeError(w, http.StatusInternalServerError, "could not record key event")
		return
	}
	writeJSON(w, http.StatusCreated, bridge.FromKeyEvent(ev))
}

func (h *APIHandler) latestKeyEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.feed.Latest(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bridge.FromKeyEvent(ev))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPaperNotFound),
		errors.Is(err, domain.ErrNoKeyEvents):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyPaper), errors.Is(err, domain.ErrInvalidPaper):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}
