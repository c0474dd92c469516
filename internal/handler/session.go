package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/util"
)

type SessionHandler struct {
	sessionService *service.SessionControlService
}

func NewSessionHandler(sessionService *service.SessionControlService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{pairingId}/status", h.Status)
	r.Get("/{pairingId}/interrupt", h.Interrupt)
	r.Post("/{pairingId}/end", h.End)
	r.Post("/{pairingId}/pause", h.Pause)
	r.Post("/{pairingId}/resume", h.Resume)

	return r
}

// GET /session/{pairingId}/status
// Checked by the hook before submitting; an ended session falls back to
// terminal prompts.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	pairingID, ok := h.pairingID(w, r)
	if !ok {
		return
	}

	active, err := h.sessionService.Active(r.Context(), pairingID)
	if err != nil {
		log.Error().Err(err).Str("pairingId", pairingID).Msg("failed to check session status")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessionActive": active})
}

// GET /session/{pairingId}/interrupt
// A paused session makes the hook deny until resumed.
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	pairingID, ok := h.pairingID(w, r)
	if !ok {
		return
	}

	interrupted, err := h.sessionService.Interrupted(r.Context(), pairingID)
	if err != nil {
		log.Error().Err(err).Str("pairingId", pairingID).Msg("failed to check session interrupt")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"interrupted": interrupted})
}

// POST /session/{pairingId}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.sessionService.End)
}

// POST /session/{pairingId}/pause
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.sessionService.Pause)
}

// POST /session/{pairingId}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.sessionService.Resume)
}

func (h *SessionHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, pairingID string) error) {
	pairingID, ok := h.pairingID(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), pairingID); err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("pairingId", pairingID).Msg("failed to update session state")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *SessionHandler) pairingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	pairingID := chi.URLParam(r, "pairingId")
	if !util.IsValidUUID(pairingID) {
		writeError(w, apperrors.InvalidInput("pairingId", "must be a UUID"))
		return "", false
	}
	return pairingID, true
}
