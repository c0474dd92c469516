package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/util"
)

type PairingHandler struct {
	pairingService *service.PairingService
}

func NewPairingHandler(pairingService *service.PairingService) *PairingHandler {
	return &PairingHandler{pairingService: pairingService}
}

func (h *PairingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Post("/complete", h.Complete)
	r.Get("/{sessionId}/status", h.Status)

	return r
}

// POST /pair
// The CLI side opens a pairing session and shows the code to the user.
func (h *PairingHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.pairingService.Create(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to create pairing session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      session.Code,
		"sessionId": session.SessionID,
		"expiresAt": session.ExpiresAt.Format(time.RFC3339),
	})
}

type completeRequest struct {
	Code        string `json:"code"`
	DeviceToken string `json:"deviceToken"`
}

// POST /pair/complete
// The remote device redeems the code it was shown.
func (h *PairingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Code == "" {
		writeError(w, apperrors.MissingRequired("code"))
		return
	}
	// Reject malformed codes before touching the store; the lookup only ever
	// sees normalized XXXX-XXXX codes.
	if !util.IsValidPairingCode(strings.ToUpper(strings.TrimSpace(req.Code))) {
		writeError(w, apperrors.InvalidPairingCode())
		return
	}

	session, err := h.pairingService.Complete(r.Context(), req.Code, req.DeviceToken)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to complete pairing")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"pairingId": session.PairingID,
	})
}

// GET /pair/{sessionId}/status
// Polled by the CLI pairing helper until the code is redeemed.
func (h *PairingHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	paired, pairingID, err := h.pairingService.Status(r.Context(), sessionID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to check pairing status")
		}
		writeError(w, err)
		return
	}

	resp := map[string]any{"paired": paired}
	if paired {
		resp["pairingId"] = pairingID
	}
	writeJSON(w, http.StatusOK, resp)
}
