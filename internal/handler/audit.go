package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/util"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AuditHandler exposes the durable decision trail. The remote client's
// history screen pages through it; the per-request view is for operators
// chasing a disputed decision.
type AuditHandler struct {
	approvalService *service.ApprovalService
}

func NewAuditHandler(approvalService *service.ApprovalService) *AuditHandler {
	return &AuditHandler{approvalService: approvalService}
}

func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{pairingId}", h.History)
	r.Get("/request/{requestId}", h.Trail)

	return r
}

// GET /audit/{pairingId}?limit=&offset=
func (h *AuditHandler) History(w http.ResponseWriter, r *http.Request) {
	pairingID := chi.URLParam(r, "pairingId")
	if !util.IsValidUUID(pairingID) {
		writeError(w, apperrors.InvalidInput("pairingId", "must be a UUID"))
		return
	}

	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		writeError(w, apperrors.InvalidInput("limit", "must be between 1 and 200"))
		return
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		writeError(w, apperrors.InvalidInput("offset", "must not be negative"))
		return
	}

	records, total, err := h.approvalService.DecisionHistory(r.Context(), pairingID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("pairingId", pairingID).Msg("failed to load decision history")
		writeError(w, err)
		return
	}

	if records == nil {
		records = []model.DecisionAudit{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": records,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// GET /audit/request/{requestId}
func (h *AuditHandler) Trail(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	if !util.IsValidUUID(requestID) {
		writeError(w, apperrors.InvalidInput("requestId", "must be a UUID"))
		return
	}

	records, err := h.approvalService.DecisionTrail(r.Context(), requestID)
	if err != nil {
		log.Error().Err(err).Str("requestId", requestID).Msg("failed to load decision trail")
		writeError(w, err)
		return
	}

	if len(records) == 0 {
		writeError(w, apperrors.NotFound("Decision"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": records,
		"total":     len(records),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
