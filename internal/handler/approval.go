package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/util"
)

type ApprovalHandler struct {
	approvalService *service.ApprovalService
}

func NewApprovalHandler(approvalService *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Submit)
	r.Get("/{pairingId}", h.ListPending)
	r.Get("/{pairingId}/{requestId}", h.Poll)
	r.Post("/{pairingId}/{requestId}/respond", h.Respond)

	return r
}

type submitRequest struct {
	PairingID   string `json:"pairingId"`
	Kind        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FilePath    string `json:"filePath"`
	Command     string `json:"command"`
	RiskTier    string `json:"riskTier"`
	TTLSeconds  int    `json:"ttlSeconds"`
}

// POST /approval
// Core API: the hook submits a pending permission question.
func (h *ApprovalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	if !util.IsValidUUID(req.PairingID) {
		writeError(w, apperrors.InvalidInput("pairingId", "must be a UUID"))
		return
	}
	if req.Title == "" {
		writeError(w, apperrors.MissingRequired("title"))
		return
	}

	params := model.CreateApprovalRequestParams{
		PairingID:   req.PairingID,
		Kind:        model.RequestKind(req.Kind),
		Title:       req.Title,
		Description: req.Description,
		FilePath:    req.FilePath,
		Command:     req.Command,
		RiskTier:    model.RiskTier(req.RiskTier),
	}
	if req.TTLSeconds > 0 {
		params.ExpiresAt = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	}

	created, err := h.approvalService.Submit(r.Context(), params)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to submit approval request")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"requestId": created.RequestID,
		"expiresAt": created.ExpiresAt.Format(time.RFC3339),
	})
}

// GET /approval/{pairingId}
// The remote client renders its pending queue from this.
func (h *ApprovalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pairingID := chi.URLParam(r, "pairingId")
	if !util.IsValidUUID(pairingID) {
		writeError(w, apperrors.InvalidInput("pairingId", "must be a UUID"))
		return
	}

	requests, err := h.approvalService.ListPending(r.Context(), pairingID)
	if err != nil {
		log.Error().Err(err).Str("pairingId", pairingID).Msg("failed to list pending requests")
		writeError(w, err)
		return
	}

	if requests == nil {
		requests = []model.ApprovalRequest{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"total":    len(requests),
	})
}

// GET /approval/{pairingId}/{requestId}
// Non-blocking poll; the hook loops on this until a terminal state.
func (h *ApprovalHandler) Poll(w http.ResponseWriter, r *http.Request) {
	pairingID := chi.URLParam(r, "pairingId")
	requestID := chi.URLParam(r, "requestId")
	if !util.IsValidUUID(pairingID) || !util.IsValidUUID(requestID) {
		writeError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	status, decision, err := h.approvalService.Poll(r.Context(), pairingID, requestID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("requestId", requestID).Msg("failed to poll request")
		}
		writeError(w, err)
		return
	}

	resp := map[string]any{"decision": status}
	if decision != nil {
		resp["decidedAt"] = decision.DecidedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type respondRequest struct {
	Approved *bool  `json:"approved"`
	DeviceID string `json:"deviceId"`
}

// POST /approval/{pairingId}/{requestId}/respond
// Records a decision; idempotent, first write wins.
func (h *ApprovalHandler) Respond(w http.ResponseWriter, r *http.Request) {
	pairingID := chi.URLParam(r, "pairingId")
	requestID := chi.URLParam(r, "requestId")
	if !util.IsValidUUID(pairingID) || !util.IsValidUUID(requestID) {
		writeError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Approved == nil {
		writeError(w, apperrors.MissingRequired("approved"))
		return
	}

	decision, err := h.approvalService.Respond(r.Context(), pairingID, requestID, *req.Approved, req.DeviceID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("requestId", requestID).Msg("failed to respond")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"decision":  decision.Status(),
		"decidedAt": decision.DecidedAt.Format(time.RFC3339),
	})
}
