package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/service"
	"github.com/edgeoftrust/watch-relay/internal/sse"
	"github.com/edgeoftrust/watch-relay/internal/util"
)

type EventsHandler struct {
	broker          *sse.Broker
	approvalService *service.ApprovalService
}

func NewEventsHandler(broker *sse.Broker, approvalService *service.ApprovalService) *EventsHandler {
	return &EventsHandler{
		broker:          broker,
		approvalService: approvalService,
	}
}

// GET /events/{pairingId}
// Streams approval events for a pairing. The wearable client polls instead;
// this stream serves web and development clients.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pairingID := chi.URLParam(r, "pairingId")
	if !util.IsValidUUID(pairingID) {
		writeError(w, apperrors.InvalidInput("pairingId", "must be a UUID"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(pairingID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("pairingId", pairingID).
		Msg("sse connection established")

	ctx := r.Context()

	// Snapshot of whatever is already pending, so a reconnecting client does
	// not miss requests submitted while it was away.
	if pending, err := h.approvalService.ListPending(ctx, pairingID); err != nil {
		log.Error().Err(err).Msg("failed to send pending snapshot")
	} else {
		for i := range pending {
			h.sendEvent(w, flusher, sse.EventApprovalPending, pending[i])
		}
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done:
			return

		case event := <-client.Events:
			h.sendRawEvent(w, flusher, event)

		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal sse event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
	flusher.Flush()
}
