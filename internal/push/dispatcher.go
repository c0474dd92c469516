package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/config"
	"github.com/edgeoftrust/watch-relay/internal/model"
	redisclient "github.com/edgeoftrust/watch-relay/internal/redis"
)

const pushTimeout = 5 * time.Second

// Notification is the payload handed to the push gateway. The gateway turns
// it into a platform notification; the relay never talks to APNs directly.
type Notification struct {
	DeviceToken  string `json:"deviceToken"`
	RequestID    string `json:"requestId"`
	Kind         string `json:"type"`
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
	RiskTier     string `json:"riskTier"`
	PendingCount int    `json:"pendingCount"`
}

// Dispatcher wakes the remote client. Delivery is best-effort: Push reports
// success or failure but callers must never let the result affect whether a
// request is accepted.
type Dispatcher interface {
	Push(ctx context.Context, deviceToken string, n Notification) bool
}

// HTTPDispatcher posts notifications to a configured gateway URL.
type HTTPDispatcher struct {
	gatewayURL string
	client     *http.Client
	rdb        *redisclient.Client
}

func NewHTTPDispatcher(gatewayURL string, rdb *redisclient.Client) *HTTPDispatcher {
	return &HTTPDispatcher{
		gatewayURL: gatewayURL,
		client: &http.Client{
			Timeout: pushTimeout,
		},
		rdb: rdb,
	}
}

func (d *HTTPDispatcher) Push(ctx context.Context, deviceToken string, n Notification) bool {
	if d.gatewayURL == "" || deviceToken == "" {
		return false
	}
	if !isValidGatewayURL(d.gatewayURL) {
		log.Warn().Str("url", d.gatewayURL).Msg("invalid push gateway URL rejected")
		return false
	}

	n.DeviceToken = deviceToken

	body, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Msg("marshal push payload")
		return false
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.gatewayURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("create push request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn().
			Err(err).
			Str("requestId", n.RequestID).
			Dur("elapsed", elapsed).
			Msg("push gateway error")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Str("requestId", n.RequestID).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("push gateway rejected notification")
		return false
	}

	log.Debug().
		Str("requestId", n.RequestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("push delivered")

	return true
}

// ShouldNotify implements per-pairing debouncing: at most one notification
// per PushDebounceWindow. Degrades to "send it" when redis misbehaves.
func (d *HTTPDispatcher) ShouldNotify(ctx context.Context, pairingID string) bool {
	if d.rdb == nil {
		return true
	}
	ok, err := d.rdb.SetNX(ctx, redisclient.PushDebounceKey(pairingID),
		time.Now().UnixMilli(), config.PushDebounceWindow).Result()
	if err != nil {
		log.Warn().Err(err).Str("pairingId", pairingID).Msg("push debounce check failed, sending anyway")
		return true
	}
	return ok
}

// BuildNotification renders the gateway payload for a pending request.
func BuildNotification(req *model.ApprovalRequest, pendingCount int) Notification {
	title := "Action pending approval"
	body := req.Title
	if pendingCount > 1 {
		title = fmt.Sprintf("%d actions pending", pendingCount)
		body = "Latest: " + req.Title
	}
	return Notification{
		RequestID:    req.RequestID,
		Kind:         string(req.Kind),
		Title:        title,
		Body:         body,
		RiskTier:     string(req.RiskTier),
		PendingCount: pendingCount,
	}
}

func isValidGatewayURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "https" || parsed.Hostname() == "localhost" || parsed.Hostname() == "127.0.0.1"
}
