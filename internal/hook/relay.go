package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

// SubmitRequest is the approval question the hook sends to the relay.
type SubmitRequest struct {
	PairingID   string `json:"pairingId"`
	Kind        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	Command     string `json:"command,omitempty"`
	RiskTier    string `json:"riskTier,omitempty"`
	TTLSeconds  int    `json:"ttlSeconds,omitempty"`
}

// RelayClient is the hook's view of the relay server.
type RelayClient interface {
	Submit(ctx context.Context, req SubmitRequest) (requestID string, err error)
	Poll(ctx context.Context, pairingID, requestID string) (model.DecisionStatus, error)
	// SessionEnded and SessionPaused report remote session control flags.
	// Errors degrade to false: an unreachable relay must not flip the
	// session state, only the submit/poll path decides availability.
	SessionEnded(ctx context.Context, pairingID string) bool
	SessionPaused(ctx context.Context, pairingID string) bool
}

type HTTPRelayClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRelayClient(baseURL string) *HTTPRelayClient {
	return &HTTPRelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPRelayClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/approval", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", relayError(resp)
	}

	var result struct {
		RequestID string `json:"requestId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.RequestID == "" {
		return "", fmt.Errorf("relay returned no request id")
	}
	return result.RequestID, nil
}

func (c *HTTPRelayClient) Poll(ctx context.Context, pairingID, requestID string) (model.DecisionStatus, error) {
	url := fmt.Sprintf("%s/approval/%s/%s", c.baseURL, pairingID, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// A 404 or 410 means the relay no longer knows the request; the implicit
	// decision is a denial.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		io.Copy(io.Discard, resp.Body)
		return model.DecisionStatusExpired, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", relayError(resp)
	}

	var result struct {
		Decision model.DecisionStatus `json:"decision"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Decision, nil
}

func (c *HTTPRelayClient) SessionEnded(ctx context.Context, pairingID string) bool {
	var result struct {
		SessionActive *bool `json:"sessionActive"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/session/%s/status", c.baseURL, pairingID), &result); err != nil {
		return false
	}
	return result.SessionActive != nil && !*result.SessionActive
}

func (c *HTTPRelayClient) SessionPaused(ctx context.Context, pairingID string) bool {
	var result struct {
		Interrupted bool `json:"interrupted"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/session/%s/interrupt", c.baseURL, pairingID), &result); err != nil {
		return false
	}
	return result.Interrupted
}

func (c *HTTPRelayClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relayError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func relayError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		return fmt.Errorf("relay error %s: %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("relay returned status %d", resp.StatusCode)
}
