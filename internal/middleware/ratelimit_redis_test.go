package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/edgeoftrust/watch-relay/internal/redis"
)

func testRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	client, err := redisclient.NewClient("redis://localhost:6379/15")
	if err != nil {
		t.Skip("Redis not available for testing")
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimitMiddlewareOverLimit(t *testing.T) {
	rdb := testRedis(t)
	mw := NewRedisRateLimitMiddleware(rdb.Client, KeyByIP, 1)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/pair/new", nil)
	req.RemoteAddr = "203.0.113.7:4242"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	require.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)
	assert.Equal(t, "Rate limit exceeded", body.Error)
}

func TestRateLimitKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/pair/new", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	assert.Equal(t, "ip:203.0.113.7:4242", KeyByIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, "ip:198.51.100.9", KeyByIP(req))

	// Fallback when the route carries no pairing id.
	assert.Equal(t, "ip:198.51.100.9", KeyByPairingID(req))
}
