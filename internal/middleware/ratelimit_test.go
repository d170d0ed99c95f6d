package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 10})

	for i := 0; i < 10; i++ {
		assert.Truef(t, rl.Allow("agent-a"), "call %d", i)
	}
	assert.False(t, rl.Allow("agent-a"))
}

func TestKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 2})

	assert.True(t, rl.Allow("agent-a"))
	assert.True(t, rl.Allow("agent-a"))
	assert.False(t, rl.Allow("agent-a"))

	assert.True(t, rl.Allow("agent-b"))
}

func TestBurstDefaultsToDoubleLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 3})

	for i := 0; i < 6; i++ {
		assert.Truef(t, rl.Allow("k"), "call %d", i)
	}
	assert.False(t, rl.Allow("k"))
}

func TestLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/proxy/user", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different token gets its own bucket.
	other := httptest.NewRequest("GET", "/api/v1/proxy/user", nil)
	other.Header.Set("Authorization", "Bearer tok-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
