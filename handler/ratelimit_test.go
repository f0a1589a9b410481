package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(10, 10, quietLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	now = now.Add(10 * time.Minute)
	rl.getLimiter("10.0.0.2")

	assert.Equal(t, 1, rl.Prune(5*time.Minute))
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiterKeysByClientIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, quietLogger())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000", "10.0.0.1:2000"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if addr == "10.0.0.1:2000" {
			assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		} else {
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	}
}
