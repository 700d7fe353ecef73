package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Farx1/esilvchatbot/backend/go/pkg/circuitbreaker"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/ratelimiter"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRateLimitByClient(t *testing.T) {
	keyed := ratelimiter.NewKeyed(func() ratelimiter.RateLimiter {
		return ratelimiter.NewFixedWindowCounter(1, time.Hour)
	}, 0, time.Minute)
	h := RateLimitByClient(keyed)(http.HandlerFunc(ok))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"), "same IP, different port")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestCircuitBreak(t *testing.T) {
	breaker := circuitbreaker.New(2, 1, time.Hour)
	failing := CircuitBreak(breaker)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.Equal(t, circuitbreaker.Open, breaker.State())

	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
