package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pen/3", nil))

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/pen/3")
	assert.Contains(t, out, "bytes=15")
	assert.Regexp(t, `requestID=\S+`, out)
}

func TestLogger_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2, nil, discardLogger())
	l.now = func() time.Time { return now }

	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001").Code)

	rec := do("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000").Code)

	// The bucket refills over time.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1003").Code)
}

func TestRateLimiter_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1, func(*http.Request) string { return "k" }, discardLogger())
	l.now = func() time.Time { return now }

	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	do := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do())
	for range 5 {
		assert.Equal(t, http.StatusTooManyRequests, do())
	}
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do())
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1, nil, discardLogger())
	l.now = func() time.Time { return now }

	l.reserve("a")
	l.reserve("b")
	require.Equal(t, 2, l.clients())

	now = now.Add(visitorTTL + time.Minute)
	l.reserve("c")
	assert.Equal(t, 1, l.clients())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	req.RemoteAddr = "192.0.2.7"
	assert.Equal(t, "192.0.2.7", ClientIP(req))
}

func TestByUser(t *testing.T) {
	type ctxKey struct{}
	userID := func(ctx context.Context) (string, bool) {
		id, ok := ctx.Value(ctxKey{}).(string)
		return id, ok
	}
	key := ByUser(userID)

	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	assert.Equal(t, "ip:192.0.2.7", key(req))

	signedIn := req.WithContext(context.WithValue(req.Context(), ctxKey{}, "u-42"))
	assert.Equal(t, "user:u-42", key(signedIn))

	// A different spoofed address still lands in the same bucket.
	signedIn.Header.Set("X-Forwarded-For", "198.51.100.1")
	signedIn.RemoteAddr = "198.51.100.1:1"
	assert.Equal(t, "user:u-42", key(signedIn))
}
