package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestChainOrder(t *testing.T) {
	t.Parallel()
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestRecovery(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "/echo")
}

func TestAccessLog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	out := buf.String()
	assert.Contains(t, out, "request served")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/brew")
}

func TestCORS(t *testing.T) {
	t.Parallel()
	h := CORS(discardLogger(), "https://example.com")(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/echo", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRemoteHostKey(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:5555"
	assert.Equal(t, "192.168.1.1", RemoteHostKey(req))
	req.RemoteAddr = "not-an-address"
	assert.Equal(t, "not-an-address", RemoteHostKey(req))
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		numRequests int
		limit       rate.Limit
		burst       int
		wantLimited int
	}{
		{
			name:        "within burst",
			numRequests: 5,
			limit:       rate.Every(time.Hour),
			burst:       5,
			wantLimited: 0,
		},
		{
			name:        "exceed burst",
			numRequests: 8,
			limit:       rate.Every(time.Hour),
			burst:       5,
			wantLimited: 3,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rl := NewRateLimiter(discardLogger(), RemoteHostKey, tc.limit, tc.burst)
			t.Cleanup(rl.Close)
			h := rl.Limit(okHandler())

			limited := 0
			for range tc.numRequests {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "192.168.1.1:1234"
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				if rec.Code == http.StatusTooManyRequests {
					limited++
				}
			}
			assert.Equal(t, tc.wantLimited, limited)
		})
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(discardLogger(), RemoteHostKey, rate.Every(time.Hour), 1)
	t.Cleanup(rl.Close)
	rl.OnLimit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	h := rl.Limit(okHandler())

	serve := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, serve("10.0.0.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, serve("10.0.0.1:2"))
	assert.Equal(t, http.StatusOK, serve("10.0.0.2:1"))
	require.Equal(t, 2, rl.size())
}

func TestRateLimiterSweep(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(discardLogger(), RemoteHostKey, rate.Limit(1000), 1)
	t.Cleanup(rl.Close)
	h := rl.Limit(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, rl.size())

	// Long enough for the single token to be refilled.
	time.Sleep(10 * time.Millisecond)

	rl.Sweep()
	assert.Equal(t, 0, rl.size())
}
