package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/registration/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := middleware.NewRateLimiter(3, 60)

	for i := 0; i < 3; i++ {
		allowed, _, _ := rl.Allow("key")
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, remaining, _ := rl.Allow("key")
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	// other keys are unaffected
	allowed, _, _ = rl.Allow("other")
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := middleware.RateLimit(2, 60, middleware.BypassConfig{})(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:1234"
		return r
	}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req())
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Remaining"))
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// a different client still passes
	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "203.0.113.8:1234"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRateLimitKeysByEmail(t *testing.T) {
	handler := middleware.AuthRateLimit(2, 60, middleware.BypassConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// the body must still be readable after the email peek
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Contains(t, string(body), "email")
			w.WriteHeader(http.StatusOK)
		}))

	post := func(remoteAddr, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	// same email from rotating IPs shares one budget
	assert.Equal(t, http.StatusOK, post("203.0.113.1:1000", `{"email":"Cible@lycee.fr"}`).Code)
	assert.Equal(t, http.StatusOK, post("203.0.113.2:1000", `{"email":"cible@LYCEE.fr"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.3:1000", `{"email":"cible@lycee.fr"}`).Code)

	// a different account is not affected
	assert.Equal(t, http.StatusOK, post("203.0.113.1:1000", `{"email":"autre@lycee.fr"}`).Code)
}

func TestAuthRateLimitOversizedBody(t *testing.T) {
	// past the peek limit the body must reach the handler intact and the
	// limiter must fall back to the client IP
	padding := strings.Repeat("x", 70000)
	body := `{"email":"cible@lycee.fr","padding":"` + padding + `"}`

	var seen string
	handler := middleware.AuthRateLimit(2, 60, middleware.BypassConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			seen = string(b)
			w.WriteHeader(http.StatusOK)
		}))

	post := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, post("203.0.113.1:1000").Code)
	assert.Len(t, seen, len(body), "handler must see the full body, not a truncated one")
	assert.True(t, strings.HasSuffix(seen, `"}`), "tail of the body must survive the peek")

	// same email over the limit from a fresh IP still passes: oversized
	// bodies are keyed by IP, not by the email they may contain
	assert.Equal(t, http.StatusOK, post("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusOK, post("203.0.113.2:1000").Code)
}

func TestRateLimitBypass(t *testing.T) {
	t.Run("trusted env honors the internal header", func(t *testing.T) {
		handler := middleware.RateLimit(1, 60, middleware.BypassConfig{TrustedEnv: true})(okHandler())

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "203.0.113.9:1234"
			req.Header.Set("X-Internal-Service", "scheduler")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	})

	t.Run("untrusted env ignores the header", func(t *testing.T) {
		handler := middleware.RateLimit(1, 60, middleware.BypassConfig{})(okHandler())

		first := httptest.NewRequest("GET", "/", nil)
		first.RemoteAddr = "203.0.113.9:1234"
		first.Header.Set("X-Internal-Service", "spoofed")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, first)
		assert.Equal(t, http.StatusOK, rr.Code)

		second := httptest.NewRequest("GET", "/", nil)
		second.RemoteAddr = "203.0.113.9:1234"
		second.Header.Set("X-Internal-Service", "spoofed")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, second)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})

	t.Run("trusted env exempts loopback", func(t *testing.T) {
		handler := middleware.RateLimit(1, 60, middleware.BypassConfig{TrustedEnv: true})(okHandler())

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "127.0.0.1:4000"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	})
}
