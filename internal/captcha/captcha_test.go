package captcha_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/registration/internal/captcha"
	"github.com/acectf/registration/pkg/config"
)

func newVerifier(secret, verifyURL string) *captcha.Verifier {
	return captcha.NewVerifier(&config.CaptchaConfig{
		Secret:    secret,
		VerifyURL: verifyURL,
	}, slog.Default())
}

func TestVerify_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret-key", r.Form.Get("secret"))
		assert.Equal(t, "valid-token", r.Form.Get("response"))
		assert.Equal(t, "198.51.100.4", r.Form.Get("remoteip"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	v := newVerifier("secret-key", server.URL)
	assert.True(t, v.Required())
	assert.True(t, v.Verify(context.Background(), "valid-token", "198.51.100.4"))
}

func TestVerify_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer server.Close()

	v := newVerifier("secret-key", server.URL)
	assert.False(t, v.Verify(context.Background(), "bad-token", ""))
}

func TestVerify_FailsClosed(t *testing.T) {
	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		v := newVerifier("secret-key", server.URL)
		assert.False(t, v.Verify(context.Background(), "any-token", ""))
	})

	t.Run("malformed response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		v := newVerifier("secret-key", server.URL)
		assert.False(t, v.Verify(context.Background(), "any-token", ""))
	})

	t.Run("missing secret", func(t *testing.T) {
		v := newVerifier("", "http://unused.invalid")
		assert.False(t, v.Required())
		assert.False(t, v.Verify(context.Background(), "any-token", ""))
	})
}
