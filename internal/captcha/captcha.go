package captcha

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acectf/registration/pkg/config"
)

// Verifier checks hCaptcha tokens against the siteverify endpoint. It fails
// closed: any verification-service error counts as a failed CAPTCHA, never
// as a pass-through.
type Verifier struct {
	secret    string
	verifyURL string
	http      *http.Client
	logger    *slog.Logger
}

func NewVerifier(cfg *config.CaptchaConfig, logger *slog.Logger) *Verifier {
	return &Verifier{
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		http:      &http.Client{Timeout: 5 * time.Second},
		logger:    logger,
	}
}

// Required reports whether registrations must carry a CAPTCHA token.
func (v *Verifier) Required() bool {
	return v.secret != ""
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) bool {
	if v.secret == "" {
		v.logger.Error("captcha secret not configured")
		return false
	}

	params := url.Values{}
	params.Set("secret", v.secret)
	params.Set("response", token)
	if remoteIP != "" {
		params.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		v.logger.Error("captcha verification request failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		v.logger.Error("captcha verification decode failed", "error", err)
		return false
	}

	if !result.Success {
		v.logger.Warn("captcha verification failed", "errors", result.ErrorCodes, "ip", remoteIP)
		return false
	}
	return true
}
