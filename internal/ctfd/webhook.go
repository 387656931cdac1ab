package ctfd

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acectf/registration/pkg/config"
)

// WebhookSender pushes signed team-lifecycle notifications to the CTFd side.
// The signature is a hex HMAC-SHA256 over the exact request body, under the
// shared secret.
type WebhookSender struct {
	url     string
	secret  []byte
	http    *http.Client
	logger  *slog.Logger
	enabled bool
}

func NewWebhookSender(cfg *config.CTFdConfig, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		url:     cfg.WebhookURL,
		secret:  []byte(cfg.WebhookSecret),
		http:    &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		enabled: cfg.WebhookEnabled(),
	}
}

func (w *WebhookSender) Enabled() bool {
	return w.enabled
}

// Sign returns the hex HMAC-SHA256 of the payload.
func (w *WebhookSender) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, w.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send delivers {event, data}. The caller (an asynq handler) gets the error
// back so delivery is retried by the queue, not dropped.
func (w *WebhookSender) Send(ctx context.Context, event string, data interface{}) error {
	if !w.enabled {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", w.Sign(body))

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: endpoint returned %d", event, resp.StatusCode)
	}

	w.logger.Debug("webhook delivered", "event", event)
	return nil
}
