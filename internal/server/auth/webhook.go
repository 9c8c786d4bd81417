package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// Headers of the identity provider's signed webhook deliveries.
const (
	HeaderWebhookID        = "Svix-Id"
	HeaderWebhookTimestamp = "Svix-Timestamp"
	HeaderWebhookSignature = "Svix-Signature"
)

var ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

// WebhookVerifier checks Svix signatures on identity provider webhooks.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier parses a "whsec_" prefixed base64 secret. A secret
// without the prefix is used as raw key bytes.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook secret must be set")
	}

	var (
		wh  *svix.Webhook
		err error
	)
	if strings.HasPrefix(secret, "whsec_") {
		wh, err = svix.NewWebhook(secret)
	} else {
		wh, err = svix.NewWebhookRaw([]byte(secret))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify checks the delivery headers against body, including the
// timestamp tolerance window.
func (v *WebhookVerifier) Verify(header http.Header, body []byte) error {
	if err := v.wh.Verify(body, header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

// Sign returns the signature header value ("v1,<base64>") for a delivery.
func (v *WebhookVerifier) Sign(id string, ts time.Time, body []byte) (string, error) {
	return v.wh.Sign(id, ts, body)
}
