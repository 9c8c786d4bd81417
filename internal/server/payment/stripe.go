// Package payment talks to the payment provider: it opens hosted checkout
// sessions and turns signed webhook deliveries into domain events.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"

	// identityMetadataKey carries the identity key on the checkout session.
	identityMetadataKey = "identity_key"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrInvalidPayload   = errors.New("invalid payment event payload")
	ErrNoCheckoutURL    = errors.New("payment provider returned no checkout url")
)

// Event is a verified payment provider notification reduced to what the
// billing flow needs.
type Event struct {
	ID          string
	Type        string
	IdentityKey string
	CustomerID  string
	// Paid is true only for events that confirm a completed payment.
	Paid bool
}

// Provider creates checkout sessions and verifies webhook deliveries.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, identityKey string) (string, error)
	ParseEvent(payload []byte, signature string) (Event, error)
}

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// PriceID selects a catalog price. When empty, an inline price is built
	// from AmountCents, Currency and ProductName.
	PriceID     string
	AmountCents int64
	Currency    string
	ProductName string
	FrontendURL string
}

// Stripe implements Provider with Stripe Checkout.
type Stripe struct {
	cfg StripeConfig

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

var _ Provider = (*Stripe)(nil)

// NewStripe builds a provider backed by its own API client instead of the
// package-level stripe.Key.
func NewStripe(cfg StripeConfig) *Stripe {
	api := client.New(strings.TrimSpace(cfg.SecretKey), nil)
	return &Stripe{
		cfg:                   cfg,
		createCheckoutSession: api.CheckoutSessions.New,
	}
}

// CreateCheckoutSession opens a one-time payment session for identityKey and
// returns the hosted checkout URL. It does not grant anything.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, identityKey string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(frontendURL(s.cfg.FrontendURL, "success")),
		CancelURL:         stripe.String(frontendURL(s.cfg.FrontendURL, "cancel")),
		ClientReferenceID: stripe.String(identityKey),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{s.lineItem()},
		Metadata: map[string]string{
			identityMetadataKey: identityKey,
		},
	}
	params.Context = ctx

	session, err := s.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", ErrNoCheckoutURL
	}
	return session.URL, nil
}

func (s *Stripe) lineItem() *stripe.CheckoutSessionLineItemParams {
	if price := strings.TrimSpace(s.cfg.PriceID); price != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(price),
			Quantity: stripe.Int64(1),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(s.cfg.Currency),
			UnitAmount: stripe.Int64(s.cfg.AmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(s.cfg.ProductName),
			},
		},
	}
}

// ParseEvent verifies the Stripe-Signature header against the webhook secret
// and decodes checkout events. Other event types are returned with only ID
// and Type set.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	if strings.TrimSpace(signature) == "" {
		return Event{}, ErrInvalidSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}

	switch out.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
		if evt.Data == nil {
			return Event{}, ErrInvalidPayload
		}
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return Event{}, fmt.Errorf("%w: decode checkout.session: %v", ErrInvalidPayload, err)
		}

		out.IdentityKey = strings.TrimSpace(session.Metadata[identityMetadataKey])
		if out.IdentityKey == "" {
			out.IdentityKey = strings.TrimSpace(session.ClientReferenceID)
		}
		if session.Customer != nil {
			out.CustomerID = strings.TrimSpace(session.Customer.ID)
		}

		// Delayed payment methods complete the session before funds arrive.
		out.Paid = out.Type == EventAsyncPaymentSucceeded || session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	}

	return out, nil
}

func frontendURL(base, status string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	q := url.Values{"payment": {status}}
	if status == "success" {
		// Stripe substitutes the literal placeholder; it must stay unescaped.
		return base + "/?" + q.Encode() + "&session_id={CHECKOUT_SESSION_ID}"
	}
	return base + "/?" + q.Encode()
}
