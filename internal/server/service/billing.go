package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/metrics"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/payment"
)

// BillingService starts checkouts and applies verified payment events.
// Only HandlePaymentEvent ever sets the paid flag.
type BillingService struct {
	users    UserStore
	provider payment.Provider
}

// NewBillingService creates a new billing service.
func NewBillingService(users UserStore, provider payment.Provider) *BillingService {
	return &BillingService{users: users, provider: provider}
}

// StartCheckout opens a hosted checkout session for key and returns its URL.
// The user's paid flag is left untouched until the provider confirms payment.
func (s *BillingService) StartCheckout(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrMissingIdentity
	}

	url, err := s.provider.CreateCheckoutSession(ctx, key)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		return "", infraError("create checkout session", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("success").Inc()
	slog.Info("checkout session created", "identity_key", key)
	return url, nil
}

// PaymentOutcome describes how a webhook delivery was handled.
type PaymentOutcome struct {
	EventType string
	// Duplicate is true when the event id was processed before.
	Duplicate bool
	// Applied is true when the delivery granted entitlement.
	Applied bool
}

// HandlePaymentEvent verifies a provider delivery and, for confirmed
// payments, marks the correlated user as paid. Deliveries that fail
// verification never reach the store. Replays of a processed event are
// reported as duplicates and change nothing.
func (s *BillingService) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (*PaymentOutcome, error) {
	evt, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, payment.ErrInvalidPayload):
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		default:
			return nil, err
		}
	}

	out := &PaymentOutcome{EventType: evt.Type}
	if !evt.Paid {
		slog.Info("payment webhook ignored", "event_id", evt.ID, "type", evt.Type)
		return out, nil
	}
	if evt.IdentityKey == "" {
		return nil, fmt.Errorf("%w: %s without identity key", ErrInvalidPayload, evt.Type)
	}

	// The event id is recorded only after the grant; a failed grant is
	// retried on redelivery.
	if _, _, err := s.users.CreateIfAbsent(ctx, evt.IdentityKey); err != nil {
		return nil, infraError("resolve paying user", err)
	}
	user, err := s.users.SetPaid(ctx, evt.IdentityKey, true)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infraError("set paid", err)
	}
	if evt.CustomerID != "" && (user.StripeCustomerID == nil || *user.StripeCustomerID != evt.CustomerID) {
		if err := s.users.SetStripeCustomer(ctx, evt.IdentityKey, evt.CustomerID); err != nil {
			slog.Error("failed to store customer id", "identity_key", evt.IdentityKey, "error", err)
		}
	}

	firstSeen, err := s.users.RecordPaymentEvent(ctx, evt.ID, evt.IdentityKey, evt.Type)
	if err != nil {
		return nil, infraError("record payment event", err)
	}

	out.Duplicate = !firstSeen
	out.Applied = firstSeen
	if out.Duplicate {
		slog.Info("payment webhook replayed", "event_id", evt.ID, "identity_key", evt.IdentityKey)
	} else {
		slog.Info("payment confirmed", "event_id", evt.ID, "identity_key", evt.IdentityKey, "type", evt.Type)
	}
	return out, nil
}
