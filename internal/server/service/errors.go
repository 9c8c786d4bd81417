package service

import (
	"errors"
	"fmt"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/entitlement"
)

// Sentinel errors for the service layer. The HTTP layer maps each to a
// status code and a stable reason string.
var (
	ErrMissingIdentity  = errors.New("missing identity")
	ErrUserNotFound     = errors.New("user not found")
	ErrLimitExceeded    = entitlement.ErrLimitExceeded
	ErrMissingFile      = errors.New("no file provided")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrInfrastructure   = errors.New("infrastructure failure")
)

// infraError marks err as an infrastructure failure while keeping the
// underlying cause reachable through errors.Is/As.
func infraError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}
