package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/entitlement"
)

// IdentityEventUserCreated is sent by the identity provider when a new
// account signs up.
const IdentityEventUserCreated = "user.created"

// Profile is the caller's view of their own record.
type Profile struct {
	IdentityKey string         `json:"identityKey"`
	HasPaid     bool           `json:"hasPaid"`
	UploadsUsed int            `json:"uploadsUsed"`
	Remaining   *int           `json:"remaining"` // nil when unlimited
	Uploads     []UploadRecord `json:"uploads"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// UploadRecord is one history entry as returned to clients.
type UploadRecord struct {
	ID            uuid.UUID `json:"id"`
	FileName      string    `json:"fileName"`
	Transcription string    `json:"transcription"`
	SizeBytes     int64     `json:"sizeBytes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IdentityEvent is the identity provider's webhook envelope.
type IdentityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// UserService registers users and exposes their records.
type UserService struct {
	users UserStore
}

// NewUserService creates a new user service.
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Register creates a record for key unless one exists. created reports
// whether this call inserted it; a repeat call is not an error.
func (s *UserService) Register(ctx context.Context, key string) (*database.User, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrMissingIdentity
	}

	user, created, err := s.users.CreateIfAbsent(ctx, key)
	if err != nil {
		return nil, false, infraError("create user", err)
	}
	if created {
		slog.Info("user registered", "identity_key", key)
	}
	return user, created, nil
}

// Profile returns the caller's record with their remaining free uploads.
func (s *UserService) Profile(ctx context.Context, key string) (*Profile, error) {
	if key == "" {
		return nil, ErrMissingIdentity
	}

	user, err := s.users.FindByIdentity(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infraError("load user", err)
	}

	p := &Profile{
		IdentityKey: user.IdentityKey,
		HasPaid:     user.HasPaid,
		UploadsUsed: user.UploadCount(),
		Remaining:   remainingUploads(user),
		Uploads:     make([]UploadRecord, 0, len(user.Uploads)),
		CreatedAt:   user.CreatedAt,
	}
	for _, u := range user.Uploads {
		p.Uploads = append(p.Uploads, UploadRecord{
			ID:            u.ID,
			FileName:      u.FileName,
			Transcription: u.Transcription,
			SizeBytes:     u.SizeBytes,
			CreatedAt:     u.CreatedAt,
		})
	}
	return p, nil
}

// HandleIdentityEvent decodes an identity provider webhook body and creates
// the user for user.created events. Other event types are ignored.
func (s *UserService) HandleIdentityEvent(ctx context.Context, payload []byte) error {
	var evt IdentityEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if evt.Type != IdentityEventUserCreated {
		slog.Info("identity webhook ignored (unhandled type)", "type", evt.Type)
		return nil
	}
	if strings.TrimSpace(evt.Data.ID) == "" {
		return fmt.Errorf("%w: user.created without data.id", ErrInvalidPayload)
	}

	_, _, err := s.Register(ctx, evt.Data.ID)
	return err
}

// Stats returns aggregate counts across all users.
func (s *UserService) Stats(ctx context.Context) (*database.Stats, error) {
	stats, err := s.users.GetStats(ctx)
	if err != nil {
		return nil, infraError("get stats", err)
	}
	return stats, nil
}

// Ping reports whether the user store is reachable.
func (s *UserService) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

func remainingUploads(user *database.User) *int {
	remaining, unlimited := entitlement.Remaining(user.HasPaid, user.UploadCount())
	if unlimited {
		return nil
	}
	return &remaining
}
