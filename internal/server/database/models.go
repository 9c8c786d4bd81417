package database

import (
	"time"

	"github.com/google/uuid"
)

// User is the durable per-user record keyed by the identity provider's id.
type User struct {
	IdentityKey      string
	HasPaid          bool
	StripeCustomerID *string // nil until a confirmed payment event names a customer
	Uploads          []Upload
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UploadCount is the number used for free-tier gating.
func (u *User) UploadCount() int {
	return len(u.Uploads)
}

// Upload is one transcribed file in a user's history. Entries are append-only.
type Upload struct {
	ID            uuid.UUID
	FileName      string
	Transcription string
	SizeBytes     int64
	CreatedAt     time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalUsers   int64
	PaidUsers    int64
	TotalUploads int64
}

// AllowFunc is evaluated against the locked user state right before an upload
// is appended. A non-nil error aborts the append and is returned unchanged.
type AllowFunc func(hasPaid bool, uploadCount int) error
