package service

import (
	"context"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
)

// UserStore is the durable user record store. Both database.Repository and
// database.MemoryRepository satisfy it.
type UserStore interface {
	FindByIdentity(ctx context.Context, key string) (*database.User, error)
	CreateIfAbsent(ctx context.Context, key string) (*database.User, bool, error)
	AppendUpload(ctx context.Context, key string, entry database.Upload, allow database.AllowFunc) (*database.User, error)
	SetPaid(ctx context.Context, key string, paid bool) (*database.User, error)
	SetStripeCustomer(ctx context.Context, key, customerID string) error
	RecordPaymentEvent(ctx context.Context, eventID, key, eventType string) (bool, error)
	GetStats(ctx context.Context) (*database.Stats, error)
	Ping(ctx context.Context) error
}

var (
	_ UserStore = (*database.Repository)(nil)
	_ UserStore = (*database.MemoryRepository)(nil)
)
