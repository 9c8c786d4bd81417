package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// Repository is the Postgres-backed user record store.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// FindByIdentity loads a user and its upload history in insertion order.
func (r *Repository) FindByIdentity(ctx context.Context, key string) (*User, error) {
	return findUser(ctx, r.db.Pool, key, false)
}

// CreateIfAbsent inserts an empty record for key unless one exists. created
// reports whether this call inserted the row.
func (r *Repository) CreateIfAbsent(ctx context.Context, key string) (*User, bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (identity_key) VALUES ($1)
		ON CONFLICT (identity_key) DO NOTHING
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := r.FindByIdentity(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return user, tag.RowsAffected() == 1, nil
}

// AppendUpload locks the user row, re-evaluates allow against the locked
// state and inserts the entry in the same transaction.
func (r *Repository) AppendUpload(ctx context.Context, key string, entry Upload, allow AllowFunc) (*User, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin upload transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := findUser(ctx, tx, key, true)
	if err != nil {
		return nil, err
	}

	if allow != nil {
		if err := allow(user.HasPaid, user.UploadCount()); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO uploads (id, identity_key, position, file_name, transcription, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID,
		key,
		user.UploadCount(),
		entry.FileName,
		entry.Transcription,
		entry.SizeBytes,
		entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append upload: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE users SET updated_at = NOW() WHERE identity_key = $1", key); err != nil {
		return nil, fmt.Errorf("failed to touch user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit upload: %w", err)
	}

	user.Uploads = append(user.Uploads, entry)
	return user, nil
}

// SetPaid updates the payment flag.
func (r *Repository) SetPaid(ctx context.Context, key string, paid bool) (*User, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET has_paid = $1, updated_at = NOW()
		WHERE identity_key = $2
	`, paid, key)
	if err != nil {
		return nil, fmt.Errorf("failed to set paid flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}
	return r.FindByIdentity(ctx, key)
}

// SetStripeCustomer remembers the Stripe customer created for a user.
func (r *Repository) SetStripeCustomer(ctx context.Context, key, customerID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET stripe_customer_id = $1, updated_at = NOW()
		WHERE identity_key = $2
	`, customerID, key)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordPaymentEvent stores a processed webhook event id. firstSeen is false
// when the event was recorded before.
func (r *Repository) RecordPaymentEvent(ctx context.Context, eventID, key, eventType string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO payment_events (event_id, identity_key, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, key, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record payment event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE has_paid),
			(SELECT COUNT(*) FROM uploads)
	`).Scan(&stats.TotalUsers, &stats.PaidUsers, &stats.TotalUploads)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func findUser(ctx context.Context, q querier, key string, forUpdate bool) (*User, error) {
	query := `
		SELECT identity_key, has_paid, stripe_customer_id, created_at, updated_at
		FROM users WHERE identity_key = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	user := &User{}
	err := q.QueryRow(ctx, query, key).Scan(
		&user.IdentityKey,
		&user.HasPaid,
		&user.StripeCustomerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, file_name, transcription, size_bytes, created_at
		FROM uploads WHERE identity_key = $1
		ORDER BY position ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	user.Uploads = []Upload{}
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.ID, &u.FileName, &u.Transcription, &u.SizeBytes, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		user.Uploads = append(user.Uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read uploads: %w", err)
	}
	return user, nil
}
