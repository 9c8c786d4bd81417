package database

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process user store with the same semantics as
// Repository. It backs STORE_DRIVER=memory and the tests.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[string]*User
	events map[string]struct{}
	now    func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[string]*User),
		events: make(map[string]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) FindByIdentity(_ context.Context, key string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryRepository) CreateIfAbsent(_ context.Context, key string) (*User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[key]; ok {
		return cloneUser(u), false, nil
	}
	now := m.now()
	u := &User{IdentityKey: key, Uploads: []Upload{}, CreatedAt: now, UpdatedAt: now}
	m.users[key] = u
	return cloneUser(u), true, nil
}

func (m *MemoryRepository) AppendUpload(_ context.Context, key string, entry Upload, allow AllowFunc) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	if allow != nil {
		if err := allow(u.HasPaid, u.UploadCount()); err != nil {
			return nil, err
		}
	}
	u.Uploads = append(u.Uploads, entry)
	u.UpdatedAt = m.now()
	return cloneUser(u), nil
}

func (m *MemoryRepository) SetPaid(_ context.Context, key string, paid bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.HasPaid = paid
	u.UpdatedAt = m.now()
	return cloneUser(u), nil
}

func (m *MemoryRepository) SetStripeCustomer(_ context.Context, key, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return ErrUserNotFound
	}
	id := customerID
	u.StripeCustomerID = &id
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) RecordPaymentEvent(_ context.Context, eventID, _, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.events[eventID]; seen {
		return false, nil
	}
	m.events[eventID] = struct{}{}
	return true, nil
}

func (m *MemoryRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{TotalUsers: int64(len(m.users))}
	for _, u := range m.users {
		if u.HasPaid {
			stats.PaidUsers++
		}
		stats.TotalUploads += int64(len(u.Uploads))
	}
	return stats, nil
}

func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

func cloneUser(u *User) *User {
	c := *u
	c.Uploads = append([]Upload(nil), u.Uploads...)
	if c.Uploads == nil {
		c.Uploads = []Upload{}
	}
	if u.StripeCustomerID != nil {
		id := *u.StripeCustomerID
		c.StripeCustomerID = &id
	}
	return &c
}
