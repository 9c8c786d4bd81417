package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/entitlement"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/payment"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/storage"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/transcribe"
)

const (
	testMaxFileSize   = 1024
	testWebhookSecret = "whsec_service_test"
)

// --- Test doubles ---

// trackingStore records staged ids so tests can assert release.
type trackingStore struct {
	storage.Store
	mu       sync.Mutex
	staged   []string
	released []string
	stageErr error
}

func (s *trackingStore) Stage(name string, r io.Reader) (*storage.StagedFile, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	f, err := s.Store.Stage(name, r)
	if err == nil {
		s.mu.Lock()
		s.staged = append(s.staged, f.ID)
		s.mu.Unlock()
	}
	return f, err
}

func (s *trackingStore) Release(id string) error {
	s.mu.Lock()
	s.released = append(s.released, id)
	s.mu.Unlock()
	return s.Store.Release(id)
}

type failingTranscriber struct{ calls int }

func (f *failingTranscriber) Transcribe(context.Context, transcribe.Audio) (string, error) {
	f.calls++
	return "", errors.New("stt backend down")
}

// checkoutProvider wraps the real Stripe provider for event parsing and
// fakes session creation.
type checkoutProvider struct {
	*payment.Stripe
	url   string
	err   error
	calls int
}

func (p *checkoutProvider) CreateCheckoutSession(context.Context, string) (string, error) {
	p.calls++
	return p.url, p.err
}

type fixture struct {
	users   *database.MemoryRepository
	store   *trackingStore
	uploads *UploadService
	billing *BillingService
	userSvc *UserService
	pay     *checkoutProvider
}

func newFixture(t *testing.T, tr transcribe.Transcriber) *fixture {
	t.Helper()
	if tr == nil {
		tr = transcribe.Placeholder{}
	}
	users := database.NewMemoryRepository()
	store := &trackingStore{Store: storage.NewFileSystemStore(t.TempDir())}
	pay := &checkoutProvider{
		Stripe: payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}),
		url:    "https://checkout.example/cs_1",
	}
	return &fixture{
		users:   users,
		store:   store,
		uploads: NewUploadService(users, store, tr, UploadOptions{MaxFileSize: testMaxFileSize, AutoCreate: true}),
		billing: NewBillingService(users, pay),
		userSvc: NewUserService(users),
		pay:     pay,
	}
}

func audioFile(name string) FileUpload {
	content := "RIFF" + name
	return FileUpload{Name: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func signedEvent(t *testing.T, secret, id, eventType, key, status string) ([]byte, string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"object":"checkout.session","client_reference_id":%q,"payment_status":%q,"metadata":{"identity_key":%q}}}}`,
		id, eventType, key, status, key)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func isPaid(t *testing.T, users *database.MemoryRepository, key string) bool {
	t.Helper()
	u, err := users.FindByIdentity(context.Background(), key)
	if err != nil {
		return false
	}
	return u.HasPaid
}

// --- Upload flow ---

func TestUploadService_FreeTierThenPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i, name := range []string{"a.wav", "b.wav"} {
		res, err := f.uploads.Transcribe(ctx, "u1", audioFile(name))
		if err != nil {
			t.Fatalf("upload %s: unexpected error: %v", name, err)
		}
		if !strings.Contains(res.Transcription, name) {
			t.Errorf("expected transcription to reference %s, got %q", name, res.Transcription)
		}
		if res.UploadsUsed != i+1 {
			t.Errorf("expected %d uploads used, got %d", i+1, res.UploadsUsed)
		}
	}

	_, err := f.uploads.Transcribe(ctx, "u1", audioFile("c.wav"))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded on third upload, got %v", err)
	}
	var limitErr *entitlement.LimitError
	if !errors.As(err, &limitErr) || limitErr.Used != 2 {
		t.Errorf("expected LimitError with 2 used, got %v", err)
	}

	payload, sig := signedEvent(t, testWebhookSecret, "evt_1", payment.EventCheckoutCompleted, "u1", "paid")
	if _, err := f.billing.HandlePaymentEvent(ctx, payload, sig); err != nil {
		t.Fatalf("webhook: unexpected error: %v", err)
	}

	res, err := f.uploads.Transcribe(ctx, "u1", audioFile("c.wav"))
	if err != nil {
		t.Fatalf("upload after payment: unexpected error: %v", err)
	}
	if res.Remaining != nil {
		t.Errorf("expected unlimited remaining for paid user, got %d", *res.Remaining)
	}
}

func TestUploadService_PaidUserIsNeverGated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.users.CreateIfAbsent(ctx, "u1")
	f.users.SetPaid(ctx, "u1", true)

	for i := 0; i < 10; i++ {
		if _, err := f.uploads.Transcribe(ctx, "u1", audioFile(fmt.Sprintf("clip%d.wav", i))); err != nil {
			t.Fatalf("upload %d: unexpected error: %v", i, err)
		}
	}
}

func TestUploadService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		file    FileUpload
		wantErr error
	}{
		{"missing identity", "", audioFile("a.wav"), ErrMissingIdentity},
		{"missing file", "u1", FileUpload{Name: "a.wav"}, ErrMissingFile},
		{"empty file", "u1", FileUpload{Name: "a.wav", Content: strings.NewReader("")}, ErrMissingFile},
		{"declared too large", "u1", FileUpload{Name: "a.wav", Size: testMaxFileSize + 1, Content: strings.NewReader("x")}, ErrFileTooLarge},
		{"actual too large", "u1", FileUpload{Name: "a.wav", Size: 1, Content: strings.NewReader(strings.Repeat("x", testMaxFileSize+1))}, ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.uploads.Transcribe(context.Background(), tt.key, tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if u, err := f.users.FindByIdentity(context.Background(), "u1"); err == nil && u.UploadCount() != 0 {
				t.Errorf("expected no upload recorded, got %d", u.UploadCount())
			}
		})
	}
}

func TestUploadService_ReleasesStagedFile(t *testing.T) {
	t.Run("on success", func(t *testing.T) {
		f := newFixture(t, nil)
		if _, err := f.uploads.Transcribe(context.Background(), "u1", audioFile("a.wav")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertReleased(t, f.store)
	})

	t.Run("on transcriber failure", func(t *testing.T) {
		tr := &failingTranscriber{}
		f := newFixture(t, tr)

		_, err := f.uploads.Transcribe(context.Background(), "u1", audioFile("a.wav"))
		if !errors.Is(err, ErrInfrastructure) {
			t.Fatalf("expected ErrInfrastructure, got %v", err)
		}
		assertReleased(t, f.store)

		u, _ := f.users.FindByIdentity(context.Background(), "u1")
		if u.UploadCount() != 0 {
			t.Error("failed transcription must not consume an upload")
		}
	})

	t.Run("on oversized body", func(t *testing.T) {
		f := newFixture(t, nil)
		file := FileUpload{Name: "a.wav", Content: strings.NewReader(strings.Repeat("x", testMaxFileSize+10))}
		if _, err := f.uploads.Transcribe(context.Background(), "u1", file); !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
		assertReleased(t, f.store)
	})
}

func assertReleased(t *testing.T, s *trackingStore) {
	t.Helper()
	if len(s.staged) != 1 {
		t.Fatalf("expected one staged file, got %d", len(s.staged))
	}
	if len(s.released) != 1 || s.released[0] != s.staged[0] {
		t.Fatalf("expected staged file %s to be released, got %v", s.staged[0], s.released)
	}
	stale, err := s.Stale(-time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected empty staging dir, found %v", stale)
	}
}

func TestUploadService_DeniedUploadSkipsStorageAndTranscriber(t *testing.T) {
	tr := &failingTranscriber{}
	f := newFixture(t, tr)
	ctx := context.Background()

	f.users.CreateIfAbsent(ctx, "u1")
	for _, name := range []string{"a.wav", "b.wav"} {
		f.users.AppendUpload(ctx, "u1", database.Upload{FileName: name}, nil)
	}

	if _, err := f.uploads.Transcribe(ctx, "u1", audioFile("c.wav")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if len(f.store.staged) != 0 || tr.calls != 0 {
		t.Errorf("denied upload touched storage (%d) or transcriber (%d)", len(f.store.staged), tr.calls)
	}
}

func TestUploadService_Admit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.uploads.Admit(ctx, ""); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if err := f.uploads.Admit(ctx, "u1"); err != nil {
		t.Fatalf("expected new user to be admitted, got %v", err)
	}
	for _, name := range []string{"a.wav", "b.wav"} {
		f.users.AppendUpload(ctx, "u1", database.Upload{FileName: name}, nil)
	}
	if err := f.uploads.Admit(ctx, "u1"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded at the limit, got %v", err)
	}
	if len(f.store.staged) != 0 {
		t.Errorf("admission must not stage anything, staged %d", len(f.store.staged))
	}

	strict := NewUploadService(database.NewMemoryRepository(), f.store, transcribe.Placeholder{}, UploadOptions{MaxFileSize: testMaxFileSize})
	if err := strict.Admit(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound without auto-create, got %v", err)
	}
}

func TestUploadService_UnknownUserWithoutAutoCreate(t *testing.T) {
	users := database.NewMemoryRepository()
	svc := NewUploadService(users, storage.NewFileSystemStore(t.TempDir()), transcribe.Placeholder{}, UploadOptions{MaxFileSize: testMaxFileSize})

	if _, err := svc.Transcribe(context.Background(), "ghost", audioFile("a.wav")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUploadService_ConcurrentUploadsRespectLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.uploads.Transcribe(ctx, "u1", audioFile(fmt.Sprintf("c%d.wav", i))); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != entitlement.FreeUploadLimit {
		t.Errorf("expected exactly %d successful uploads, got %d", entitlement.FreeUploadLimit, succeeded)
	}
	u, _ := f.users.FindByIdentity(ctx, "u1")
	if u.UploadCount() != entitlement.FreeUploadLimit {
		t.Errorf("expected %d recorded uploads, got %d", entitlement.FreeUploadLimit, u.UploadCount())
	}
}

func TestUploadService_StagingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.stageErr = os.ErrPermission

	_, err := f.uploads.Transcribe(context.Background(), "u1", audioFile("a.wav"))
	if !errors.Is(err, ErrInfrastructure) || !errors.Is(err, os.ErrPermission) {
		t.Fatalf("expected infrastructure error wrapping the cause, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "memo.wav", "memo.wav"},
		{"strips directory", "/tmp/evil/memo.wav", "memo.wav"},
		{"windows path", "C:\\Users\\me\\memo.mp3", "memo.mp3"},
		{"empty", "", "recording"},
		{"dot", ".", "recording"},
		{"invalid utf-8 dropped", "me\xffmo.wav", "memo.wav"},
		{"nul and control chars dropped", "me\x00mo\n.wav", "memo.wav"},
		{"only invalid bytes", "\xff\xfe", "recording"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	t.Run("long name keeps extension", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("a", 300) + ".wav")
		if len(got) != 255 || !strings.HasSuffix(got, ".wav") {
			t.Errorf("unexpected result length=%d %q", len(got), got[len(got)-8:])
		}
	})

	t.Run("long multibyte name is cut on a rune boundary", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("я", 200) + ".wav")
		if !utf8.ValidString(got) {
			t.Fatalf("result is not valid UTF-8: %q", got)
		}
		if len(got) > 255 || !strings.HasSuffix(got, "я.wav") {
			t.Errorf("unexpected result length=%d suffix=%q", len(got), got[len(got)-8:])
		}
	})
}
