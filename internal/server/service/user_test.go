package service

import (
	"context"
	"errors"
	"testing"
)

func TestUserService_Register(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, created, err := f.userSvc.Register(ctx, "u1")
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}

	_, created, err = f.userSvc.Register(ctx, "u1")
	if err != nil {
		t.Fatalf("second register should not error: %v", err)
	}
	if created {
		t.Error("expected second register to report existing record")
	}

	if _, _, err := f.userSvc.Register(ctx, "   "); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestUserService_Profile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.userSvc.Profile(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if _, err := f.uploads.Transcribe(ctx, "u1", audioFile("a.wav")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := f.userSvc.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UploadsUsed != 1 || p.Remaining == nil || *p.Remaining != 1 {
		t.Errorf("unexpected profile %+v", p)
	}
	if len(p.Uploads) != 1 || p.Uploads[0].FileName != "a.wav" {
		t.Errorf("unexpected history %+v", p.Uploads)
	}
}

func TestUserService_HandleIdentityEvent(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantErr    error
		wantExists bool
	}{
		{"user created", `{"type":"user.created","data":{"id":"user_1"}}`, nil, true},
		{"other type ignored", `{"type":"user.deleted","data":{"id":"user_1"}}`, nil, false},
		{"missing id", `{"type":"user.created","data":{}}`, ErrInvalidPayload, false},
		{"malformed", `{not json`, ErrInvalidPayload, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.userSvc.HandleIdentityEvent(context.Background(), []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			_, findErr := f.users.FindByIdentity(context.Background(), "user_1")
			if exists := findErr == nil; exists != tt.wantExists {
				t.Errorf("expected exists=%v, got %v", tt.wantExists, exists)
			}
		})
	}
}
