package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/database"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/entitlement"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/metrics"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/storage"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/transcribe"
)

// FileUpload is the audio payload of a transcription request.
type FileUpload struct {
	Name string
	// Size is the client-declared size; the staged size is checked again.
	Size    int64
	Content io.Reader
}

// TranscriptionResult is returned after a successful upload.
type TranscriptionResult struct {
	Transcription string    `json:"transcription"`
	FileName      string    `json:"fileName"`
	UploadID      uuid.UUID `json:"uploadId"`
	UploadsUsed   int       `json:"uploadsUsed"`
	Remaining     *int      `json:"remaining"` // nil when unlimited
}

// UploadOptions configures an UploadService.
type UploadOptions struct {
	MaxFileSize int64
	// AutoCreate creates missing user records on upload. When false, an
	// unknown identity gets ErrUserNotFound.
	AutoCreate bool
}

// UploadService gates, stages and transcribes uploaded audio.
type UploadService struct {
	users       UserStore
	store       storage.Store
	transcriber transcribe.Transcriber
	opts        UploadOptions
	now         func() time.Time
}

// NewUploadService creates a new upload service.
func NewUploadService(users UserStore, store storage.Store, transcriber transcribe.Transcriber, opts UploadOptions) *UploadService {
	return &UploadService{
		users:       users,
		store:       store,
		transcriber: transcriber,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Transcribe handles an incoming upload:
// resolves the user, checks the free-tier gate, stages the file, transcribes
// it and appends the result to the user's history. The staged file is
// always released before returning.
func (s *UploadService) Transcribe(ctx context.Context, key string, file FileUpload) (*TranscriptionResult, error) {
	result, err := s.transcribe(ctx, key, file)
	metrics.UploadsTotal.WithLabelValues(uploadOutcome(err)).Inc()
	return result, err
}

func (s *UploadService) transcribe(ctx context.Context, key string, file FileUpload) (*TranscriptionResult, error) {
	// 1. Validate input
	if key == "" {
		return nil, ErrMissingIdentity
	}
	if file.Content == nil {
		return nil, ErrMissingFile
	}
	if file.Size > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	fileName := sanitizeFilename(file.Name)

	// 2. Resolve the user record
	user, err := s.resolveUser(ctx, key)
	if err != nil {
		return nil, err
	}

	// 3. Gate before touching storage or the transcriber
	if err := entitlement.Check(user.HasPaid, user.UploadCount()); err != nil {
		slog.Info("upload denied", "identity_key", key, "uploads_used", user.UploadCount())
		return nil, err
	}

	// 4. Stage the file. One extra byte past the limit detects a lying
	//    client-declared size.
	staged, err := s.store.Stage(fileName, io.LimitReader(file.Content, s.opts.MaxFileSize+1))
	if err != nil {
		return nil, infraError("stage upload", err)
	}
	defer func() {
		if err := s.store.Release(staged.ID); err != nil {
			slog.Error("failed to release staged upload", "staged_id", staged.ID, "error", err)
		}
	}()

	if staged.Size > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if staged.Size == 0 {
		return nil, ErrMissingFile
	}

	// 5. Transcribe
	text, err := s.transcriber.Transcribe(ctx, transcribe.Audio{
		FileName: fileName,
		Path:     staged.Path,
		Size:     staged.Size,
	})
	if err != nil {
		return nil, infraError("transcribe", err)
	}

	// 6. Append with the gate re-evaluated under the record lock
	entry := database.Upload{
		ID:            uuid.New(),
		FileName:      fileName,
		Transcription: text,
		SizeBytes:     staged.Size,
		CreatedAt:     s.now(),
	}
	updated, err := s.users.AppendUpload(ctx, key, entry, entitlement.Check)
	if err != nil {
		switch {
		case errors.Is(err, ErrLimitExceeded):
			slog.Info("upload denied after transcription", "identity_key", key)
			return nil, err
		case errors.Is(err, database.ErrUserNotFound):
			return nil, ErrUserNotFound
		default:
			return nil, infraError("append upload", err)
		}
	}

	slog.Info("upload transcribed",
		"identity_key", key,
		"upload_id", entry.ID,
		"file_name", fileName,
		"size", staged.Size,
		"provider", transcribe.NameOf(s.transcriber),
	)

	return &TranscriptionResult{
		Transcription: text,
		FileName:      fileName,
		UploadID:      entry.ID,
		UploadsUsed:   updated.UploadCount(),
		Remaining:     remainingUploads(updated),
	}, nil
}

// Admit resolves the user and runs the free-tier gate without reading any
// file, so callers can refuse a denied upload before parsing its body.
// Transcribe repeats the check.
func (s *UploadService) Admit(ctx context.Context, key string) error {
	if key == "" {
		return ErrMissingIdentity
	}
	user, err := s.resolveUser(ctx, key)
	if err != nil {
		return err
	}
	if err := entitlement.Check(user.HasPaid, user.UploadCount()); err != nil {
		metrics.UploadsTotal.WithLabelValues(uploadOutcome(err)).Inc()
		slog.Info("upload denied", "identity_key", key, "uploads_used", user.UploadCount())
		return err
	}
	return nil
}

func (s *UploadService) resolveUser(ctx context.Context, key string) (*database.User, error) {
	if s.opts.AutoCreate {
		user, created, err := s.users.CreateIfAbsent(ctx, key)
		if err != nil {
			return nil, infraError("resolve user", err)
		}
		if created {
			slog.Info("user created on first upload", "identity_key", key)
		}
		return user, nil
	}

	user, err := s.users.FindByIdentity(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, infraError("load user", err)
	}
	return user, nil
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInfrastructure):
		return "error"
	default:
		return "rejected"
	}
}

// maxFilenameBytes bounds stored names; truncation keeps whole runes.
const maxFilenameBytes = 255

// sanitizeFilename strips directory components, replaces invalid UTF-8 and
// control characters, and limits length.
func sanitizeFilename(name string) string {
	name = strings.ToValidUTF8(name, "")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Normalize Windows-style backslashes before filepath.Base, which is
	// platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))

	if len(name) > maxFilenameBytes {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = truncateRunes(name[:len(name)-len(ext)], maxFilenameBytes-len(ext)) + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "recording"
	}
	return name
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
