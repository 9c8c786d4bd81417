package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAllFailed is returned when every transcriber in a Fallback fails.
var ErrAllFailed = errors.New("transcribe: all providers failed")

// Fallback tries each transcriber in order and returns the first success.
type Fallback struct {
	entries []Transcriber
}

var _ Transcriber = (*Fallback)(nil)

// NewFallback creates a chain with primary first, then fallbacks in order.
func NewFallback(primary Transcriber, fallbacks ...Transcriber) *Fallback {
	return &Fallback{entries: append([]Transcriber{primary}, fallbacks...)}
}

func (f *Fallback) Name() string {
	names := make([]string, len(f.entries))
	for i, t := range f.entries {
		names[i] = NameOf(t)
	}
	return strings.Join(names, "+")
}

func (f *Fallback) Transcribe(ctx context.Context, audio Audio) (string, error) {
	var lastErr error
	for _, t := range f.entries {
		text, err := t.Transcribe(ctx, audio)
		if err == nil {
			return text, nil
		}
		// A cancelled request will fail the same way on every provider.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		slog.Warn("transcriber failed, trying next",
			"provider", NameOf(t),
			"file_name", audio.FileName,
			"error", err,
		)
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
