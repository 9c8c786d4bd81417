// Package transcribe turns staged audio files into text.
//
// The upload flow only depends on the Transcriber interface. Backends are
// interchangeable: a deterministic placeholder, a whisper.cpp HTTP server,
// and the OpenAI audio API. Fallback chains them so a failing backend can
// defer to the next one.
package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/metrics"
)

// ErrEmptyAudio is returned when the staged file has no content.
var ErrEmptyAudio = errors.New("transcribe: audio is empty")

// Audio refers to a staged upload on local disk.
type Audio struct {
	// FileName is the client-supplied name.
	FileName string
	// Path is where the bytes were staged.
	Path string
	Size int64
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Named is implemented by transcribers that report a provider label for
// logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the provider label of t, or "unknown".
func NameOf(t Transcriber) string {
	if n, ok := t.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// Instrumented wraps t so each call is observed in the transcription
// duration histogram.
func Instrumented(t Transcriber) Transcriber {
	return &instrumented{next: t, name: NameOf(t)}
}

type instrumented struct {
	next Transcriber
	name string
}

func (i *instrumented) Name() string { return i.name }

func (i *instrumented) Transcribe(ctx context.Context, audio Audio) (string, error) {
	start := time.Now()
	text, err := i.next.Transcribe(ctx, audio)
	metrics.TranscriptionDuration.WithLabelValues(i.name).Observe(time.Since(start).Seconds())
	return text, err
}
