package transcribe

import (
	"context"
	"fmt"
)

// Placeholder returns a fixed, deterministic text derived from the file name.
// It never reads the audio.
type Placeholder struct{}

var _ Transcriber = Placeholder{}

func (Placeholder) Name() string { return "placeholder" }

func (Placeholder) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Mock transcription for %q", audio.FileName), nil
}
