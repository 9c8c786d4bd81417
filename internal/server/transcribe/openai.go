package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = oai.AudioModelWhisper1

// OpenAI transcribes through the OpenAI audio transcription API.
type OpenAI struct {
	client   oai.Client
	model    string
	language string
}

var _ Transcriber = (*OpenAI)(nil)

// OpenAIOptions configures NewOpenAI. Zero values use the API defaults.
type OpenAIOptions struct {
	Model    string
	Language string
	BaseURL  string
	Timeout  time.Duration
}

// NewOpenAI constructs an OpenAI transcriber.
func NewOpenAI(apiKey string, opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: opts.Timeout,
		}))
	}

	return &OpenAI{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: opts.Language,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if audio.Size == 0 {
		return "", ErrEmptyAudio
	}
	f, err := os.Open(audio.Path)
	if err != nil {
		return "", fmt.Errorf("openai stt: open staged audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(f, audio.FileName, ""),
		Model:          o.model,
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if o.language != "" {
		params.Language = param.NewOpt(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
