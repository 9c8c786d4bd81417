package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxWhisperResponse bounds how much of the server response is read.
const maxWhisperResponse = 1 << 20

// Whisper sends staged audio to a whisper.cpp server's /inference endpoint.
type Whisper struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper creates a client for the whisper.cpp server at serverURL.
// A zero timeout means 30 seconds.
func NewWhisper(serverURL, language string, timeout time.Duration) (*Whisper, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: server URL must not be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Whisper{
		serverURL:  serverURL,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	f, err := os.Open(audio.Path)
	if err != nil {
		return "", fmt.Errorf("whisper: open staged audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(audio.FileName))
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	n, err := io.Copy(fw, f)
	if err != nil {
		return "", fmt.Errorf("whisper: write audio data: %w", err)
	}
	if n == 0 {
		return "", ErrEmptyAudio
	}

	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if w.language != "" {
		if err := mw.WriteField("language", w.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxWhisperResponse)).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
