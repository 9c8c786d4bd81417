package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	headerUserID = "X-User-Id"

	// ReasonLimitExceeded is the server's reason for an exhausted free tier.
	ReasonLimitExceeded = "LimitExceeded"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Reason, e.Message)
}

// IsLimitExceeded reports whether err is the free-tier denial.
func IsLimitExceeded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Reason == ReasonLimitExceeded
}

// Options configure a Client. One of UserID or Token identifies the caller.
type Options struct {
	UserID     string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the voice note server on behalf of one identity.
type Client struct {
	baseURL string
	userID  string
	token   string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("server URL is required")
	}
	if opts.UserID == "" && opts.Token == "" {
		return nil, errors.New("a user id or token is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		userID:  opts.UserID,
		token:   opts.Token,
		http:    hc,
	}, nil
}

// Transcription is the server's answer to an accepted upload.
type Transcription struct {
	Transcription string `json:"transcription"`
	FileName      string `json:"fileName"`
	UploadID      string `json:"uploadId"`
	UploadsUsed   int    `json:"uploadsUsed"`
	Remaining     *int   `json:"remaining"`
}

// Account is the caller's profile as reported by /users/me.
type Account struct {
	IdentityKey string `json:"identityKey"`
	HasPaid     bool   `json:"hasPaid"`
	UploadsUsed int    `json:"uploadsUsed"`
	Remaining   *int   `json:"remaining"`
	Uploads     []struct {
		FileName  string    `json:"fileName"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"uploads"`
}

// Register creates the caller's record. created is false when it already existed.
func (c *Client) Register(ctx context.Context) (created bool, err error) {
	if c.userID == "" {
		return false, errors.New("register requires a user id")
	}
	body, err := json.Marshal(map[string]string{"identityKey": c.userID})
	if err != nil {
		return false, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/users/create", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Created bool `json:"created"`
	}
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	return out.Created, nil
}

// Account fetches the caller's profile.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, err
	}
	var out Account
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkout starts a payment session and returns the URL to complete it.
func (c *Client) Checkout(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/payment/create-checkout-session", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Transcribe uploads one recording. The file is streamed, never buffered whole.
func (c *Client) Transcribe(ctx context.Context, file AudioFile) (*Transcription, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", file.Name)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/voice/transcribe", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Transcription
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set(headerUserID, c.userID)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Reason = payload.Reason
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
