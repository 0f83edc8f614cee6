// Package jarvis provides the transcription client for the Jarvis backend.
//
// The backend exposes a single endpoint:
//
//	POST {base}/api/transcribe
//	Content-Type: multipart/form-data, file field "audio_file"
//	-> 200 {"transcript": "..."}
//
// Usage:
//
//	c, err := jarvis.New("http://localhost:8000")
//	res, err := c.Transcribe(ctx, take)
package jarvis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/provider/remote"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultBaseURL is where the backend listens out of the box.
const DefaultBaseURL = "http://localhost:8000"

const (
	transcribePath = "/api/transcribe"
	formField      = "audio_file"
	defaultName    = "audio.wav"
)

// Compile-time assertion that Client implements transcribe.Provider.
var _ transcribe.Provider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request made by the default HTTP client. Deadlines
// on the request context apply regardless.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client implements transcribe.Provider against the Jarvis backend.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a Client for the backend at baseURL. An empty baseURL selects
// [DefaultBaseURL].
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("jarvis: base URL %q must be http or https", baseURL)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = remote.NewHTTPClient(c.timeout)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type transcribeResponse struct {
	Transcript *string `json:"transcript"`
}

// Transcribe implements transcribe.Provider. A response without a transcript
// field is a [types.ErrService]; an empty transcript is returned as is.
func (c *Client) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	name := take.Filename
	if name == "" {
		name = defaultName
	}
	form, err := remote.NewForm(formField, name, take.ContentType, take.Data)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("jarvis: transcribe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcribePath, form.Body)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("jarvis: transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", form.ContentType)
	req.Header.Set("Accept", "application/json")

	body, err := remote.Do(c.httpClient, req)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("jarvis: transcribe: %w", err)
	}

	var out transcribeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.RecognitionResult{}, fmt.Errorf("jarvis: transcribe: %w", remote.Malformed("transcription response", err))
	}
	if out.Transcript == nil {
		return types.RecognitionResult{}, fmt.Errorf("jarvis: transcribe: %w", remote.Malformed("transcription response", errors.New("missing transcript")))
	}
	return types.RecognitionResult{Text: *out.Transcript}, nil
}
