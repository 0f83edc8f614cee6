// Package jarvis provides the conversation client for the Jarvis backend.
//
//	POST {base}/api/chat
//	Content-Type: application/json  {"message": "..."}
//	-> 200 {"response": "...", "audio": "<base64 mp3>"}
package jarvis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/remote"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultBaseURL is where the backend listens out of the box.
const DefaultBaseURL = "http://localhost:8000"

const chatPath = "/api/chat"

// Compile-time assertion that Client implements converse.Provider.
var _ converse.Provider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client implements converse.Provider against the Jarvis backend.
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

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response *string `json:"response"`
	Audio    *string `json:"audio"`
}

// Converse implements converse.Provider. A body that is not JSON, lacks either
// field, or carries audio that is not valid base64 is a [types.ErrService].
func (c *Client) Converse(ctx context.Context, text string) (types.ReplyPayload, error) {
	payload, err := json.Marshal(chatRequest{Message: text})
	if err != nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := remote.Do(c.httpClient, req)
	if err != nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: %w", remote.Malformed("chat response", err))
	}
	if out.Response == nil || out.Audio == nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: %w", remote.Malformed("chat response", errors.New("missing response or audio")))
	}

	audio, err := base64.StdEncoding.DecodeString(*out.Audio)
	if err != nil {
		return types.ReplyPayload{}, fmt.Errorf("jarvis: chat: %w", remote.Malformed("reply audio", err))
	}
	return types.ReplyPayload{Text: *out.Response, Audio: audio}, nil
}
