// Package whisper provides transcription providers backed by whisper.cpp.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] links the whisper.cpp library
// through its cgo bindings and transcribes in-process.
//
// Takes are uploaded as they are (WAV). The native provider decodes them and
// resamples to the 16 kHz mono float samples whisper.cpp expects.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, take)
package whisper

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

const (
	defaultLanguage = "en"

	// sampleRate is the only rate whisper.cpp models accept.
	sampleRate = 16000

	inferencePath = "/inference"
)

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements transcribe.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: remote.NewHTTPClient(60 * time.Second),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements transcribe.Provider. The take is posted as the "file"
// field together with the optional language and model hints.
func (p *Provider) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	name := take.Filename
	if name == "" {
		name = "audio.wav"
	}
	form, err := remote.NewForm("file", name, take.ContentType, take.Data,
		"language", p.language,
		"model", p.model,
		"response_format", "json",
	)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+inferencePath, form.Body)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", form.ContentType)

	body, err := remote.Do(p.httpClient, req)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: %w", remote.Malformed("inference response", err))
	}
	return types.RecognitionResult{Text: strings.TrimSpace(result.Text)}, nil
}
