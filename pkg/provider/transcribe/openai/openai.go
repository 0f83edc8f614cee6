// Package openai provides a transcription provider backed by the OpenAI audio
// transcription API (whisper-1, gpt-4o-transcribe, ...).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/jarvis/pkg/provider/remote"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultModel is used when New is given an empty model.
const DefaultModel = "whisper-1"

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Provider implements transcribe.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 input language hint.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Provider. The SDK's automatic retries are disabled; a
// failed request is reported once.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(remote.NewHTTPClient(cfg.timeout)),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	name := take.Filename
	if name == "" {
		name = "audio.wav"
	}
	ctype := take.ContentType
	if ctype == "" {
		ctype = "audio/wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(take.Data), name, ctype),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("openai: transcribe: %w", classify(err))
	}
	return types.RecognitionResult{Text: resp.Text}, nil
}

// classify maps SDK errors onto the error taxonomy: API errors carry an HTTP
// status and are service errors, everything else never got an answer.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", types.ErrService, err)
	}
	return fmt.Errorf("%w: %w", types.ErrNetwork, err)
}
