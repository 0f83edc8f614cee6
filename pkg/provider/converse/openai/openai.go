// Package openai provides a conversation provider built from two OpenAI API
// calls: a chat completion for the reply text, then speech synthesis of that
// text as MP3.
//
// The provider keeps a rolling window of the most recent exchanges so the
// model sees the conversation so far. Only completed exchanges enter the
// window; a failed call leaves it untouched.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/remote"
	"github.com/MrWong99/jarvis/pkg/types"
)

const (
	// DefaultModel is the chat model used when New is given an empty model.
	DefaultModel = "gpt-4o-mini"

	// DefaultSpeechModel and DefaultVoice select the synthesized voice.
	DefaultSpeechModel = "tts-1"
	DefaultVoice       = "onyx"

	// DefaultHistoryTurns is how many user/assistant exchanges are replayed.
	DefaultHistoryTurns = 10

	// DefaultSystemPrompt sets the assistant persona.
	DefaultSystemPrompt = "You are Jarvis, a concise and helpful voice assistant. " +
		"Answer in one to three short spoken sentences without markdown."
)

// Compile-time assertion that Provider implements converse.Provider.
var _ converse.Provider = (*Provider)(nil)

// Provider implements converse.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	speechModel  string
	voice        string
	systemPrompt string
	maxTurns     int

	mu      sync.Mutex
	history []exchange
}

type exchange struct {
	user, assistant string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	speechModel  string
	voice        string
	systemPrompt string
	maxTurns     int
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithVoice selects the speech model and voice.
func WithVoice(model, voice string) Option {
	return func(c *config) {
		c.speechModel = model
		c.voice = voice
	}
}

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithHistoryTurns sets how many past exchanges are sent with each request.
// Zero disables history.
func WithHistoryTurns(n int) Option {
	return func(c *config) {
		c.maxTurns = n
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Provider. The SDK's automatic retries are disabled.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{
		speechModel:  DefaultSpeechModel,
		voice:        DefaultVoice,
		systemPrompt: DefaultSystemPrompt,
		maxTurns:     DefaultHistoryTurns,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.maxTurns < 0 {
		return nil, fmt.Errorf("openai: history turns must not be negative, got %d", cfg.maxTurns)
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
		client:       oai.NewClient(reqOpts...),
		model:        model,
		speechModel:  cfg.speechModel,
		voice:        cfg.voice,
		systemPrompt: cfg.systemPrompt,
		maxTurns:     cfg.maxTurns,
	}, nil
}

// Converse implements converse.Provider.
func (p *Provider) Converse(ctx context.Context, text string) (types.ReplyPayload, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: p.buildMessages(text),
	})
	if err != nil {
		return types.ReplyPayload{}, fmt.Errorf("openai: chat completion: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return types.ReplyPayload{}, fmt.Errorf("openai: chat completion: %w", remote.Malformed("completion", errors.New("empty choices")))
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)

	audio, err := p.synthesize(ctx, reply)
	if err != nil {
		return types.ReplyPayload{}, err
	}

	p.remember(text, reply)
	return types.ReplyPayload{Text: reply, Audio: audio}, nil
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.speechModel),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", classify(err))
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, remote.DefaultMaxBody))
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w: read body: %w", types.ErrNetwork, err)
	}
	return audio, nil
}

// buildMessages assembles system prompt, remembered exchanges, and text.
func (p *Provider) buildMessages(text string) []oai.ChatCompletionMessageParamUnion {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, 2+2*len(p.history))
	if p.systemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(p.systemPrompt))
	}
	for _, ex := range p.history {
		msgs = append(msgs, oai.UserMessage(ex.user), oai.AssistantMessage(ex.assistant))
	}
	return append(msgs, oai.UserMessage(text))
}

func (p *Provider) remember(user, assistant string) {
	if p.maxTurns == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, exchange{user: user, assistant: assistant})
	if over := len(p.history) - p.maxTurns; over > 0 {
		p.history = append(p.history[:0:0], p.history[over:]...)
	}
}

// Reset forgets the remembered exchanges.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

// classify maps SDK errors onto the error taxonomy.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", types.ErrService, err)
	}
	return fmt.Errorf("%w: %w", types.ErrNetwork, err)
}
