package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	"github.com/MrWong99/jarvis/pkg/types"
)

// rejected converts a breaker rejection into a network failure so the
// orchestrator classifies it like any other unreachable backend.
func rejected(name string, err error) error {
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("resilience: %s: %w: %w", name, types.ErrNetwork, err)
	}
	return err
}

// expired marks a call that was cancelled because its caller's deadline
// passed. Such a call counts against the backend even when the provider only
// saw [context.Canceled].
func expired(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
	}
	return err
}

// ─── Transcription ───────────────────────────────────────────────────────────

// Transcriber guards a [transcribe.Provider] with a [CircuitBreaker].
type Transcriber struct {
	inner   transcribe.Provider
	breaker *CircuitBreaker
}

var _ transcribe.Provider = (*Transcriber)(nil)

// NewTranscriber wraps p. cfg.Name defaults to "transcription".
func NewTranscriber(p transcribe.Provider, cfg CircuitBreakerConfig) *Transcriber {
	if cfg.Name == "" {
		cfg.Name = "transcription"
	}
	return &Transcriber{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Transcribe forwards to the wrapped provider unless the breaker is open.
func (t *Transcriber) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	var res types.RecognitionResult
	err := t.breaker.Execute(func() error {
		var err error
		res, err = t.inner.Transcribe(ctx, take)
		return expired(ctx, err)
	})
	if err != nil {
		return types.RecognitionResult{}, rejected(t.breaker.Name(), err)
	}
	return res, nil
}

// Breaker exposes the breaker for health reporting.
func (t *Transcriber) Breaker() *CircuitBreaker { return t.breaker }

// ─── Conversation ────────────────────────────────────────────────────────────

// Conversation guards a [converse.Provider] with a [CircuitBreaker].
type Conversation struct {
	inner   converse.Provider
	breaker *CircuitBreaker
}

var _ converse.Provider = (*Conversation)(nil)

// NewConversation wraps p. cfg.Name defaults to "conversation".
func NewConversation(p converse.Provider, cfg CircuitBreakerConfig) *Conversation {
	if cfg.Name == "" {
		cfg.Name = "conversation"
	}
	return &Conversation{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Converse forwards to the wrapped provider unless the breaker is open.
func (c *Conversation) Converse(ctx context.Context, text string) (types.ReplyPayload, error) {
	var reply types.ReplyPayload
	err := c.breaker.Execute(func() error {
		var err error
		reply, err = c.inner.Converse(ctx, text)
		return expired(ctx, err)
	})
	if err != nil {
		return types.ReplyPayload{}, rejected(c.breaker.Name(), err)
	}
	return reply, nil
}

// Breaker exposes the breaker for health reporting.
func (c *Conversation) Breaker() *CircuitBreaker { return c.breaker }
