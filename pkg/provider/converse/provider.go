// Package converse defines the Provider interface for the conversational
// backend: text in, reply text plus synthesized speech out.
//
// The same call serves ordinary turns and the wake-word reminder; callers
// decide what to do with the reply text. Providers keep whatever dialogue
// state they need on their side and never retry. Failures wrap
// [types.ErrNetwork] or [types.ErrService].
//
// Implementations must be safe for concurrent use.
package converse

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Provider is the abstraction over any conversational backend.
type Provider interface {
	// Converse sends text and returns the backend's reply. The reply audio is
	// already decoded from its transport encoding and is MP3 unless the
	// provider documents otherwise.
	Converse(ctx context.Context, text string) (types.ReplyPayload, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, text string) (types.ReplyPayload, error)

// Converse implements [Provider].
func (f ProviderFunc) Converse(ctx context.Context, text string) (types.ReplyPayload, error) {
	return f(ctx, text)
}
