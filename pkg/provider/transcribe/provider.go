// Package transcribe defines the Provider interface for turning one recorded
// take into text.
//
// Unlike a streaming recognizer, a transcription provider receives a complete
// [types.AudioTake] (normally a 16 kHz mono WAV file) and answers with a single
// [types.RecognitionResult]. Implementations live in subpackages: jarvis (the
// project's own backend), whisper (whisper.cpp over HTTP or in-process),
// openai, and mock.
//
// Failures are classified with the [types] taxonomy: [types.ErrNetwork] when
// the request could not be sent or no response arrived, [types.ErrService]
// when the service answered with an error status or a malformed payload.
// Providers never retry; the caller decides what a failure means.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe uploads take and returns the recognized text. An empty
	// transcript is a valid result, not an error.
	Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error)

// Transcribe implements [Provider].
func (f ProviderFunc) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	return f(ctx, take)
}
