// Package mock provides a test double for the transcribe.Provider interface.
//
// Set Result/Err for a fixed answer, or Results for a scripted sequence. With
// Block set, every call waits until its context is done or Release is called,
// which lets tests hold the orchestrator in the awaiting-transcription state.
//
// Example:
//
//	p := &mock.Provider{Results: []string{"hello", "hey jarvis"}}
//	res, _ := p.Transcribe(ctx, take) // "hello"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned when Results is exhausted.
	Result types.RecognitionResult

	// Results are returned in order, one per call, before falling back to
	// Result.
	Results []string

	// Err, if non-nil, is returned instead of any result.
	Err error

	// Block makes each call wait for Release or context cancellation.
	Block bool

	// Calls records every take passed to Transcribe.
	Calls []types.AudioTake

	release chan struct{}
}

// Transcribe records the call and returns the scripted answer.
func (p *Provider) Transcribe(ctx context.Context, take types.AudioTake) (types.RecognitionResult, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, take)
	if p.release == nil {
		p.release = make(chan struct{})
	}
	release := p.release
	block := p.Block
	p.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return types.RecognitionResult{}, ctx.Err()
		case <-release:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return types.RecognitionResult{}, p.Err
	}
	if len(p.Results) > 0 {
		text := p.Results[0]
		p.Results = p.Results[1:]
		return types.RecognitionResult{Text: text}, nil
	}
	return p.Result, nil
}

// Release unblocks every call currently waiting.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release == nil {
		p.release = make(chan struct{})
	}
	close(p.release)
	p.release = make(chan struct{})
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
