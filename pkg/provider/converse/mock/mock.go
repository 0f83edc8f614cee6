// Package mock provides a test double for the converse.Provider interface.
//
// Replies are produced by Reply (a fixed payload) or ReplyFunc (computed from
// the message). With Block set, every call waits until its context is done or
// Release is called.
//
// Example:
//
//	p := &mock.Provider{Reply: types.ReplyPayload{Text: "hi", Audio: mp3}}
//	reply, _ := p.Converse(ctx, "hello")
//	p.Messages() // ["hello"]
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Ensure Provider implements converse.Provider at compile time.
var _ converse.Provider = (*Provider)(nil)

// Provider is a mock implementation of converse.Provider.
type Provider struct {
	mu sync.Mutex

	// Reply is returned when ReplyFunc is nil.
	Reply types.ReplyPayload

	// ReplyFunc, if set, computes the reply for each message.
	ReplyFunc func(text string) types.ReplyPayload

	// Err, if non-nil, is returned instead of a reply.
	Err error

	// Block makes each call wait for Release or context cancellation.
	Block bool

	messages []string
	release  chan struct{}
}

// Converse records the message and returns the configured reply.
func (p *Provider) Converse(ctx context.Context, text string) (types.ReplyPayload, error) {
	p.mu.Lock()
	p.messages = append(p.messages, text)
	if p.release == nil {
		p.release = make(chan struct{})
	}
	release := p.release
	block := p.Block
	p.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return types.ReplyPayload{}, ctx.Err()
		case <-release:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return types.ReplyPayload{}, p.Err
	}
	if p.ReplyFunc != nil {
		return p.ReplyFunc(text), nil
	}
	return p.Reply, nil
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

// Messages returns a copy of every message sent, in order.
func (p *Provider) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}
