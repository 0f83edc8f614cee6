// Package miniaudio provides the [audio.Source] and [audio.Sink] backends for
// the miniaudio library through github.com/gen2brain/malgo.
//
// A single [Context] owns the malgo context; capture and playback devices are
// created from it and must be released before the context is closed.
package miniaudio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Context owns the miniaudio backend context.
type Context struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// Open initialises miniaudio with the platform's default backends.
func Open() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w: %w", types.ErrDeviceUnavailable, err)
	}
	return &Context{ctx: ctx}, nil
}

// Close releases the backend context. It is safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

func (c *Context) malgoContext() (malgo.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return malgo.Context{}, fmt.Errorf("miniaudio: %w: context closed", types.ErrDeviceUnavailable)
	}
	return c.ctx.Context, nil
}
