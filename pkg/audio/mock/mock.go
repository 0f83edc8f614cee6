// Package mock provides in-memory implementations of the [audio.Capture],
// [audio.Player], [audio.Source], and [audio.Sink] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	capture := &mock.Capture{Take: types.AudioTake{Data: []byte("wav")}}
//	player := mock.NewPlayer()
//	// ... drive the orchestrator ...
//	player.Finish(nil) // complete the current playback
package mock

import (
	"context"
	"sync"

	"github.com/faiface/beep"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// StartErr is returned by [Capture.Start] when non-nil.
	StartErr error

	// Take is returned by [Capture.Stop] while capturing.
	Take types.AudioTake

	// StopErr is returned by [Capture.Stop] while capturing.
	StopErr error

	// BlockStop makes [Capture.Stop] wait until its context is done, like a
	// device that never finishes draining.
	BlockStop bool

	capturing  bool
	startCalls int
	stopCalls  int
}

var _ audio.Capture = (*Capture)(nil)

// Start implements [audio.Capture].
func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.capturing {
		return audio.ErrAlreadyCapturing
	}
	c.capturing = true
	return nil
}

// Stop implements [audio.Capture].
func (c *Capture) Stop(ctx context.Context) (types.AudioTake, bool, error) {
	c.mu.Lock()
	block := c.BlockStop
	c.mu.Unlock()
	if block {
		<-ctx.Done()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	if !c.capturing {
		return types.AudioTake{}, false, nil
	}
	c.capturing = false
	if c.StopErr != nil {
		return types.AudioTake{}, false, c.StopErr
	}
	return c.Take, true, nil
}

// StartCalls returns how many times Start was called.
func (c *Capture) StartCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls
}

// StopCalls returns how many times Stop was called.
func (c *Capture) StopCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCalls
}

// Capturing reports whether a take is in progress.
func (c *Capture) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player]. Playback never finishes
// on its own; call [Player.Finish] to complete the current stream.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned synchronously by [Player.Play] when non-nil.
	PlayErr error

	played    [][]byte
	stopCalls int
	cur       chan error
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns an idle Player.
func NewPlayer() *Player {
	return &Player{}
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, data []byte) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	p.finishLocked(audio.ErrPreempted)
	p.played = append(p.played, append([]byte(nil), data...))
	p.cur = make(chan error, 1)
	return p.cur, nil
}

// Stop implements [audio.Player].
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	p.finishLocked(audio.ErrPreempted)
}

// Finish completes the current stream with err. It reports false when nothing
// was playing.
func (p *Player) Finish(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return false
	}
	p.finishLocked(err)
	return true
}

func (p *Player) finishLocked(err error) {
	if p.cur == nil {
		return
	}
	p.cur <- err
	close(p.cur)
	p.cur = nil
}

// Played returns a copy of every payload passed to Play, in order.
func (p *Player) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.played))
	copy(out, p.played)
	return out
}

// Playing reports whether a stream is active.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// StopCalls returns how many times Stop was called.
func (p *Player) StopCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCalls
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source]. Frames are injected with [Source.Emit].
type Source struct {
	mu sync.Mutex

	// Fmt is returned by [Source.Format].
	Fmt audio.Format

	// StartErr is returned by [Source.Start] when non-nil.
	StartErr error

	onFrame    func([]byte)
	startCalls int
	stopCalls  int
}

var _ audio.Source = (*Source)(nil)

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	return s.Fmt
}

// Start implements [audio.Source].
func (s *Source) Start(onFrame func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.onFrame = onFrame
	return nil
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	s.onFrame = nil
	return nil
}

// Emit delivers pcm to the registered callback, as a device thread would.
// It is a no-op while stopped.
func (s *Source) Emit(pcm []byte) {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

// StopCalls returns how many times Stop was called.
func (s *Source) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink]. When Block is true Play waits until its
// context is cancelled or [Sink.Release] is called; otherwise it drains the
// stream immediately.
type Sink struct {
	mu sync.Mutex

	// Block keeps Play running until cancelled or released.
	Block bool

	// PlayErr is returned by Play after draining.
	PlayErr error

	release chan struct{}
	calls   int
	samples int
	started chan struct{}
}

var _ audio.Sink = (*Sink)(nil)

// NewSink returns a Sink. Started delivers a value each time Play begins.
func NewSink(block bool) *Sink {
	return &Sink{Block: block, release: make(chan struct{}), started: make(chan struct{}, 16)}
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, st beep.Streamer, _ beep.Format) error {
	s.mu.Lock()
	s.calls++
	release := s.release
	block := s.Block
	playErr := s.PlayErr
	s.mu.Unlock()

	select {
	case s.started <- struct{}{}:
	default:
	}

	if block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
		}
	}

	buf := make([][2]float64, 512)
	n := 0
	for {
		k, ok := st.Stream(buf)
		n += k
		if !ok {
			break
		}
	}
	s.mu.Lock()
	s.samples += n
	s.mu.Unlock()
	return playErr
}

// Started is signalled each time Play begins.
func (s *Sink) Started() <-chan struct{} {
	return s.started
}

// Release unblocks every pending Play call.
func (s *Sink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.release)
	s.release = make(chan struct{})
}

// Calls returns how many times Play was called.
func (s *Sink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Samples returns the total number of samples drained.
func (s *Sink) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}
