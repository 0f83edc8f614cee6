package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/faiface/beep"
)

// Compile-time interface assertion.
var _ Player = (*DevicePlayer)(nil)

// DevicePlayer implements [Player] on top of a single [Sink]. At most one
// stream plays at any time; starting a new one stops the previous stream and
// waits for its sink call to return first.
type DevicePlayer struct {
	sink   Sink
	decode Decoder

	mu  sync.Mutex
	cur *playback
}

type playback struct {
	cancel    context.CancelFunc
	done      chan struct{}
	preempted atomic.Bool
}

// PlayerOption configures a [DevicePlayer].
type PlayerOption func(*DevicePlayer)

// WithDecoder replaces [DecodeMP3] as the payload decoder.
func WithDecoder(d Decoder) PlayerOption {
	return func(p *DevicePlayer) {
		p.decode = d
	}
}

// NewDevicePlayer returns a player that renders on sink.
func NewDevicePlayer(sink Sink, opts ...PlayerOption) *DevicePlayer {
	p := &DevicePlayer{sink: sink, decode: DecodeMP3}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements [Player].
func (p *DevicePlayer) Play(ctx context.Context, data []byte) (<-chan error, error) {
	stream, format, err := p.decode(data)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	pctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel, done: make(chan struct{})}
	p.cur = pb

	result := make(chan error, 1)
	go func() {
		defer close(pb.done)
		defer cancel()

		err := p.sink.Play(pctx, stream, format)
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("audio: closing decoded stream", "err", cerr)
		}
		switch {
		case err == nil:
		case pb.preempted.Load():
			err = ErrPreempted
		case !errors.Is(err, context.Canceled):
			err = fmt.Errorf("audio: play: %w", err)
		}
		result <- err
		close(result)
	}()
	return result, nil
}

// Stop implements [Player].
func (p *DevicePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Close stops playback and releases the sink when it owns a device.
func (p *DevicePlayer) Close() error {
	p.Stop()
	if c, ok := p.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *DevicePlayer) stopLocked() {
	if p.cur == nil {
		return
	}
	p.cur.preempted.Store(true)
	p.cur.cancel()
	<-p.cur.done
	p.cur = nil
}

// Drained wraps s so that done is called once after its last sample. Sinks
// that only learn about completion through the stream itself (such as the
// global beep speaker) use it to unblock Play.
func Drained(s beep.Streamer, done func()) beep.Streamer {
	return beep.Seq(s, beep.Callback(done))
}

// Silent is a [Sink] that consumes streams without producing sound. It stands
// in for the speaker on hosts that have none, so replies still complete.
type Silent struct{}

var _ Sink = Silent{}

// Play implements [Sink].
func (Silent) Play(ctx context.Context, s beep.Streamer, _ beep.Format) error {
	buf := make([][2]float64, 512)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := s.Stream(buf); !ok {
			return nil
		}
	}
}
