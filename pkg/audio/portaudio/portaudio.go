// Package portaudio provides an [audio.Source] backed by PortAudio's default
// input device through github.com/gordonklaus/portaudio.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

var _ audio.Source = (*Capture)(nil)

// DefaultFramesPerBuffer is the blocking read size, 64 ms at 16 kHz.
const DefaultFramesPerBuffer = 1024

// Capture reads the default input device with blocking reads on its own
// goroutine while started.
type Capture struct {
	format          audio.Format
	framesPerBuffer int

	mu     sync.Mutex
	stream *pa.Stream
	in     []int16
	quit   chan struct{}
	done   chan struct{}
}

// New initialises PortAudio and opens the default input stream in format.
// Close must be called to terminate PortAudio.
func New(format audio.Format, framesPerBuffer int) (*Capture, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", types.ErrDeviceUnavailable, err)
	}

	c := &Capture{
		format:          format,
		framesPerBuffer: framesPerBuffer,
		in:              make([]int16, framesPerBuffer*format.Channels),
	}
	stream, err := pa.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), framesPerBuffer, c.in)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w: %w", types.ErrDeviceUnavailable, err)
	}
	c.stream = stream
	return c, nil
}

// Format implements [audio.Source].
func (c *Capture) Format() audio.Format { return c.format }

// Start implements [audio.Source].
func (c *Capture) Start(onFrame func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit != nil {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start: %w: %w", types.ErrDeviceUnavailable, err)
	}
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.readLoop(onFrame, c.quit, c.done)
	return nil
}

func (c *Capture) readLoop(onFrame func([]byte), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			// Overflows are recoverable; anything else ends the take early.
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			slog.Warn("portaudio: read failed", "err", err)
			return
		}
		pcm := make([]byte, len(c.in)*2)
		for i, s := range c.in {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}
		onFrame(pcm)
	}
}

// Stop implements [audio.Source].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit == nil {
		return nil
	}
	close(c.quit)
	<-c.done
	c.quit, c.done = nil, nil
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop: %w", err)
	}
	return nil
}

// Close stops reading, closes the stream, and terminates PortAudio.
func (c *Capture) Close() error {
	_ = c.Stop()
	cerr := c.stream.Close()
	terr := pa.Terminate()
	if cerr != nil {
		return fmt.Errorf("portaudio: close stream: %w", cerr)
	}
	if terr != nil {
		return fmt.Errorf("portaudio: terminate: %w", terr)
	}
	return nil
}
