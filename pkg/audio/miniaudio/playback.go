package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/faiface/beep"
	"github.com/gen2brain/malgo"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

var _ audio.Sink = (*Playback)(nil)

// Playback renders streams on the default output device. A device is opened
// per stream at the stream's own sample rate, so no resampling is needed.
type Playback struct {
	ctx *Context
}

// NewPlayback returns a sink bound to c.
func (c *Context) NewPlayback() *Playback {
	return &Playback{ctx: c}
}

// Play implements [audio.Sink].
func (p *Playback) Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	mctx, err := p.ctx.malgoContext()
	if err != nil {
		return err
	}

	const channels = 2
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * channels

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = channels
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(format.SampleRate) / 10
	cfg.Periods = 4

	drained := make(chan struct{})
	var once sync.Once
	var finished bool
	var buf [][2]float64

	device, err := malgo.InitDevice(mctx, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := int(frameCount)
			if len(out) < n*bytesPerFrame {
				return
			}
			if cap(buf) < n {
				buf = make([][2]float64, n)
			}
			frames := buf[:n]
			got := 0
			for !finished && got < n {
				k, ok := s.Stream(frames[got:])
				got += k
				if !ok {
					finished = true
				}
			}
			for i := range n {
				var l, r float64
				if i < got {
					l, r = frames[i][0], frames[i][1]
				}
				binary.LittleEndian.PutUint16(out[i*4:], uint16(toS16(l)))
				binary.LittleEndian.PutUint16(out[i*4+2:], uint16(toS16(r)))
			}
			if finished {
				once.Do(func() { close(drained) })
			}
		},
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init playback device: %w: %w", types.ErrDeviceUnavailable, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("miniaudio: start playback: %w: %w", types.ErrDeviceUnavailable, err)
	}
	defer func() { _ = device.Stop() }()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toS16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	default:
		return int16(v * 32767)
	}
}
