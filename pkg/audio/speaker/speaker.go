// Package speaker provides an [audio.Sink] on the process-wide beep speaker
// (github.com/faiface/beep/speaker). The speaker is initialised once at a fixed
// rate and every stream is resampled to it.
package speaker

import (
	"context"
	"fmt"
	"time"

	"github.com/faiface/beep"
	beepspeaker "github.com/faiface/beep/speaker"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

var _ audio.Sink = (*Sink)(nil)

// DefaultSampleRate is used when New is given a non-positive rate.
const DefaultSampleRate beep.SampleRate = 44100

// resampleQuality trades CPU for fidelity; 4 is plenty for speech.
const resampleQuality = 4

// Sink plays streams on the beep speaker.
type Sink struct {
	rate beep.SampleRate
}

// New initialises the speaker with a 100 ms buffer.
func New(rate beep.SampleRate) (*Sink, error) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if err := beepspeaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("speaker: init: %w: %w", types.ErrDeviceUnavailable, err)
	}
	return &Sink{rate: rate}, nil
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, st beep.Streamer, format beep.Format) error {
	if format.SampleRate != s.rate {
		st = beep.Resample(resampleQuality, format.SampleRate, s.rate, st)
	}

	drained := make(chan struct{})
	beepspeaker.Play(audio.Drained(st, func() { close(drained) }))

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		beepspeaker.Clear()
		return ctx.Err()
	}
}

// Close shuts the speaker down.
func (s *Sink) Close() error {
	beepspeaker.Close()
	return nil
}
