package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Compile-time interface assertion.
var _ Capture = (*Recorder)(nil)

// Recorder implements [Capture] over a device [Source]. Incoming frames are
// converted to the take format as they arrive; Stop encodes them as a WAV
// file on an [afero.Fs] and returns its bytes.
//
// By default the file system is in memory and each file is removed once read.
// With [WithArchive] takes are written to the given file system and kept.
type Recorder struct {
	src    Source
	fs     afero.Fs
	format Format
	keep   bool

	mu      sync.Mutex
	active  bool
	conv    *Converter
	pcm     []byte
	started time.Time
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithTakeFormat overrides [TakeFormat].
func WithTakeFormat(f Format) RecorderOption {
	return func(r *Recorder) {
		if f.Valid() {
			r.format = f
		}
	}
}

// WithArchive writes takes to fs and keeps them after they were read.
func WithArchive(fs afero.Fs) RecorderOption {
	return func(r *Recorder) {
		r.fs = fs
		r.keep = true
	}
}

// NewRecorder returns a Recorder reading from src. A nil src yields a recorder
// whose Start always fails with [types.ErrDeviceUnavailable].
func NewRecorder(src Source, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		src:    src,
		fs:     afero.NewMemMapFs(),
		format: TakeFormat,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start implements [Capture].
func (r *Recorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyCapturing
	}
	if r.src == nil {
		return fmt.Errorf("audio: start capture: %w: no input device configured", types.ErrDeviceUnavailable)
	}

	r.pcm = r.pcm[:0]
	r.conv = &Converter{Target: r.format}
	r.started = time.Now()
	r.active = true

	if err := r.src.Start(r.onFrame); err != nil {
		r.active = false
		if !errors.Is(err, types.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("audio: start capture: %w", err)
	}
	return nil
}

func (r *Recorder) onFrame(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.pcm = append(r.pcm, r.conv.Convert(pcm, r.src.Format())...)
}

// Stop implements [Capture]. The device is stopped outside the lock so a
// frame callback blocked on it can drain.
func (r *Recorder) Stop(_ context.Context) (types.AudioTake, bool, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return types.AudioTake{}, false, nil
	}
	r.active = false
	pcm := r.pcm
	r.pcm = nil
	r.mu.Unlock()

	if err := r.src.Stop(); err != nil {
		slog.Warn("audio: stopping input device", "err", err)
	}

	take, err := r.encode(pcm)
	if err != nil {
		return types.AudioTake{}, false, err
	}
	return take, true, nil
}

// Recording reports whether a take is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) encode(pcm []byte) (types.AudioTake, error) {
	id := uuid.NewString()
	name := "take-" + id + ".wav"

	f, err := r.fs.Create(name)
	if err != nil {
		return types.AudioTake{}, fmt.Errorf("audio: create take file: %w", err)
	}

	enc := wav.NewEncoder(f, r.format.SampleRate, 16, r.format.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: r.format.Channels,
			SampleRate:  r.format.SampleRate,
		},
		Data:           PCMToInts(pcm),
		SourceBitDepth: 16,
	}
	werr := enc.Write(buf)
	cerr := enc.Close()
	ferr := f.Close()
	if err := errors.Join(werr, cerr, ferr); err != nil {
		_ = r.fs.Remove(name)
		return types.AudioTake{}, fmt.Errorf("audio: encode take: %w", err)
	}

	data, err := afero.ReadFile(r.fs, name)
	if err != nil {
		return types.AudioTake{}, fmt.Errorf("audio: read take: %w", err)
	}
	if !r.keep {
		_ = r.fs.Remove(name)
	}

	frames := len(pcm) / (2 * r.format.Channels)
	return types.AudioTake{
		ID:          id,
		Data:        data,
		Filename:    name,
		ContentType: "audio/wav",
		SampleRate:  r.format.SampleRate,
		Channels:    r.format.Channels,
		Duration:    time.Duration(frames) * time.Second / time.Duration(r.format.SampleRate),
	}, nil
}
