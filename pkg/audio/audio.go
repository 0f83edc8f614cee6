// Package audio owns the local sound devices: recording takes from a
// microphone and playing synthesized replies on a speaker.
//
// Both sides are split in two. A device-agnostic half ([Recorder],
// [DevicePlayer]) implements the contracts the orchestrator depends on
// ([Capture], [Player]); a thin device half ([Source], [Sink]) lives in
// subpackages per audio backend (malgo, portaudio, speaker). Tests use the
// mock subpackage for either half.
package audio

import (
	"context"
	"errors"

	"github.com/faiface/beep"

	"github.com/MrWong99/jarvis/pkg/types"
)

var (
	// ErrAlreadyCapturing is returned by [Capture.Start] when a take is
	// already being recorded.
	ErrAlreadyCapturing = errors.New("audio: already capturing")

	// ErrPreempted is delivered on a playback completion channel when the
	// stream was stopped or replaced before it drained.
	ErrPreempted = errors.New("audio: playback preempted")
)

// Capture records one take at a time from the microphone.
//
// Implementations must be safe for concurrent use.
type Capture interface {
	// Start begins accumulating audio into a fresh, empty take. It fails
	// with an error wrapping [types.ErrDeviceUnavailable] when the device is
	// missing or refuses to start, and with [ErrAlreadyCapturing] when a
	// take is in progress.
	Start(ctx context.Context) error

	// Stop finalizes the current take and returns it with ok == true. Calling
	// Stop while nothing is being recorded is a no-op that returns ok == false.
	Stop(ctx context.Context) (take types.AudioTake, ok bool, err error)
}

// Source is a raw PCM input device. It delivers signed 16-bit little-endian
// frames in [Source.Format] to the callback passed to Start, from a device
// thread. The callback must not block.
type Source interface {
	Format() Format
	Start(onFrame func(pcm []byte)) error
	Stop() error
}

// Player plays one reply at a time on the single output device.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play decodes audio and starts it, stopping whatever was playing (last
	// call wins). The returned channel delivers exactly one value and is then
	// closed: nil when the stream drained, [ErrPreempted] when it was stopped
	// or replaced, or the device error. Audio that cannot be decoded returns
	// an error wrapping [types.ErrDecode] and nothing is played.
	Play(ctx context.Context, audio []byte) (<-chan error, error)

	// Stop halts the current stream, if any.
	Stop()
}

// Sink is an output device that can render a decoded stream. Play blocks until
// the stream is exhausted or ctx is cancelled, in which case it stops output
// promptly and returns ctx.Err().
type Sink interface {
	Play(ctx context.Context, s beep.Streamer, format beep.Format) error
}
