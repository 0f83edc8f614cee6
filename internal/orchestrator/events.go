package orchestrator

import (
	"time"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Event is an input to [Machine.Step]. The set of events is closed.
type Event interface {
	event()
}

// Toggle is the user's push-to-talk action: start a take when idle, finish
// it while recording.
type Toggle struct{}

// CaptureFailed reports that the capture device could not start.
type CaptureFailed struct {
	Turn uint64
	Err  error
}

// Captured delivers the finalized take. OK is false when the device yielded
// nothing.
type Captured struct {
	Turn uint64
	Take types.AudioTake
	OK   bool
	Err  error
}

// Transcribed delivers the transcription result for a turn.
type Transcribed struct {
	Turn   uint64
	Result types.RecognitionResult
	Err    error
	At     time.Time
}

// Replied delivers the conversational backend's answer for a turn.
type Replied struct {
	Turn  uint64
	Reply types.ReplyPayload
	Err   error
	At    time.Time
}

// PlaybackDone reports that the reply finished playing, failed to start, or
// was preempted.
type PlaybackDone struct {
	Turn uint64
	Err  error
}

// Timeout reports that the timer armed for Stage in Turn expired.
type Timeout struct {
	Turn  uint64
	Stage Stage
}

// ArmWakeGate sets the wake-word gate. It is the only way the gate becomes
// pending again once cleared.
type ArmWakeGate struct{}

func (Toggle) event()        {}
func (CaptureFailed) event() {}
func (Captured) event()      {}
func (Transcribed) event()   {}
func (Replied) event()       {}
func (PlaybackDone) event()  {}
func (Timeout) event()       {}
func (ArmWakeGate) event()   {}
