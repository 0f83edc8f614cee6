package orchestrator

import (
	"time"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Effect is an instruction produced by [Machine.Step] for the runtime to
// carry out. Effects are executed in the order they are returned.
type Effect interface {
	effect()
}

// StartCapture starts a fresh take on the capture device.
type StartCapture struct{ Turn uint64 }

// StopCapture finalizes the current take; the runtime answers with
// [Captured].
type StopCapture struct{ Turn uint64 }

// Transcribe sends the take to the transcription provider; the runtime
// answers with [Transcribed].
type Transcribe struct {
	Turn uint64
	Take types.AudioTake
}

// Converse sends text to the conversational backend; the runtime answers
// with [Replied]. Reminder marks the wake-reminder prompt.
type Converse struct {
	Turn     uint64
	Text     string
	Reminder bool
}

// Play starts reply playback; the runtime answers with [PlaybackDone].
type Play struct {
	Turn  uint64
	Audio []byte
}

// StopPlayback halts the output device.
type StopPlayback struct{}

// Cancel aborts any in-flight call belonging to Turn and disarms its timer.
// Cause is reported through [context.Cause] to the aborted calls; it is
// [context.DeadlineExceeded] when a stage timed out and nil otherwise.
type Cancel struct {
	Turn  uint64
	Cause error
}

// ArmTimer (re)arms the single stage timer. Expiry is reported as [Timeout].
type ArmTimer struct {
	Turn  uint64
	Stage Stage
	After time.Duration
}

// Record announces that Utterance was appended to the history.
type Record struct{ Utterance types.Utterance }

// Notice is a user-visible report that a turn was abandoned. It never enters
// the history.
type Notice struct {
	Turn  uint64
	Stage Stage
	Kind  types.ErrorKind
	Err   error
}

// Message renders the notice for status lines.
func (n Notice) Message() string {
	switch n.Kind {
	case types.KindDeviceUnavailable:
		return "Microphone unavailable."
	case types.KindNetwork:
		return "Could not reach the assistant service."
	case types.KindService:
		return "The assistant service returned an error."
	case types.KindDecode:
		return "Could not play the reply audio."
	case types.KindTimeout:
		return "The " + n.Stage.String() + " took too long and was cancelled."
	default:
		return "Something went wrong."
	}
}

func (StartCapture) effect() {}
func (StopCapture) effect()  {}
func (Transcribe) effect()   {}
func (Converse) effect()     {}
func (Play) effect()         {}
func (StopPlayback) effect() {}
func (Cancel) effect()       {}
func (ArmTimer) effect()     {}
func (Record) effect()       {}
func (Notice) effect()       {}
