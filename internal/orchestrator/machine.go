package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Config holds the behavioural settings of a [Machine].
type Config struct {
	// WakePhrase opens the gate. Default: [DefaultWakePhrase].
	WakePhrase string

	// ReminderPrompt is recorded and spoken when the gate is pending and the
	// wake phrase is missing. Default: [DefaultReminderPrompt].
	ReminderPrompt string

	// RequireWakeWord is the initial state of the gate.
	RequireWakeWord bool

	// Matcher decides whether text contains WakePhrase. Default:
	// [SubstringMatcher].
	Matcher WakeMatcher

	// Timeouts bound the awaiting stages. Unset fields take the
	// [DefaultTimeouts] value.
	Timeouts Timeouts
}

func (c Config) withDefaults() Config {
	if c.WakePhrase == "" {
		c.WakePhrase = DefaultWakePhrase
	}
	if c.ReminderPrompt == "" {
		c.ReminderPrompt = DefaultReminderPrompt
	}
	if c.Matcher == nil {
		c.Matcher = SubstringMatcher{}
	}
	c.Timeouts = c.Timeouts.withDefaults()
	return c
}

// Machine is the conversation state machine. It is a value: [Machine.Step]
// returns a new Machine and leaves the receiver untouched, so earlier values
// (and the History slices they expose) stay valid snapshots.
type Machine struct {
	// State is the current phase.
	State State

	// WakeWordPending is true while the wake phrase is required before
	// normal input is accepted.
	WakeWordPending bool

	// Turn numbers the current take. It increments when a take starts.
	Turn uint64

	// History is the append-only conversation log. Treat it as read-only.
	History []types.Utterance

	// reminder marks a turn whose reply is the spoken wake reminder.
	reminder bool

	cfg Config
}

// NewMachine returns an idle machine.
func NewMachine(cfg Config) Machine {
	cfg = cfg.withDefaults()
	return Machine{
		State:           Idle,
		WakeWordPending: cfg.RequireWakeWord,
		cfg:             cfg,
	}
}

// Config returns the settings the machine was built with, defaults applied.
func (m Machine) Config() Config { return m.cfg }

// Reminding reports whether the current turn is answering with the wake
// reminder instead of a normal reply.
func (m Machine) Reminding() bool { return m.reminder }

// Step applies ev and returns the next machine and the effects to execute.
// Events that do not apply to the current state, and completions carrying
// another turn number, leave the machine unchanged and produce no effects.
func (m Machine) Step(ev Event) (Machine, []Effect) {
	switch ev := ev.(type) {
	case Toggle:
		return m.toggle()
	case ArmWakeGate:
		m.WakeWordPending = true
		return m, nil
	case CaptureFailed:
		if !m.current(ev.Turn, Recording) {
			return m, nil
		}
		return m.abandon(ev.Err)
	case Captured:
		if !m.current(ev.Turn, AwaitingTranscription) {
			return m, nil
		}
		return m.captured(ev)
	case Transcribed:
		if !m.current(ev.Turn, AwaitingTranscription) {
			return m, nil
		}
		if ev.Err != nil {
			return m.abandon(ev.Err)
		}
		return m.gate(ev)
	case Replied:
		if !m.current(ev.Turn, AwaitingReply) {
			return m, nil
		}
		if ev.Err != nil {
			return m.abandon(ev.Err)
		}
		return m.replied(ev)
	case PlaybackDone:
		if !m.current(ev.Turn, Speaking) {
			return m, nil
		}
		if ev.Err != nil && !errors.Is(ev.Err, audio.ErrPreempted) {
			return m.abandon(ev.Err)
		}
		return m.finish(nil)
	case Timeout:
		if ev.Turn != m.Turn || ev.Stage == StageNone || ev.Stage != stageOf(m.State) {
			return m, nil
		}
		return m.timeout(ev.Stage)
	default:
		return m, nil
	}
}

// current reports whether a completion for turn is expected in state s.
func (m Machine) current(turn uint64, s State) bool {
	return turn == m.Turn && m.State == s
}

func (m Machine) toggle() (Machine, []Effect) {
	switch m.State {
	case Idle:
		m.Turn++
		m.State = Recording
		m.reminder = false
		return m, []Effect{StartCapture{Turn: m.Turn}}
	case Recording:
		m.State = AwaitingTranscription
		return m, []Effect{
			StopCapture{Turn: m.Turn},
			m.arm(StageTranscription),
		}
	default:
		// Busy: a new take cannot start until the turn is over.
		return m, nil
	}
}

func (m Machine) captured(ev Captured) (Machine, []Effect) {
	switch {
	case ev.Err != nil:
		return m.abandon(ev.Err)
	case !ev.OK:
		return m.abandon(nil)
	}
	return m, []Effect{Transcribe{Turn: m.Turn, Take: ev.Take}}
}

// gate applies the wake-word decision to a successful transcription.
func (m Machine) gate(ev Transcribed) (Machine, []Effect) {
	var (
		rec  Effect
		send Converse
	)
	switch {
	case m.WakeWordPending && !m.cfg.Matcher.Match(ev.Result.Text, m.cfg.WakePhrase):
		// The gate stays set; the reminder is spoken instead of a reply.
		m.reminder = true
		m, rec = m.appendUtterance(types.SpeakerAssistant, m.cfg.ReminderPrompt, ev)
		send = Converse{Turn: m.Turn, Text: m.cfg.ReminderPrompt, Reminder: true}
	default:
		m.WakeWordPending = false
		m, rec = m.appendUtterance(types.SpeakerUser, ev.Result.Text, ev)
		send = Converse{Turn: m.Turn, Text: ev.Result.Text}
	}
	m.State = AwaitingReply
	return m, []Effect{rec, send, m.arm(StageReply)}
}

func (m Machine) replied(ev Replied) (Machine, []Effect) {
	var effects []Effect
	if !m.reminder {
		var rec Effect
		m, rec = m.appendUtterance(types.SpeakerAssistant, ev.Reply.Text, ev)
		effects = append(effects, rec)
	}
	m.State = Speaking
	effects = append(effects,
		Play{Turn: m.Turn, Audio: ev.Reply.Audio},
		m.arm(StagePlayback),
	)
	return m, effects
}

func (m Machine) finish(cause error) (Machine, []Effect) {
	turn := m.Turn
	m.State = Idle
	m.reminder = false
	return m, []Effect{Cancel{Turn: turn, Cause: cause}}
}

// abandon ends the turn after a failure. Nothing is appended to the history.
func (m Machine) abandon(err error) (Machine, []Effect) {
	stage := stageOf(m.State)
	m, effects := m.finish(nil)
	if err != nil {
		effects = append(effects, Notice{Turn: m.Turn, Stage: stage, Kind: types.KindOf(err), Err: err})
	}
	return m, effects
}

func (m Machine) timeout(stage Stage) (Machine, []Effect) {
	speaking := m.State == Speaking
	m, effects := m.finish(context.DeadlineExceeded)
	if speaking {
		effects = append(effects, StopPlayback{})
	}
	err := fmt.Errorf("orchestrator: %s: %w", stage, context.DeadlineExceeded)
	return m, append(effects, Notice{Turn: m.Turn, Stage: stage, Kind: types.KindTimeout, Err: err})
}

func (m Machine) arm(stage Stage) Effect {
	return ArmTimer{Turn: m.Turn, Stage: stage, After: m.cfg.Timeouts.forStage(stage)}
}

// appendUtterance returns m with a new history entry. The slice is always
// reallocated so histories held by earlier Machine values never change.
func (m Machine) appendUtterance(speaker types.Speaker, text string, ev Event) (Machine, Effect) {
	u := types.Utterance{Speaker: speaker, Text: text, Turn: m.Turn}
	switch ev := ev.(type) {
	case Transcribed:
		u.At = ev.At
	case Replied:
		u.At = ev.At
	}
	n := len(m.History)
	m.History = append(m.History[:n:n], u)
	return m, Record{Utterance: u}
}
