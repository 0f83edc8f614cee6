package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/history"
	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	"github.com/MrWong99/jarvis/pkg/types"
)

// ErrStopped is returned when posting to an orchestrator whose Run has
// returned.
var ErrStopped = errors.New("orchestrator: stopped")

const (
	defaultEventBuffer   = 64
	defaultPersistBuffer = 64
	persistTimeout       = 5 * time.Second
)

// Snapshot is a read-only view of the machine after an event was applied.
type Snapshot struct {
	State           State             `json:"state"`
	WakeWordPending bool              `json:"wake_word_pending"`
	Turn            uint64            `json:"turn"`
	History         []types.Utterance `json:"history"`
}

// UpdateKind tells subscribers which field of an [Update] is set.
type UpdateKind int

const (
	// UpdateState carries a new Snapshot.
	UpdateState UpdateKind = iota
	// UpdateUtterance carries a newly appended history entry.
	UpdateUtterance
	// UpdateNotice carries a failure report.
	UpdateNotice
)

// Update is delivered to subscribers.
type Update struct {
	Kind      UpdateKind
	Snapshot  Snapshot
	Utterance types.Utterance
	Notice    Notice
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithStore mirrors every appended utterance into store under sessionID.
// Writes happen on a background goroutine in append order; a failed write
// is logged and does not affect the running conversation.
func WithStore(store history.Store, sessionID string) Option {
	return func(o *Orchestrator) {
		o.store = store
		o.sessionID = sessionID
	}
}

// WithMetrics records turn, stage, and provider metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProviderNames sets the provider labels used in metrics and logs.
func WithProviderNames(transcription, conversation string) Option {
	return func(o *Orchestrator) {
		o.sttName = transcription
		o.chatName = conversation
	}
}

// WithAnnounceErrors controls whether failure notices reach subscribers.
// Failures are logged either way. The default is true.
func WithAnnounceErrors(on bool) Option {
	return func(o *Orchestrator) { o.announce.Store(on) }
}

// WithEventBuffer sets the capacity of the event channel. The default is 64.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.events = make(chan Event, n)
		}
	}
}

// Orchestrator runs a [Machine] against real devices and providers.
//
// All exported methods are safe for concurrent use. [Orchestrator.Run] must
// be called exactly once.
type Orchestrator struct {
	capture      audio.Capture
	transcriber  transcribe.Provider
	conversation converse.Provider
	player       audio.Player

	store     history.Store
	sessionID string
	persist   chan types.Utterance

	metrics  *observe.Metrics
	sttName  string
	chatName string
	announce atomic.Bool

	events  chan Event
	done    chan struct{}
	started atomic.Bool

	snap atomic.Pointer[Snapshot]

	subMu sync.Mutex
	subs  map[chan Update]struct{}

	wg sync.WaitGroup

	// Owned by the Run goroutine.
	machine    Machine
	pending    []Event
	turnCtx    context.Context
	turnCancel context.CancelCauseFunc
	timer      *time.Timer
}

// New creates an Orchestrator. Call [Orchestrator.Run] to start it.
func New(
	capture audio.Capture,
	transcriber transcribe.Provider,
	conversation converse.Provider,
	player audio.Player,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		capture:      capture,
		transcriber:  transcriber,
		conversation: conversation,
		player:       player,
		metrics:      observe.DefaultMetrics(),
		sttName:      "transcription",
		chatName:     "conversation",
		events:       make(chan Event, defaultEventBuffer),
		done:         make(chan struct{}),
		subs:         make(map[chan Update]struct{}),
		machine:      NewMachine(cfg),
	}
	o.announce.Store(true)
	for _, opt := range opts {
		opt(o)
	}
	o.storeSnapshot()
	return o
}

// ─── Public API ──────────────────────────────────────────────────────────────

// Toggle starts a take when idle and finishes it while recording. It is
// ignored while a turn is in progress.
func (o *Orchestrator) Toggle() error {
	return o.post(Toggle{})
}

// ArmWakeGate requires the wake phrase again before the next normal turn.
func (o *Orchestrator) ArmWakeGate() error {
	return o.post(ArmWakeGate{})
}

// SetAnnounceErrors changes whether failure notices reach subscribers.
func (o *Orchestrator) SetAnnounceErrors(on bool) {
	o.announce.Store(on)
}

// Snapshot returns the state after the most recently applied event. The
// History slice is shared and must not be modified.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snap.Load()
}

// Subscribe returns a channel of updates and a function that cancels the
// subscription. Updates are dropped for a subscriber whose buffer is full;
// the channel is closed on cancel or when Run returns.
func (o *Orchestrator) Subscribe(buf int) (<-chan Update, func()) {
	ch := make(chan Update, max(buf, 1))

	o.subMu.Lock()
	select {
	case <-o.done:
		close(ch)
	default:
		o.subs[ch] = struct{}{}
	}
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			defer o.subMu.Unlock()
			if _, ok := o.subs[ch]; ok {
				delete(o.subs, ch)
				close(ch)
			}
		})
	}
}

// Run processes events until ctx is cancelled. On return any take is
// discarded, playback is stopped, and in-flight calls are cancelled and
// awaited.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator: Run called twice")
	}

	if o.store != nil {
		o.persist = make(chan types.Utterance, defaultPersistBuffer)
		o.wg.Add(1)
		go o.persistLoop()
	}

	slog.Info("orchestrator started",
		"wake_word_pending", o.machine.WakeWordPending,
		"wake_phrase", o.machine.cfg.WakePhrase,
	)
	o.publish(Update{Kind: UpdateState, Snapshot: o.Snapshot()})

	for {
		for len(o.pending) > 0 {
			ev := o.pending[0]
			o.pending = o.pending[1:]
			o.apply(ctx, ev)
		}
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case ev := <-o.events:
			o.apply(ctx, ev)
		}
	}
}

// ─── Event loop ──────────────────────────────────────────────────────────────

// post delivers ev to the loop, blocking while the buffer is full.
func (o *Orchestrator) post(ev Event) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// apply steps the machine and executes the resulting effects.
func (o *Orchestrator) apply(ctx context.Context, ev Event) {
	prev := o.machine
	next, effects := prev.Step(ev)
	o.machine = next

	if next.State != prev.State {
		slog.Debug("orchestrator transition",
			"turn", next.Turn,
			"from", prev.State.String(),
			"to", next.State.String(),
		)
		o.metrics.RecordTransition(ctx, prev.State.String(), next.State.String())
		if next.State == Idle {
			o.metrics.RecordTurn(ctx, outcome(prev, ev))
		}
	} else if len(effects) == 0 {
		if _, ok := ev.(Toggle); ok && prev.State.Busy() {
			slog.Debug("toggle ignored while busy", "state", prev.State.String())
		}
	}
	if _, ok := ev.(Transcribed); ok && prev.WakeWordPending && next.State == AwaitingReply {
		decision := "opened"
		if next.WakeWordPending {
			decision = "reminded"
		}
		o.metrics.RecordWakeDecision(ctx, decision)
		slog.Info("wake gate decision", "turn", next.Turn, "decision", decision)
	}

	changed := next.State != prev.State || next.WakeWordPending != prev.WakeWordPending ||
		next.Turn != prev.Turn || len(next.History) != len(prev.History)
	if changed {
		o.storeSnapshot()
	}

	for _, eff := range effects {
		o.execute(ctx, eff)
	}

	if changed {
		o.publish(Update{Kind: UpdateState, Snapshot: o.Snapshot()})
	}
}

// outcome labels the turn that ended when prev stepped to Idle on ev.
func outcome(prev Machine, ev Event) string {
	switch ev := ev.(type) {
	case Timeout:
		return "timeout"
	case PlaybackDone:
		if ev.Err == nil || errors.Is(ev.Err, audio.ErrPreempted) {
			if prev.Reminding() {
				return "reminded"
			}
			return "completed"
		}
	case Captured:
		if ev.Err == nil {
			return "empty"
		}
	}
	return "failed"
}

func (o *Orchestrator) execute(ctx context.Context, eff Effect) {
	switch eff := eff.(type) {
	case StartCapture:
		o.beginTurn(ctx)
		if err := o.capture.Start(o.turnCtx); err != nil {
			slog.Warn("capture failed to start", "turn", eff.Turn, "err", err)
			o.pending = append(o.pending, CaptureFailed{Turn: eff.Turn, Err: err})
		}
	case StopCapture:
		o.stopCapture(eff)
	case Transcribe:
		o.transcribe(eff)
	case Converse:
		o.converse(eff)
	case Play:
		o.play(eff)
	case StopPlayback:
		o.player.Stop()
	case Cancel:
		if eff.Turn == o.machine.Turn {
			o.endTurn(eff.Cause)
		}
	case ArmTimer:
		o.arm(eff)
	case Record:
		o.record(ctx, eff.Utterance)
	case Notice:
		slog.Warn("turn abandoned",
			"turn", eff.Turn,
			"stage", eff.Stage.String(),
			"kind", eff.Kind.String(),
			"err", eff.Err,
		)
		if o.announce.Load() {
			o.publish(Update{Kind: UpdateNotice, Snapshot: o.Snapshot(), Notice: eff})
		}
	}
}

// ─── Turn lifecycle ──────────────────────────────────────────────────────────

func (o *Orchestrator) beginTurn(ctx context.Context) {
	o.endTurn(nil)
	o.turnCtx, o.turnCancel = context.WithCancelCause(ctx)
}

// endTurn cancels in-flight calls of the current turn with cause and disarms
// its timer. A nil cause reads as [context.Canceled].
func (o *Orchestrator) endTurn(cause error) {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.turnCancel != nil {
		o.turnCancel(cause)
		o.turnCancel = nil
	}
}

func (o *Orchestrator) arm(eff ArmTimer) {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if eff.After <= 0 {
		return
	}
	o.timer = time.AfterFunc(eff.After, func() {
		_ = o.post(Timeout{Turn: eff.Turn, Stage: eff.Stage})
	})
}

// stopCapture finalizes the take off the loop so a stuck device is bounded by
// the transcription timer armed next.
func (o *Orchestrator) stopCapture(eff StopCapture) {
	ctx := o.turnCtx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		take, ok, err := o.capture.Stop(ctx)
		if err != nil {
			slog.Warn("capture failed to stop", "turn", eff.Turn, "err", err)
		}
		_ = o.post(Captured{Turn: eff.Turn, Take: take, OK: ok, Err: err})
	}()
}

func (o *Orchestrator) transcribe(eff Transcribe) {
	ctx := o.turnCtx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, span := observe.StartTurnSpan(ctx, "transcribe", eff.Turn)
		defer span.End()

		start := time.Now()
		res, err := o.transcriber.Transcribe(ctx, eff.Take)
		o.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
		o.recordCall(ctx, span, o.sttName, "transcription", err)
		if err == nil {
			observe.Logger(ctx).Debug("transcribed", "chars", len(res.Text))
		}
		_ = o.post(Transcribed{Turn: eff.Turn, Result: res, Err: err, At: time.Now()})
	}()
}

func (o *Orchestrator) converse(eff Converse) {
	ctx := o.turnCtx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, span := observe.StartTurnSpan(ctx, "converse", eff.Turn, attribute.Bool("jarvis.reminder", eff.Reminder))
		defer span.End()

		start := time.Now()
		reply, err := o.conversation.Converse(ctx, eff.Text)
		o.metrics.ConversationDuration.Record(ctx, time.Since(start).Seconds())
		o.recordCall(ctx, span, o.chatName, "conversation", err)
		_ = o.post(Replied{Turn: eff.Turn, Reply: reply, Err: err, At: time.Now()})
	}()
}

func (o *Orchestrator) play(eff Play) {
	ctx, span := observe.StartTurnSpan(o.turnCtx, "play", eff.Turn, attribute.Int("jarvis.audio_bytes", len(eff.Audio)))
	done, err := o.player.Play(ctx, eff.Audio)
	if err != nil {
		span.RecordError(err)
		span.End()
		o.pending = append(o.pending, PlaybackDone{Turn: eff.Turn, Err: err})
		return
	}
	start := time.Now()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer span.End()
		err := <-done
		if err != nil && !errors.Is(err, audio.ErrPreempted) {
			span.RecordError(err)
		}
		o.metrics.PlaybackDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
		_ = o.post(PlaybackDone{Turn: eff.Turn, Err: err})
	}()
}

// recordCall counts one provider call and marks span on failure.
func (o *Orchestrator) recordCall(ctx context.Context, span trace.Span, provider, kind string, err error) {
	ctx = context.WithoutCancel(ctx)
	if err == nil {
		o.metrics.RecordProviderRequest(ctx, provider, kind, "ok")
		return
	}
	o.metrics.RecordProviderRequest(ctx, provider, kind, "error")
	o.metrics.RecordProviderError(ctx, provider, types.KindOf(err).String())
	observe.Logger(ctx).Debug("provider call failed", "provider", provider, "kind", kind, "err", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ─── History & subscribers ───────────────────────────────────────────────────

func (o *Orchestrator) record(ctx context.Context, u types.Utterance) {
	o.metrics.RecordUtterance(ctx, u.Speaker.String())
	o.publish(Update{Kind: UpdateUtterance, Snapshot: o.Snapshot(), Utterance: u})
	if o.persist == nil {
		return
	}
	select {
	case o.persist <- u:
	default:
		slog.Warn("history store backlog full, dropping utterance", "turn", u.Turn)
	}
}

func (o *Orchestrator) persistLoop() {
	defer o.wg.Done()
	for u := range o.persist {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := o.store.Append(ctx, o.sessionID, u); err != nil {
			slog.Warn("failed to persist utterance", "session_id", o.sessionID, "turn", u.Turn, "err", err)
		}
		cancel()
	}
}

func (o *Orchestrator) storeSnapshot() {
	m := o.machine
	o.snap.Store(&Snapshot{
		State:           m.State,
		WakeWordPending: m.WakeWordPending,
		Turn:            m.Turn,
		History:         m.History,
	})
}

// publish fans u out without blocking.
func (o *Orchestrator) publish(u Update) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for ch := range o.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (o *Orchestrator) shutdown() {
	close(o.done)

	if o.machine.State == Recording {
		if _, _, err := o.capture.Stop(context.Background()); err != nil {
			slog.Warn("capture failed to stop on shutdown", "err", err)
		}
	}
	o.endTurn(nil)
	o.player.Stop()
	if o.persist != nil {
		close(o.persist)
	}
	o.wg.Wait()

	o.subMu.Lock()
	for ch := range o.subs {
		delete(o.subs, ch)
		close(ch)
	}
	o.subMu.Unlock()
	slog.Info("orchestrator stopped", "turns", o.machine.Turn)
}
