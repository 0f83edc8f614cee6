// Package app wires all Jarvis subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the conversation loop and the HTTP surface, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithCapture, WithPlayer, WithHistoryStore, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/feed"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/history"
	"github.com/MrWong99/jarvis/pkg/history/postgres"
	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	jarvisstt "github.com/MrWong99/jarvis/pkg/provider/transcribe/jarvis"
)

const (
	serverShutdownTimeout = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Transcription transcribe.Provider
	Conversation  converse.Provider
	Capture       audio.Source
	Playback      audio.Sink
}

// App owns all subsystem lifetimes and runs the assistant.
type App struct {
	cfg       *config.Config
	providers *Providers

	level   *slog.LevelVar
	metrics *observe.Metrics
	watcher *config.Watcher

	// Subsystems — initialised in New, torn down in Shutdown.
	capture      audio.Capture
	player       audio.Player
	store        history.Store
	storePing    func(context.Context) error
	sessionID    string
	transcriber  *resilience.Transcriber
	conversation *resilience.Conversation
	orch         *orchestrator.Orchestrator
	handler      http.Handler

	captureReady  bool
	playbackReady bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCapture injects the microphone instead of recording from
// Providers.Capture.
func WithCapture(c audio.Capture) Option {
	return func(a *App) { a.capture = c }
}

// WithPlayer injects the player instead of rendering on Providers.Playback.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithHistoryStore injects a history store instead of connecting to
// history.postgres_dsn.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithWatcher runs w alongside the assistant. Its change callback should call
// [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithSessionID files history under id instead of history.session_id or a
// fresh UUID. cmd/jarvis uses it so telemetry and history share one id.
func WithSessionID(id string) Option {
	return func(a *App) { a.sessionID = id }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if providers.Transcription == nil {
		return nil, fmt.Errorf("app: a transcription provider is required")
	}
	if providers.Conversation == nil {
		return nil, fmt.Errorf("app: a conversation provider is required")
	}

	// ── 1. Audio devices ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 2. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 3. Resilient remote clients ──────────────────────────────────────
	a.initClients()

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	orchOpts := []orchestrator.Option{
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithProviderNames(
			nameOr(cfg.Providers.Transcription.Name, "transcription"),
			nameOr(cfg.Providers.Conversation.Name, "conversation"),
		),
		orchestrator.WithAnnounceErrors(cfg.Assistant.Announce()),
	}
	if a.store != nil {
		orchOpts = append(orchOpts, orchestrator.WithStore(a.store, a.sessionID))
	}
	a.orch = orchestrator.New(
		a.capture,
		a.transcriber,
		a.conversation,
		a.player,
		cfg.Assistant.MachineConfig(),
		orchOpts...,
	)

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.buildHandler()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAudio builds the recorder and player around the configured devices
// unless they were injected.
func (a *App) initAudio() error {
	a.captureReady = a.capture != nil || a.providers.Capture != nil
	a.playbackReady = a.player != nil || a.providers.Playback != nil

	if a.capture == nil {
		var opts []audio.RecorderOption
		if dir := a.cfg.Archive.Dir; dir != "" {
			osFs := afero.NewOsFs()
			if err := osFs.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create archive dir %q: %w", dir, err)
			}
			opts = append(opts, audio.WithArchive(afero.NewBasePathFs(osFs, dir)))
			slog.Info("archiving takes", "dir", dir)
		}
		if a.providers.Capture == nil {
			slog.Warn("no capture device configured; takes will fail")
		}
		a.capture = audio.NewRecorder(a.providers.Capture, opts...)
		if c, ok := a.providers.Capture.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	if a.player == nil {
		sink := a.providers.Playback
		if sink == nil {
			slog.Warn("no playback device configured; replies will be silent")
			sink = audio.Silent{}
		}
		p := audio.NewDevicePlayer(sink)
		a.player = p
		a.closers = append(a.closers, p.Close)
	}
	return nil
}

// initHistory connects the persistent history when configured.
func (a *App) initHistory(ctx context.Context) error {
	if a.sessionID == "" {
		a.sessionID = a.cfg.History.SessionID
	}
	if a.sessionID == "" {
		a.sessionID = uuid.NewString()
	}

	if a.store == nil {
		dsn := a.cfg.History.PostgresDSN
		if dsn == "" {
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		a.storePing = p.Ping
	} else {
		a.storePing = health.Present(true)
	}
	slog.Info("history persistence enabled", "session_id", a.sessionID)
	return nil
}

// initClients wraps both remote providers in circuit breakers.
func (a *App) initClients() {
	onChange := func(name string, from, to resilience.State) {
		level := slog.LevelInfo
		if to == resilience.StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	res := a.cfg.Resilience
	a.transcriber = resilience.NewTranscriber(a.providers.Transcription, resilience.CircuitBreakerConfig{
		Name:          "transcription",
		MaxFailures:   res.MaxFailures,
		ResetTimeout:  res.ResetTimeout,
		OnStateChange: onChange,
	})
	a.conversation = resilience.NewConversation(a.providers.Conversation, resilience.CircuitBreakerConfig{
		Name:          "conversation",
		MaxFailures:   res.MaxFailures,
		ResetTimeout:  res.ResetTimeout,
		OnStateChange: onChange,
	})
}

// buildHandler assembles health probes, the feed and /metrics behind the
// request metrics middleware.
func (a *App) buildHandler() http.Handler {
	checkers := []health.Checker{
		a.remoteCheck("transcription", a.cfg.Providers.Transcription, a.transcriber.Breaker()),
		a.remoteCheck("conversation", a.cfg.Providers.Conversation, a.conversation.Breaker()),
		{Name: "capture", Check: health.Present(a.captureReady)},
		{Name: "playback", Check: health.Present(a.playbackReady), Optional: true},
	}
	if a.storePing != nil {
		checkers = append(checkers, health.Checker{Name: "history", Check: a.storePing, Optional: true})
	}

	feedOpts := []feed.Option{feed.WithMetrics(a.metrics)}
	if a.store != nil {
		feedOpts = append(feedOpts, feed.WithHistory(a.store, a.sessionID))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	feed.New(a.orch, feedOpts...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// remoteCheck fails while the breaker is open and, for self-hosted
// backends, when the base URL does not answer.
func (a *App) remoteCheck(name string, entry config.ProviderEntry, br *resilience.CircuitBreaker) health.Checker {
	probe := health.Present(true)
	if u := probeURL(entry); u != "" {
		probe = health.HTTPProbe(nil, u)
	}
	return health.Checker{Name: name, Check: func(ctx context.Context) error {
		if br.State() == resilience.StateOpen {
			return resilience.ErrCircuitOpen
		}
		return probe(ctx)
	}}
}

// probeURL returns the address to probe for entry, or "" for hosted APIs.
func probeURL(entry config.ProviderEntry) string {
	switch entry.Name {
	case "jarvis":
		if entry.BaseURL == "" {
			return jarvisstt.DefaultBaseURL
		}
		return entry.BaseURL
	case "whisper":
		return entry.BaseURL
	}
	return ""
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the conversation runtime, for front-ends.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Handler returns the HTTP surface served on server.listen_addr.
func (a *App) Handler() http.Handler { return a.handler }

// SessionID identifies this run in the persistent history.
func (a *App) SessionID() string { return a.sessionID }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the orchestrator, the HTTP server (when server.listen_addr is
// set) and the config watcher, and blocks until ctx is cancelled or one of
// them fails. A cancelled ctx is a clean stop and returns nil.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.orch.Run(gctx)
	})

	if ln != nil {
		tlsCfg := a.cfg.Server.TLS
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
			var err error
			if tlsCfg != nil {
				err = srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
			} else {
				err = srv.Serve(ln)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	slog.Info("assistant running",
		"session_id", a.sessionID,
		"wake_word_pending", a.orch.Snapshot().WakeWordPending,
	)
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ApplyConfig applies the hot-reloadable part of a config change. Changes
// listed in d.RestartRequired are ignored.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WakeGateArmed {
		if err := a.orch.ArmWakeGate(); err != nil {
			slog.Warn("failed to re-arm wake gate", "err", err)
		} else {
			slog.Info("wake gate re-armed")
		}
	}
	if d.AnnounceErrorsChanged {
		a.orch.SetAnnounceErrors(d.AnnounceErrors)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned. Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
