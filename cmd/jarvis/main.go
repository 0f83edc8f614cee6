// Command jarvis is the push-to-talk voice assistant front-end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/faiface/beep"
	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/tui"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/miniaudio"
	"github.com/MrWong99/jarvis/pkg/audio/portaudio"
	"github.com/MrWong99/jarvis/pkg/audio/speaker"
	"github.com/MrWong99/jarvis/pkg/provider/converse"
	jarvischat "github.com/MrWong99/jarvis/pkg/provider/converse/jarvis"
	oachat "github.com/MrWong99/jarvis/pkg/provider/converse/openai"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	jarvisstt "github.com/MrWong99/jarvis/pkg/provider/transcribe/jarvis"
	oastt "github.com/MrWong99/jarvis/pkg/provider/transcribe/openai"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe/whisper"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultLogFile  = "jarvis.log"
	shutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "run without the terminal UI; control the assistant over HTTP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher performs the initial load and keeps the config current.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
		if application != nil {
			application.ApplyConfig(d)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jarvis: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logOut, closeLog, err := logOutput(cfg, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	slog.Info("jarvis starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"headless", *headless,
		"version", version,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := cfg.History.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "jarvis",
		ServiceVersion: version,
		SessionID:      sessionID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	devices := &deviceContext{}
	defer devices.Close()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, devices)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	if *headless {
		printStartupSummary(os.Stdout, cfg)
	}

	application, err = app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithWatcher(watcher),
		app.WithSessionID(sessionID),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErr := make(chan error, 1)
	go func() {
		err := application.Run(runCtx)
		// Stop the terminal UI too when the assistant fails on its own.
		cancelRun()
		runErr <- err
	}()

	code := 0
	if *headless {
		slog.Info("assistant ready; press Ctrl+C to shut down")
		if err := <-runErr; err != nil {
			slog.Error("run error", "err", err)
			code = 1
		}
	} else {
		if err := tui.Run(runCtx, application.Orchestrator()); err != nil {
			slog.Error("terminal UI error", "err", err)
			code = 1
		}
		cancelRun()
		if err := <-runErr; err != nil {
			slog.Error("run error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// logOutput picks the log destination. The terminal UI owns stdout and
// stderr, so logs go to server.log_file while it runs.
func logOutput(cfg *config.Config, headless bool) (io.Writer, func(), error) {
	if headless {
		return os.Stderr, func() {}, nil
	}
	path := cfg.Server.LogFile
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// deviceContext opens the miniaudio backend on first use so capture and
// playback share one context.
type deviceContext struct {
	mu  sync.Mutex
	ctx *miniaudio.Context
}

func (d *deviceContext) get() (*miniaudio.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		c, err := miniaudio.Open()
		if err != nil {
			return nil, err
		}
		d.ctx = c
	}
	return d.ctx, nil
}

func (d *deviceContext) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		if err := d.ctx.Close(); err != nil {
			slog.Warn("miniaudio close error", "err", err)
		}
		d.ctx = nil
	}
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, devices *deviceContext) {
	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscription("jarvis", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []jarvisstt.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, jarvisstt.WithTimeout(d))
		}
		return jarvisstt.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscription("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscription("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTranscription("openai", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Conversation ──────────────────────────────────────────────────────────

	reg.RegisterConversation("jarvis", func(entry config.ProviderEntry) (converse.Provider, error) {
		var opts []jarvischat.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, jarvischat.WithTimeout(d))
		}
		return jarvischat.New(entry.BaseURL, opts...)
	})

	reg.RegisterConversation("openai", func(entry config.ProviderEntry) (converse.Provider, error) {
		var opts []oachat.Option
		if entry.BaseURL != "" {
			opts = append(opts, oachat.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			speechModel := optString(entry.Options, "speech_model")
			if speechModel == "" {
				speechModel = oachat.DefaultSpeechModel
			}
			opts = append(opts, oachat.WithVoice(speechModel, voice))
		}
		if prompt := optString(entry.Options, "system_prompt"); prompt != "" {
			opts = append(opts, oachat.WithSystemPrompt(prompt))
		}
		if n, ok := optInt(entry.Options, "history_turns"); ok {
			opts = append(opts, oachat.WithHistoryTurns(n))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oachat.WithTimeout(d))
		}
		return oachat.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Capture ───────────────────────────────────────────────────────────────

	reg.RegisterCapture("malgo", func(entry config.ProviderEntry) (audio.Source, error) {
		mctx, err := devices.get()
		if err != nil {
			return nil, err
		}
		return mctx.NewCapture(captureFormat(entry))
	})

	reg.RegisterCapture("portaudio", func(entry config.ProviderEntry) (audio.Source, error) {
		frames, ok := optInt(entry.Options, "frames_per_buffer")
		if !ok {
			frames = portaudio.DefaultFramesPerBuffer
		}
		return portaudio.New(captureFormat(entry), frames)
	})

	// ── Playback ──────────────────────────────────────────────────────────────

	reg.RegisterPlayback("malgo", func(config.ProviderEntry) (audio.Sink, error) {
		mctx, err := devices.get()
		if err != nil {
			return nil, err
		}
		return mctx.NewPlayback(), nil
	})

	reg.RegisterPlayback("speaker", func(entry config.ProviderEntry) (audio.Sink, error) {
		rate, ok := optInt(entry.Options, "sample_rate")
		if !ok {
			rate = int(speaker.DefaultSampleRate)
		}
		return speaker.New(beep.SampleRate(rate))
	})

	// Debug log of all registered providers.
	for _, kind := range []string{"transcription", "conversation", "capture", "playback"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// captureFormat reads the device format from the capture options, defaulting
// to the take format so no conversion is needed.
func captureFormat(entry config.ProviderEntry) audio.Format {
	f := audio.TakeFormat
	if rate, ok := optInt(entry.Options, "sample_rate"); ok {
		f.SampleRate = rate
	}
	if ch, ok := optInt(entry.Options, "channels"); ok {
		f.Channels = ch
	}
	return f
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.Transcription, err = create(reg.CreateTranscription, "transcription", cfg.Providers.Transcription); err != nil {
		return nil, err
	}
	if ps.Conversation, err = create(reg.CreateConversation, "conversation", cfg.Providers.Conversation); err != nil {
		return nil, err
	}
	// A broken audio device is not fatal: the assistant still serves the
	// HTTP surface and reports the device through /readyz.
	if ps.Capture, err = create(reg.CreateCapture, "capture", cfg.Providers.Capture); err != nil {
		slog.Error("capture device unavailable", "err", err)
		ps.Capture = nil
	}
	if ps.Playback, err = create(reg.CreatePlayback, "playback", cfg.Providers.Playback); err != nil {
		slog.Error("playback device unavailable", "err", err)
		ps.Playback = nil
	}
	return ps, nil
}

func create[T any](factory func(config.ProviderEntry) (T, error), kind string, entry config.ProviderEntry) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := factory(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not available in this build; skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// closeProviders releases remote providers that hold native resources
// (whisper models). The application closes the audio devices.
func closeProviders(ps *app.Providers) {
	for _, p := range []any{ps.Transcription, ps.Conversation} {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Jarvis — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Transcription", cfg.Providers.Transcription.Name, cfg.Providers.Transcription.Model)
	printProvider(w, "Conversation", cfg.Providers.Conversation.Name, cfg.Providers.Conversation.Model)
	printProvider(w, "Capture", cfg.Providers.Capture.Name, "")
	printProvider(w, "Playback", cfg.Providers.Playback.Name, "")
	gate := "off"
	if cfg.Assistant.RequireWakeWord {
		gate = "armed"
	}
	fmt.Fprintf(w, "║  Wake gate       : %-19s ║\n", gate)
	history := "memory"
	if cfg.History.PostgresDSN != "" {
		history = "postgres"
	}
	fmt.Fprintf(w, "║  History         : %-19s ║\n", history)
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML numbers decode as int; floats are
// truncated.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// optDuration parses a duration option such as "20s". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
