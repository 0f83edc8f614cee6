package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/pkg/audio"
	audiomock "github.com/MrWong99/jarvis/pkg/audio/mock"
	"github.com/MrWong99/jarvis/pkg/provider/converse"
	conversemock "github.com/MrWong99/jarvis/pkg/provider/converse/mock"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
	transcribemock "github.com/MrWong99/jarvis/pkg/provider/transcribe/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  log_file: /tmp/jarvis.log

providers:
  transcription:
    name: jarvis
    base_url: http://localhost:8000
  conversation:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    options:
      voice: alloy
  capture:
    name: malgo
  playback:
    name: speaker

assistant:
  wake_phrase: "hey jarvis"
  require_wake_word: true
  wake_match: phonetic
  reminder_prompt: "Please say 'Hey Jarvis' to begin."
  announce_errors: false
  timeouts:
    transcription: 10s
    reply: 45s

resilience:
  max_failures: 3
  reset_timeout: 15s

history:
  postgres_dsn: postgres://localhost/jarvis
  session_id: kitchen

archive:
  dir: /var/lib/jarvis/takes
`

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.Transcription.Name != "jarvis" || cfg.Providers.Transcription.BaseURL != "http://localhost:8000" {
		t.Errorf("transcription: got %+v", cfg.Providers.Transcription)
	}
	if cfg.Providers.Conversation.Options["voice"] != "alloy" {
		t.Errorf("conversation options: got %v", cfg.Providers.Conversation.Options)
	}
	a := cfg.Assistant
	if !a.RequireWakeWord || a.WakeMatch != config.WakeMatchPhonetic {
		t.Errorf("assistant: got %+v", a)
	}
	if a.Announce() {
		t.Error("Announce() = true, want false")
	}
	if a.Timeouts.Transcription != 10*time.Second || a.Timeouts.Reply != 45*time.Second || a.Timeouts.Playback != 0 {
		t.Errorf("timeouts: got %+v", a.Timeouts)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 15*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
	if cfg.History.SessionID != "kitchen" || cfg.Archive.Dir != "/var/lib/jarvis/takes" {
		t.Errorf("history/archive: got %+v %+v", cfg.History, cfg.Archive)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Assistant.Announce() {
		t.Error("announce_errors should default to true")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("assistant:\n  wake_word: hey\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.Capture.Name != "malgo" {
		t.Errorf("capture: got %q", cfg.Providers.Capture.Name)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want os.ErrNotExist", err)
	}
}

func TestAssistantConfig_MachineConfig(t *testing.T) {
	t.Parallel()
	a := config.AssistantConfig{
		WakePhrase:      "ok computer",
		RequireWakeWord: true,
		WakeMatch:       config.WakeMatchPhonetic,
		Timeouts:        config.TimeoutsConfig{Reply: 5 * time.Second},
	}
	mc := a.MachineConfig()
	if mc.WakePhrase != "ok computer" || !mc.RequireWakeWord {
		t.Errorf("MachineConfig() = %+v", mc)
	}
	if _, ok := mc.Matcher.(orchestrator.PhoneticMatcher); !ok {
		t.Errorf("Matcher = %T, want PhoneticMatcher", mc.Matcher)
	}
	def := orchestrator.DefaultTimeouts()
	want := orchestrator.Timeouts{Transcription: def.Transcription, Reply: 5 * time.Second, Playback: def.Playback}
	if mc.Timeouts != want {
		t.Errorf("Timeouts = %+v, want %+v", mc.Timeouts, want)
	}

	if m := (config.AssistantConfig{}).MachineConfig().Matcher; m != nil {
		t.Errorf("default Matcher = %T, want nil (substring default)", m)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	_, err := reg.CreateTranscription(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTranscription: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateConversation(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateConversation: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateCapture(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateCapture: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreatePlayback(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreatePlayback: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	tp := &transcribemock.Provider{}
	cp := &conversemock.Provider{}
	src := &audiomock.Source{}
	sink := audiomock.NewSink(false)

	var gotEntry config.ProviderEntry
	reg.RegisterTranscription("jarvis", func(e config.ProviderEntry) (transcribe.Provider, error) {
		gotEntry = e
		return tp, nil
	})
	reg.RegisterConversation("jarvis", func(config.ProviderEntry) (converse.Provider, error) { return cp, nil })
	reg.RegisterCapture("malgo", func(config.ProviderEntry) (audio.Source, error) { return src, nil })
	reg.RegisterPlayback("speaker", func(config.ProviderEntry) (audio.Sink, error) { return sink, nil })

	got, err := reg.CreateTranscription(config.ProviderEntry{Name: "jarvis", BaseURL: "http://x"})
	if err != nil || got != tp {
		t.Errorf("CreateTranscription = %v, %v", got, err)
	}
	if gotEntry.BaseURL != "http://x" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if c, err := reg.CreateConversation(config.ProviderEntry{Name: "jarvis"}); err != nil || c != cp {
		t.Errorf("CreateConversation = %v, %v", c, err)
	}
	if s, err := reg.CreateCapture(config.ProviderEntry{Name: "malgo"}); err != nil || s != src {
		t.Errorf("CreateCapture = %v, %v", s, err)
	}
	if s, err := reg.CreatePlayback(config.ProviderEntry{Name: "speaker"}); err != nil || s != sink {
		t.Errorf("CreatePlayback = %v, %v", s, err)
	}

	if names := reg.Names("capture"); !slices.Equal(names, []string{"malgo"}) {
		t.Errorf("Names(capture) = %v", names)
	}
	if names := reg.Names("bogus"); len(names) != 0 {
		t.Errorf("Names(bogus) = %v, want empty", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no model file")
	reg.RegisterTranscription("whisper-native", func(config.ProviderEntry) (transcribe.Provider, error) {
		return nil, boom
	})
	_, err := reg.CreateTranscription(config.ProviderEntry{Name: "whisper-native"})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &conversemock.Provider{}
	second := &conversemock.Provider{}
	reg.RegisterConversation("jarvis", func(config.ProviderEntry) (converse.Provider, error) { return first, nil })
	reg.RegisterConversation("jarvis", func(config.ProviderEntry) (converse.Provider, error) { return second, nil })
	got, err := reg.CreateConversation(config.ProviderEntry{Name: "jarvis"})
	if err != nil || got != second {
		t.Errorf("CreateConversation = %v, %v; want the later registration", got, err)
	}
}
