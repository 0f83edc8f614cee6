// Package config provides the configuration schema, loader, and provider registry
// for the Jarvis voice assistant.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/jarvis/internal/orchestrator"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown or empty levels map
// to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WakeMatch selects how the wake phrase is detected in a transcript.
type WakeMatch string

const (
	// WakeMatchSubstring is a case-insensitive substring test.
	WakeMatchSubstring WakeMatch = "substring"

	// WakeMatchPhonetic also accepts near-misses of the phrase.
	WakeMatchPhonetic WakeMatch = "phonetic"
)

// IsValid reports whether m is a recognised match mode.
func (m WakeMatch) IsValid() bool {
	return m == WakeMatchSubstring || m == WakeMatchPhonetic
}

// Config is the root configuration structure for Jarvis.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Resilience ResilienceConfig `yaml:"resilience"`
	History    HistoryConfig    `yaml:"history"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds the HTTP surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the address for the control API, health probes and
	// metrics (e.g. ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log level. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output while the terminal UI owns the screen.
	// Default: jarvis.log.
	LogFile string `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the implementation for each pluggable component.
type ProvidersConfig struct {
	Transcription ProviderEntry `yaml:"transcription"`
	Conversation  ProviderEntry `yaml:"conversation"`
	Capture       ProviderEntry `yaml:"capture"`
	Playback      ProviderEntry `yaml:"playback"`
}

// ProviderEntry is the common configuration for a single provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g. "jarvis", "openai", "malgo").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted APIs.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model (or model file for native whisper).
	Model string `yaml:"model"`

	// Options carries provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig controls the conversation behaviour.
type AssistantConfig struct {
	// WakePhrase opens the gate. Default: "hey jarvis".
	WakePhrase string `yaml:"wake_phrase"`

	// RequireWakeWord makes the assistant wait for the wake phrase before it
	// answers. Turning it on in a running process re-arms the gate.
	RequireWakeWord bool `yaml:"require_wake_word"`

	// WakeMatch selects the detector. Default: substring.
	WakeMatch WakeMatch `yaml:"wake_match"`

	// ReminderPrompt is spoken when the wake phrase is missing.
	ReminderPrompt string `yaml:"reminder_prompt"`

	// AnnounceErrors forwards failure notices to the UI and the event feed.
	// Default: true. Use [AssistantConfig.Announce] to read it.
	AnnounceErrors *bool `yaml:"announce_errors"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// Announce reports the effective announce_errors setting.
func (a AssistantConfig) Announce() bool {
	return a.AnnounceErrors == nil || *a.AnnounceErrors
}

// TimeoutsConfig bounds each awaiting stage. Zero fields take the defaults.
type TimeoutsConfig struct {
	Transcription time.Duration `yaml:"transcription"`
	Reply         time.Duration `yaml:"reply"`
	Playback      time.Duration `yaml:"playback"`
}

// ResilienceConfig tunes the circuit breakers around the remote clients.
type ResilienceConfig struct {
	// MaxFailures consecutive failures open a breaker. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker rejects calls. Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// HistoryConfig configures the persistent conversation log.
type HistoryConfig struct {
	// PostgresDSN enables persistence. Empty keeps history in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SessionID groups the utterances of one run. Default: a random UUID.
	SessionID string `yaml:"session_id"`
}

// ArchiveConfig controls on-disk retention of recorded takes.
type ArchiveConfig struct {
	// Dir keeps every take as a WAV file when set.
	Dir string `yaml:"dir"`
}

// MachineConfig converts the assistant section into the settings of the
// conversation state machine.
func (a AssistantConfig) MachineConfig() orchestrator.Config {
	cfg := orchestrator.Config{
		WakePhrase:      a.WakePhrase,
		ReminderPrompt:  a.ReminderPrompt,
		RequireWakeWord: a.RequireWakeWord,
	}
	if a.WakeMatch == WakeMatchPhonetic {
		cfg.Matcher = orchestrator.PhoneticMatcher{}
	}
	def := orchestrator.DefaultTimeouts()
	cfg.Timeouts = orchestrator.Timeouts{
		Transcription: orDefault(a.Timeouts.Transcription, def.Transcription),
		Reply:         orDefault(a.Timeouts.Reply, def.Reply),
		Playback:      orDefault(a.Timeouts.Playback, def.Playback),
	}
	return cfg
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
