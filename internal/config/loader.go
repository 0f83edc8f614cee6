package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcription": {"jarvis", "whisper", "whisper-native", "openai"},
	"conversation":  {"jarvis", "openai"},
	"capture":       {"malgo", "portaudio"},
	"playback":      {"malgo", "speaker"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config], which is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcription", cfg.Providers.Transcription.Name)
	validateProviderName("conversation", cfg.Providers.Conversation.Name)
	validateProviderName("capture", cfg.Providers.Capture.Name)
	validateProviderName("playback", cfg.Providers.Playback.Name)

	for _, p := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"transcription", cfg.Providers.Transcription},
		{"conversation", cfg.Providers.Conversation},
	} {
		if p.entry.BaseURL == "" {
			continue
		}
		if u, err := url.Parse(p.entry.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("providers.%s.base_url %q is not an absolute URL", p.kind, p.entry.BaseURL))
		}
	}
	if cfg.Providers.Transcription.Name == "whisper-native" && cfg.Providers.Transcription.Model == "" {
		errs = append(errs, errors.New("providers.transcription: whisper-native requires model (path to a ggml model file)"))
	}
	if cfg.Providers.Transcription.Name == "openai" && cfg.Providers.Transcription.APIKey == "" {
		slog.Warn("providers.transcription.api_key is empty; the openai client will read OPENAI_API_KEY")
	}

	// Provider availability warnings
	if cfg.Providers.Capture.Name == "" {
		slog.Warn("no capture provider configured; recording will report the device as unavailable")
	}
	if cfg.Providers.Playback.Name == "" {
		slog.Warn("no playback provider configured; replies will not be audible")
	}

	// Assistant
	a := cfg.Assistant
	if a.WakePhrase != "" && strings.TrimSpace(a.WakePhrase) == "" {
		errs = append(errs, errors.New("assistant.wake_phrase must not be blank"))
	}
	if a.WakeMatch != "" && !a.WakeMatch.IsValid() {
		errs = append(errs, fmt.Errorf("assistant.wake_match %q is invalid; valid values: substring, phonetic", a.WakeMatch))
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"transcription", a.Timeouts.Transcription},
		{"reply", a.Timeouts.Reply},
		{"playback", a.Timeouts.Playback},
	} {
		if t.d < 0 {
			errs = append(errs, fmt.Errorf("assistant.timeouts.%s %v must not be negative", t.name, t.d))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %v must not be negative", cfg.Resilience.ResetTimeout))
	}

	// History
	if cfg.History.SessionID != "" && cfg.History.PostgresDSN == "" {
		slog.Warn("history.session_id is set but history.postgres_dsn is empty; the conversation will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
