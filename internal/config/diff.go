package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeGateArmed is true when require_wake_word was switched on. The
	// running assistant must then wait for the wake phrase again.
	WakeGateArmed bool

	AnnounceErrorsChanged bool
	AnnounceErrors        bool

	// RestartRequired lists settings that changed but only take effect
	// after a restart (providers, timeouts, persistence, listen address).
	RestartRequired []string
}

// Changed reports whether d carries anything to apply or report.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WakeGateArmed || d.AnnounceErrorsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Switching the gate off is not applied to a running assistant: a
	// pending gate only clears when the phrase is heard.
	if !old.Assistant.RequireWakeWord && new.Assistant.RequireWakeWord {
		d.WakeGateArmed = true
	}

	if old.Assistant.Announce() != new.Assistant.Announce() {
		d.AnnounceErrorsChanged = true
		d.AnnounceErrors = new.Assistant.Announce()
	}

	if !sameEntry(old.Providers.Transcription, new.Providers.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "providers.transcription")
	}
	if !sameEntry(old.Providers.Conversation, new.Providers.Conversation) {
		d.RestartRequired = append(d.RestartRequired, "providers.conversation")
	}
	if !sameEntry(old.Providers.Capture, new.Providers.Capture) {
		d.RestartRequired = append(d.RestartRequired, "providers.capture")
	}
	if !sameEntry(old.Providers.Playback, new.Providers.Playback) {
		d.RestartRequired = append(d.RestartRequired, "providers.playback")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	oa, na := old.Assistant, new.Assistant
	if oa.WakePhrase != na.WakePhrase || oa.WakeMatch != na.WakeMatch || oa.ReminderPrompt != na.ReminderPrompt {
		d.RestartRequired = append(d.RestartRequired, "assistant.wake")
	}
	if oa.Timeouts != na.Timeouts {
		d.RestartRequired = append(d.RestartRequired, "assistant.timeouts")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Archive != new.Archive {
		d.RestartRequired = append(d.RestartRequired, "archive")
	}

	return d
}

// sameEntry compares the scalar fields of two provider entries. Options
// maps are compared by key count only; a changed option value alone is not
// detected.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && len(a.Options) == len(b.Options)
}
