package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Log level and
// capture settings can be applied to a running server; everything else
// is reported as requiring a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CaptureChanged is set when the speech-capture settings changed.
	// New connections pick them up immediately; established capture
	// sessions keep the settings they were handed at connect time.
	CaptureChanged bool
	NewCapture     CaptureConfig

	// RestartRequired lists the config sections that changed but cannot
	// be applied without restarting the server.
	RestartRequired []string
}

// Empty reports whether no tracked change was detected.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CaptureChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !captureEqual(old.Capture, new.Capture) {
		d.CaptureChanged = true
		d.NewCapture = new.Capture
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Auth != new.Auth {
		d.RestartRequired = append(d.RestartRequired, "auth")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

func captureEqual(a, b CaptureConfig) bool {
	return a.Language == b.Language &&
		a.InterimResultsEnabled() == b.InterimResultsEnabled() &&
		a.ContinuousEnabled() == b.ContinuousEnabled()
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.LLMFallback, b.LLMFallback) &&
		entryEqual(a.Image, b.Image) &&
		entryEqual(a.Embeddings, b.Embeddings)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
