package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "gemini", "anthropic", "ollama"},
	"image":      {"openai", "gemini"},
	"embeddings": {"openai", "gemini", "ollama"},
}

// Default values applied by [LoadFromReader] for fields left empty.
const (
	DefaultListenAddr      = ":8080"
	DefaultIssuer          = "ideaspark"
	DefaultTokenTTL        = 24 * time.Hour
	DefaultCaptureLanguage = "en-US"
)

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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = DefaultIssuer
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = DefaultTokenTTL
	}
	if cfg.Capture.Language == "" {
		cfg.Capture.Language = DefaultCaptureLanguage
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Auth
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(cfg.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is %d bytes; at least 32 are required", len(cfg.Auth.JWTSecret)))
	}
	if cfg.Auth.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl %s must be positive", cfg.Auth.TokenTTL))
	}

	// Provider name validation; warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// An LLM provider is mandatory: both idea extraction and record
	// mutation go through it.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; voice commands cannot be interpreted without it"))
	} else if cfg.Providers.LLMFallback.Name == cfg.Providers.LLM.Name && cfg.Providers.LLMFallback.Model == cfg.Providers.LLM.Model && cfg.Providers.LLMFallback.Name != "" {
		slog.Warn("providers.llm_fallback is identical to providers.llm; fallback will retry the same provider")
	}

	// Optional provider warnings
	if cfg.Providers.Image.Name == "" {
		slog.Warn("providers.image is not configured; new ideas will not receive illustrative images")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; semantic search will be unavailable")
	}

	// Embeddings dimensions must match the configured model.
	if cfg.Providers.Embeddings.Name != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but store.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Store.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("store.embedding_dimensions %d must not be negative", cfg.Store.EmbeddingDimensions))
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; using the in-memory store, records will not survive a restart")
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
