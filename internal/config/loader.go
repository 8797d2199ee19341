package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the LLM provider names known to the server.
// Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path, overlays PARLEY_*
// environment variables, applies defaults and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	ApplyDefaults(cfg)
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Secrets are checked separately by [RequireSecrets].
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	// LLM
	validateProviderName("llm.primary", cfg.LLM.Primary.Name)
	if cfg.LLM.Fallback != nil {
		if cfg.LLM.Fallback.Name == "" {
			errs = append(errs, errors.New("llm.fallback.name is required when llm.fallback is set"))
		}
		validateProviderName("llm.fallback", cfg.LLM.Fallback.Name)
	}
	if cfg.LLM.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("llm.max_attempts %d must not be negative", cfg.LLM.MaxAttempts))
	}
	if cfg.LLM.Backoff < 0 || cfg.LLM.Timeout < 0 {
		errs = append(errs, errors.New("llm.backoff and llm.timeout must not be negative"))
	}

	// Speech
	if cfg.Speech.Engine != "" && !cfg.Speech.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("speech.engine %q is invalid; valid values: browser, console", cfg.Speech.Engine))
	}
	if cfg.Speech.Rate != 0 && (cfg.Speech.Rate < 0.1 || cfg.Speech.Rate > 10) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.1, 10]", cfg.Speech.Rate))
	}

	// Interview
	if cfg.Interview.DurationMinutes < 0 {
		errs = append(errs, fmt.Errorf("interview.duration_minutes %d must not be negative", cfg.Interview.DurationMinutes))
	}
	if cfg.Interview.ContextUtterances < 0 {
		errs = append(errs, fmt.Errorf("interview.context_utterances %d must not be negative", cfg.Interview.ContextUtterances))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if cfg.Storage.Backend == StorageMemory {
		slog.Warn("storage.backend is memory; finished sessions are lost on restart")
	}

	for topic, terms := range cfg.Vocabulary {
		if len(terms) == 0 {
			slog.Warn("vocabulary topic has no terms", "topic", topic)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not a known
// LLM provider.
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidLLMProviders, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidLLMProviders,
	)
}
