package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by [ApplyEnv].
const EnvPrefix = "PARLEY_"

// ErrConfigurationMissing is returned by [RequireSecrets] when a value the
// server cannot start without is absent. It is fatal at startup.
var ErrConfigurationMissing = errors.New("config: required configuration missing")

// keylessProviders run locally and need no API credential.
var keylessProviders = []string{"ollama", "llamacpp", "llamafile"}

// Overrides holds the values that may be supplied through the environment.
// Non-empty fields replace their YAML counterparts.
type Overrides struct {
	ListenAddr        string `env:"LISTEN_ADDR"`
	LogLevel          string `env:"LOG_LEVEL"`
	LLMProvider       string `env:"LLM_PROVIDER"`
	LLMModel          string `env:"LLM_MODEL"`
	LLMAPIKey         string `env:"LLM_API_KEY"`
	LLMFallbackAPIKey string `env:"LLM_FALLBACK_API_KEY"`
	PostgresDSN       string `env:"POSTGRES_DSN"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Variables that are already set
// are not overwritten and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays PARLEY_* variables onto cfg. When environ is nil the
// process environment is used.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	var o Overrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	if o.ListenAddr != "" {
		cfg.Server.ListenAddr = o.ListenAddr
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(o.LogLevel)
	}
	if o.LLMProvider != "" {
		cfg.LLM.Primary.Name = o.LLMProvider
	}
	if o.LLMModel != "" {
		cfg.LLM.Primary.Model = o.LLMModel
	}
	if o.LLMAPIKey != "" {
		cfg.LLM.Primary.APIKey = o.LLMAPIKey
	}
	if o.LLMFallbackAPIKey != "" && cfg.LLM.Fallback != nil {
		cfg.LLM.Fallback.APIKey = o.LLMFallbackAPIKey
	}
	if o.PostgresDSN != "" {
		cfg.Storage.PostgresDSN = o.PostgresDSN
	}
	return nil
}

// RequireSecrets reports every credential an interview cannot run without.
// The returned error wraps [ErrConfigurationMissing].
func RequireSecrets(cfg *Config) error {
	var errs []error
	if cfg.LLM.Primary.Name == "" {
		errs = append(errs, fmt.Errorf("%w: llm.primary.name (or %sLLM_PROVIDER)", ErrConfigurationMissing, EnvPrefix))
	} else if needsAPIKey(cfg.LLM.Primary) {
		errs = append(errs, fmt.Errorf("%w: API key for llm provider %q (set %sLLM_API_KEY)", ErrConfigurationMissing, cfg.LLM.Primary.Name, EnvPrefix))
	}
	if fb := cfg.LLM.Fallback; fb != nil && fb.Name != "" && needsAPIKey(*fb) {
		errs = append(errs, fmt.Errorf("%w: API key for fallback llm provider %q (set %sLLM_FALLBACK_API_KEY)", ErrConfigurationMissing, fb.Name, EnvPrefix))
	}
	return errors.Join(errs...)
}

func needsAPIKey(e ProviderEntry) bool {
	return e.APIKey == "" && !slices.Contains(keylessProviders, e.Name)
}
