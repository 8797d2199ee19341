package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	"github.com/MrWong99/parley/pkg/provider/llm/openai"
)

// DefaultOpenAIModel is used when an openai entry names no model.
const DefaultOpenAIModel = "gpt-4o-mini"

// anyllmProviders are served through any-llm-go. They share the same
// pattern: optional APIKey plus optional BaseURL.
var anyllmProviders = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// RegisterProviders wires every built-in LLM factory into reg.
func RegisterProviders(reg *config.Registry) {
	// openai goes through the official SDK so OpenAI-compatible gateways can
	// be reached with base_url and an organization option.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			if providerName == "gemini" {
				return anyllm.NewGemini(entry.Model, opts...)
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// fallbackConfig counts every breaker transition in m.
func fallbackConfig(m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
}

// buildLLM instantiates the primary provider and the optional fallback and
// groups them behind per-provider circuit breakers.
func buildLLM(cfg config.LLMConfig, reg *config.Registry, m *observe.Metrics) (*resilience.LLMFallback, error) {
	primary, err := reg.CreateLLM(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Primary.Name, "model", cfg.Primary.Model)
	group := resilience.NewLLMFallback(primary, cfg.Primary.Name, fallbackConfig(m))

	if fb := cfg.Fallback; fb != nil {
		p, err := reg.CreateLLM(*fb)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("fallback provider not available, continuing without it", "name", fb.Name)
		case err != nil:
			return nil, fmt.Errorf("create fallback llm provider %q: %w", fb.Name, err)
		default:
			group.AddFallback(fb.Name, p)
			slog.Info("provider created", "kind", "llm-fallback", "name", fb.Name, "model", fb.Model)
		}
	}
	return group, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string ("30s") from a provider Options map.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
