package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/parley/internal/config"
)

func TestApplyEnv_Overrides(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Primary:  config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
			Fallback: &config.ProviderEntry{Name: "gemini"},
		},
	}
	err := config.ApplyEnv(cfg, map[string]string{
		"PARLEY_LLM_API_KEY":          "sk-primary",
		"PARLEY_LLM_FALLBACK_API_KEY": "g-fallback",
		"PARLEY_LLM_MODEL":            "gpt-4o",
		"PARLEY_LOG_LEVEL":            "debug",
		"PARLEY_POSTGRES_DSN":         "postgres://localhost/parley",
		"UNRELATED":                   "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LLM.Primary.APIKey != "sk-primary" {
		t.Errorf("primary APIKey = %q", cfg.LLM.Primary.APIKey)
	}
	if cfg.LLM.Primary.Model != "gpt-4o" {
		t.Errorf("primary Model = %q, want gpt-4o", cfg.LLM.Primary.Model)
	}
	if cfg.LLM.Fallback.APIKey != "g-fallback" {
		t.Errorf("fallback APIKey = %q", cfg.LLM.Fallback.APIKey)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Storage.PostgresDSN != "postgres://localhost/parley" {
		t.Errorf("PostgresDSN = %q", cfg.Storage.PostgresDSN)
	}
}

func TestApplyEnv_EmptyKeepsYAML(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{LLM: config.LLMConfig{Primary: config.ProviderEntry{Name: "gemini", APIKey: "from-yaml"}}}
	if err := config.ApplyEnv(cfg, map[string]string{}); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LLM.Primary.APIKey != "from-yaml" {
		t.Errorf("APIKey = %q, want from-yaml", cfg.LLM.Primary.APIKey)
	}
}

func TestRequireSecrets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		llm     config.LLMConfig
		missing bool
	}{
		{name: "no provider", llm: config.LLMConfig{}, missing: true},
		{name: "key missing", llm: config.LLMConfig{Primary: config.ProviderEntry{Name: "gemini"}}, missing: true},
		{name: "key present", llm: config.LLMConfig{Primary: config.ProviderEntry{Name: "gemini", APIKey: "k"}}},
		{name: "local provider", llm: config.LLMConfig{Primary: config.ProviderEntry{Name: "ollama"}}},
		{
			name: "fallback key missing",
			llm: config.LLMConfig{
				Primary:  config.ProviderEntry{Name: "gemini", APIKey: "k"},
				Fallback: &config.ProviderEntry{Name: "openai"},
			},
			missing: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := config.RequireSecrets(&config.Config{LLM: tt.llm})
			if got := errors.Is(err, config.ErrConfigurationMissing); got != tt.missing {
				t.Errorf("RequireSecrets() = %v, missing=%v want %v", err, got, tt.missing)
			}
		})
	}
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	t.Parallel()
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("LoadDotEnv on missing file: %v", err)
	}
}

func TestLoadDotEnv_SetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PARLEY_TEST_DOTENV_VALUE=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PARLEY_TEST_DOTENV_VALUE") })

	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PARLEY_TEST_DOTENV_VALUE"); got != "hello" {
		t.Errorf("PARLEY_TEST_DOTENV_VALUE = %q, want hello", got)
	}
}
