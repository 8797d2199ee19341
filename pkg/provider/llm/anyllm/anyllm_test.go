package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		t.Run(role, func(t *testing.T) {
			got := convertMessage(llm.Message{Role: role, Content: "Tell me about closures."})
			if got.Role != role {
				t.Errorf("expected role %q, got %q", role, got.Role)
			}
			if got.ContentString() != "Tell me about closures." {
				t.Errorf("unexpected content %q", got.ContentString())
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.7,
		MaxTokens:    300,
	})
	if params.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("expected system prompt followed by one message, got %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature not set: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 300 {
		t.Errorf("max tokens not set: %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Error("temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil when zero")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model     string
		window    int
		maxOutput int
	}{
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-pro", 128_000, 8_192},
		{"GPT-4o", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"claude-3-5-sonnet-latest", 200_000, 8_192},
		{"deepseek-chat", 64_000, 8_192},
		{"mystery-model", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.window {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.window)
			}
			if caps.MaxOutputTokens != tt.maxOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.maxOutput)
			}
		})
	}
}

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gemini-2.0-flash"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("gemini", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewGemini_DefaultModel(t *testing.T) {
	p, err := NewGemini("", anyllmlib.WithAPIKey("g-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != DefaultGeminiModel {
		t.Errorf("model = %q, want %q", p.model, DefaultGeminiModel)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", p.Name())
	}
}

func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestBuildParams_JSONInstruction(t *testing.T) {
	p := &Provider{model: "llama3"}
	tests := []struct {
		name   string
		system string
		want   string
	}{
		{name: "appended to system prompt", system: "Score the interview.", want: "Score the interview.\n\n" + jsonInstruction},
		{name: "stands alone", want: jsonInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := p.buildParams(llm.CompletionRequest{
				SystemPrompt: tt.system,
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "transcript"}},
				JSON:         true,
			})
			if len(params.Messages) != 2 || params.Messages[0].ContentString() != tt.want {
				t.Errorf("system message = %+v", params.Messages[0])
			}
		})
	}
}

func TestCreateBackend_Unsupported(t *testing.T) {
	_, err := New("carrier-pigeon", "model")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	for _, name := range Backends() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not list %q", err, name)
		}
	}
}

func TestBackends_Sorted(t *testing.T) {
	got := Backends()
	if !slices.IsSorted(got) || !slices.Contains(got, "gemini") || len(got) != 9 {
		t.Errorf("Backends() = %v", got)
	}
}
