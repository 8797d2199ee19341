package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var got config.ProviderEntry
	want := &mock.Provider{}
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "fake", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want {
		t.Error("CreateLLM returned a different provider")
	}
	if got.Model != "m1" {
		t.Errorf("factory saw model %q, want m1", got.Model)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	_, err := config.NewRegistry().CreateLLM(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("CreateLLM = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	errFirst := errors.New("first")
	reg.RegisterLLM("b", func(config.ProviderEntry) (llm.Provider, error) { return nil, errFirst })
	reg.RegisterLLM("a", func(config.ProviderEntry) (llm.Provider, error) { return &mock.Provider{}, nil })
	reg.RegisterLLM("b", func(config.ProviderEntry) (llm.Provider, error) { return &mock.Provider{}, nil })

	if names := reg.LLMNames(); !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("LLMNames = %v, want [a b]", names)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "b"}); err != nil {
		t.Errorf("CreateLLM(b) = %v, want the second registration", err)
	}
}
