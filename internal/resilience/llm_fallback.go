package resilience

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// backend is one dialogue provider in an [LLMFallback].
type backend struct {
	name     string
	index    int
	provider llm.Provider
}

// LLMFallback is the dialogue provider the interviewer talks to: a primary
// backend and optional fallbacks, each behind its own circuit breaker. A
// call that the primary cannot answer is retried on the next healthy
// fallback within the same attempt, so the dialogue retry budget is spent
// only when every backend failed.
type LLMFallback struct {
	group  *FallbackGroup[backend]
	served []*atomic.Uint64
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	f := &LLMFallback{}
	f.group = NewFallbackGroup(backend{name: primaryName, provider: primary}, primaryName, cfg)
	f.served = append(f.served, new(atomic.Uint64))
	return f
}

// AddFallback registers a backend tried after the ones added before it.
// Must not be called once the group is in use.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, backend{name: name, index: len(f.served), provider: provider})
	f.served = append(f.served, new(atomic.Uint64))
}

// Complete sends req to the first backend that answers. Answers from a
// fallback are logged so operators notice a degraded primary.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var answeredBy backend
	resp, err := ExecuteWithResult(f.group, func(b backend) (*llm.CompletionResponse, error) {
		r, err := b.provider.Complete(ctx, req)
		if err == nil {
			answeredBy = b
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}
	f.served[answeredBy.index].Add(1)
	if answeredBy.index > 0 {
		slog.Warn("llm answered by fallback", "backend", answeredBy.name)
	}
	return resp, nil
}

// Capabilities returns the primary's capabilities.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.entries[0].value.provider.Capabilities()
}

// Status reports the breaker state and answered call count of every
// backend, primary first.
func (f *LLMFallback) Status() []EntryStatus {
	st := f.group.Status()
	for i := range st {
		st[i].Served = f.served[i].Load()
	}
	return st
}
