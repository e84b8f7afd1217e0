package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// errBlankAnswer makes a backend that answered with nothing count as failed,
// so the next backend gets a chance at the batch.
var errBlankAnswer = errors.New("blank completion")

// LLMFallback is an [llm.Provider] that fails over across completion
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a fallback chain led by primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Check reports whether any backend can currently be tried.
func (f *LLMFallback) Check(ctx context.Context) error { return f.group.Check(ctx) }

// Complete sends the whole candidate batch to the first backend that answers
// with text. An invalid request is rejected before any backend sees it.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, errBlankAnswer
		}
		return resp, nil
	})
}
