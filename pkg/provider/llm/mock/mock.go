// Package mock provides an in-memory [llm.Provider] for tests and for the
// "mock" registry entry, which runs the pipeline without a model.
//
//	p := &mock.Provider{Responses: []string{mock.Candidates("Riding through the city")}}
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// CannedLines are the candidates answered by [NewCanned].
var CannedLines = []string{
	"Riding through the city",
	"Never looking back now",
	"Money on my mind state",
	"Living for the moment",
	"Sky is not the limit",
}

// Candidates renders lines in the {"candidates": [...]} shape the generator
// asks models for.
func Candidates(lines ...string) string {
	data, _ := json.Marshal(map[string][]string{"candidates": lines})
	return string(data)
}

// NewCanned returns a Provider that always answers with [CannedLines].
func NewCanned() *Provider {
	return &Provider{CompleteResponse: &llm.CompletionResponse{Content: Candidates(CannedLines...)}}
}

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Provider answers from its fields in this order: CompleteErr, then
// Responses, then CompleteResponse. Set fields before the first call.
type Provider struct {
	// CompleteErr fails every call.
	CompleteErr error

	// Responses are answered one per call; the last one repeats.
	Responses []string

	// CompleteResponse is answered when Responses is empty. Nil yields a nil
	// response and no error.
	CompleteResponse *llm.CompletionResponse

	mu sync.Mutex

	// CompleteCalls holds every call in order. Read it after the calls
	// finish or use [Provider.CallCount].
	CompleteCalls []CompleteCall
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	switch {
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case len(p.Responses) > 0:
		return &llm.CompletionResponse{Content: p.Responses[min(n, len(p.Responses)-1)]}, nil
	default:
		return p.CompleteResponse, nil
	}
}

// CallCount returns the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
