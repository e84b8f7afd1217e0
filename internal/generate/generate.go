// Package generate requests candidate lyric lines from a language model.
//
// A [Generator] makes one batched call per request and returns the candidate
// lines it could extract. Model output is parsed defensively: small local
// models often wrap JSON in prose or code fences, or skip JSON entirely.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// Request is one batched generation call.
type Request struct {
	// System is the instruction prompt.
	System string

	// User carries the block-specific constraints.
	User string

	// Count is the number of candidates asked for. The result is capped at
	// Count when it is positive.
	Count int
}

// Generator produces candidate lines.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// ErrEmptyResponse is returned when the model answered with no usable text.
var ErrEmptyResponse = errors.New("generate: empty response")

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 512
)

// Option is a functional option for configuring an [LLM] generator.
type Option func(*LLM)

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(temp float64) Option {
	return func(g *LLM) {
		g.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(g *LLM) {
		g.maxTokens = n
	}
}

// WithSeed requests repeatable sampling from backends that support it.
// Zero leaves sampling unseeded.
func WithSeed(seed int64) Option {
	return func(g *LLM) {
		g.seed = seed
	}
}

// LLM is a [Generator] backed by an [llm.Provider]. It is safe for concurrent
// use.
//
// Model selection follows the one-provider-per-model pattern: construct the
// provider with the model configured rather than overriding per request.
type LLM struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	seed        int64
}

// Compile-time assertion that LLM implements Generator.
var _ Generator = (*LLM)(nil)

// NewLLM returns a generator backed by provider.
func NewLLM(provider llm.Provider, opts ...Option) *LLM {
	g := &LLM{
		provider:    provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate implements [Generator]. Transport failures are returned as errors;
// an unparseable but non-empty answer degrades to line splitting.
func (g *LLM) Generate(ctx context.Context, req Request) ([]string, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: req.System,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: req.User},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Seed:        g.seed,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: complete: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, ErrEmptyResponse
	}
	if resp.Truncated {
		slog.WarnContext(ctx, "generate: answer hit the token cap, keeping complete lines only",
			"max_tokens", g.maxTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
	}
	return ParseCandidates(resp.Content, req.Count), nil
}
