// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance) behind a single blocking completion call. Lyric generation
// asks for one JSON object per call, so streaming and tool use are not part
// of the contract.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoChoices is returned when the backend answered without a choice.
	ErrNoChoices = errors.New("llm: response has no choices")

	// ErrRefused is returned when the model declined the request.
	ErrRefused = errors.New("llm: model refused")
)

// Usage is token accounting for one call. Counts are in the backend's own
// token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs for one answer.
type CompletionRequest struct {
	// Messages is the ordered conversation. It must not be empty.
	Messages []Message

	// SystemPrompt is sent ahead of Messages as a system-role message.
	SystemPrompt string

	// Temperature in [0, 2]. Zero keeps the backend default.
	Temperature float64

	// MaxTokens caps the completion. Zero keeps the backend default.
	MaxTokens int

	// Seed, when non-zero, requests repeatable sampling from backends that
	// support it.
	Seed int64

	// JSON asks for a single JSON object where the backend can enforce it.
	// Callers still parse defensively.
	JSON bool
}

// Validate reports whether r can be sent to a backend.
func (r CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("llm: request has no messages")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("llm: message %d has unknown role %q", i, m.Role)
		}
	}
	return nil
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the assistant's reply.
	Content string

	// Truncated is set when the model stopped at the token cap. A JSON
	// answer is then likely cut off mid-array.
	Truncated bool

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete returns promptly with an error wrapping ctx.Err() once ctx is
// cancelled.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
