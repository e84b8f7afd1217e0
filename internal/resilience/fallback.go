package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template applied to every entry of a
// [FallbackGroup]. The entry name replaces CircuitBreaker.Name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable providers, each behind
// its own breaker. Register every fallback before sharing the group; after
// that it is safe for concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends v as the next provider to try.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Names returns the entry names in failover order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, 0, len(fg.members))
	for _, m := range fg.members {
		out = append(out, m.name)
	}
	return out
}

// Check fails when every breaker in the group is open, that is when the next
// call could not reach any provider. It backs the readiness probe.
func (fg *FallbackGroup[T]) Check(context.Context) error {
	var open []string
	for _, m := range fg.members {
		if m.breaker.State() != StateOpen {
			return nil
		}
		open = append(open, m.name)
	}
	return fmt.Errorf("%w: circuits open for %s", ErrCircuitOpen, strings.Join(open, ", "))
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn on each entry of fg in order and returns the
// first success.
//
// A done ctx or a caller error from fn (see [IsCallerError]) ends failover
// and is returned unwrapped: a later provider would hit the same deadline.
// When every entry fails or is skipped the last error is wrapped in
// [ErrAllFailed].
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var last error
	for i, m := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := run(m, fn)
		switch {
		case err == nil:
			if i > 0 {
				slog.DebugContext(ctx, "answered by fallback provider", "provider", m.name, "position", i)
			}
			return res, nil
		case IsCallerError(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.DebugContext(ctx, "provider skipped, circuit open", "provider", m.name)
		default:
			slog.WarnContext(ctx, "provider failed, failing over", "provider", m.name, "err", err)
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

func run[T any, R any](m member[T], fn func(T) (R, error)) (R, error) {
	var res R
	err := m.breaker.Execute(func() error {
		var err error
		res, err = fn(m.value)
		return err
	})
	return res, err
}
