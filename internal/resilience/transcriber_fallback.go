package resilience

import (
	"context"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/types"
)

// TranscriberFallback implements [stt.Transcriber] with failover across
// several transcription backends, each behind its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Names returns the backend names in failover order.
func (f *TranscriberFallback) Names() []string { return f.group.Names() }

// Check reports whether any backend can currently be tried.
func (f *TranscriberFallback) Check(ctx context.Context) error { return f.group.Check(ctx) }

// Transcribe runs the first healthy backend over buf. An empty word list is a
// valid answer (silence, humming) and does not trigger failover.
func (f *TranscriberFallback) Transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) ([]types.TranscribedWord, error) {
		return t.Transcribe(ctx, buf)
	})
}
