// In-process transcription through the whisper.cpp CGO bindings. Linking
// needs libwhisper.a and whisper.h on LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// minNativeSamples is one second at the model rate. whisper.cpp drops shorter
// input, and a single hummed phrase is often shorter.
const minNativeSamples = defaultSampleRate

var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeProvider implements [stt.Transcriber] with an in-process model. The
// model is loaded once; every call decodes in a fresh context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	prompt   string
	threads  uint

	// mu serialises inference, which already uses every core.
	mu sync.Mutex
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the decoding language. Default: "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativePrompt primes the decoder, e.g. with vocables like "na na da"
// so hummed syllables come back as words instead of nothing.
func WithNativePrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// WithNativeThreads caps decoder threads. Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe implements [stt.Transcriber]. Segments are limited to one token
// and split on word boundaries, giving one timed segment per word. Silent
// buffers return no words without running the model.
func (p *NativeProvider) Transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if audio.RMS(buf.Samples) < defaultSilenceThreshold {
		return nil, nil
	}
	samples := padTo(audio.Resample(buf, defaultSampleRate).Samples, minNativeSamples)

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.newContext(ctx)
	if err != nil {
		return nil, err
	}
	// Returning false from the encoder callback aborts the run.
	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, proceed, nil, nil); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper: %w", ctx.Err())
		}
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}
	return readWords(wctx)
}

func (p *NativeProvider) newContext(ctx context.Context) (whisperlib.Context, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.WarnContext(ctx, "whisper: language rejected, using model default", "language", p.language, "error", err)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	wctx.SetTokenTimestamps(true)
	wctx.SetSplitOnWord(true)
	wctx.SetMaxSegmentLength(1)
	return wctx, nil
}

func readWords(wctx whisperlib.Context) ([]types.TranscribedWord, error) {
	var words []types.TranscribedWord
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return stt.CleanWords(words), nil
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		words = append(words, stt.SpreadWords(seg.Text, seg.Start, seg.End)...)
	}
}

// padTo appends silence so samples has at least n entries. Timestamps are
// unaffected because the padding is trailing.
func padTo(samples []float32, n int) []float32 {
	if len(samples) >= n {
		return samples
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}
