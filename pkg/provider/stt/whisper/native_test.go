package whisper

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
)

// nativeModel loads WHISPER_MODEL_PATH or skips the test.
func nativeModel(t *testing.T, opts ...NativeOption) *NativeProvider {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// hum is a 220 Hz tone of d at 16 kHz.
func hum(d time.Duration) audio.Buffer {
	n := int(d.Seconds() * defaultSampleRate)
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.3 * float32(math.Sin(2*math.Pi*220*float64(i)/defaultSampleRate))
	}
	return audio.Buffer{Samples: s, SampleRate: defaultSampleRate}
}

func TestPadTo(t *testing.T) {
	t.Parallel()

	short := []float32{0.1, 0.2}
	got := padTo(short, 4)
	if len(got) != 4 || got[0] != 0.1 || got[1] != 0.2 || got[3] != 0 {
		t.Errorf("padTo = %v", got)
	}
	long := []float32{1, 2, 3}
	if got := padTo(long, 2); &got[0] != &long[0] {
		t.Error("input at least n long should be returned as is")
	}
}

func TestNewNative_Errors(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"", "/nonexistent/ggml-base.en.bin"} {
		if _, err := NewNative(path); err == nil {
			t.Errorf("NewNative(%q): expected error", path)
		}
	}
}

func TestNativeTranscribe_SilenceSkipsModel(t *testing.T) {
	t.Parallel()
	// A zero provider has no model; reaching inference would panic.
	p := &NativeProvider{}
	words, err := p.Transcribe(context.Background(), audio.Buffer{Samples: make([]float32, 8000), SampleRate: defaultSampleRate})
	if err != nil || words != nil {
		t.Errorf("Transcribe(silence) = %v, %v", words, err)
	}
}

func TestNativeTranscribe_Hum(t *testing.T) {
	p := nativeModel(t, WithNativeLanguage("en"), WithNativePrompt("na na na"), WithNativeThreads(2))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	words, err := p.Transcribe(ctx, hum(600*time.Millisecond))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	for _, w := range words {
		if w.End < w.Start {
			t.Errorf("word %q ends before it starts", w.Text)
		}
	}
}

func TestNativeTranscribe_Cancelled(t *testing.T) {
	p := nativeModel(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, hum(time.Second)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
