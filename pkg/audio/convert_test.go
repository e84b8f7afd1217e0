package audio_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
)

func sine(freq float64, amp float32, d time.Duration, rate int) []float32 {
	n := int(d.Seconds() * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	got := audio.Downmix([]float32{0.2, 0.4, -1, 1}, 2)
	want := []float32{0.3, 0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2}
	if got := audio.Downmix(in, 1); &got[0] != &in[0] {
		t.Error("mono input should be returned unchanged")
	}
}

func TestPCM16_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.5, 1, -1}
	got := audio.FromPCM16(audio.PCM16(in), 1)
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1e-3 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], in[i])
		}
	}
}

func TestPCM16_Clamping(t *testing.T) {
	t.Parallel()

	got := audio.FromPCM16(audio.PCM16([]float32{2, -2}), 1)
	if got[0] < 0.99 || got[1] > -0.99 {
		t.Errorf("expected clamped full-scale samples, got %v", got)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	b := audio.Buffer{Samples: sine(100, 0.5, time.Second, 16000), SampleRate: 16000}
	got := audio.Resample(b, 8000)
	if got.SampleRate != 8000 {
		t.Fatalf("sample rate: got %d, want 8000", got.SampleRate)
	}
	if len(got.Samples) != 8000 {
		t.Fatalf("samples: got %d, want 8000", len(got.Samples))
	}
	if d := got.Duration(); d != time.Second {
		t.Errorf("duration: got %v, want 1s", d)
	}
}

func TestResample_SameRate(t *testing.T) {
	t.Parallel()

	b := audio.Buffer{Samples: []float32{1, 2, 3}, SampleRate: 16000}
	if got := audio.Resample(b, 16000); len(got.Samples) != 3 {
		t.Errorf("same-rate resample should be a no-op, got %d samples", len(got.Samples))
	}
}

func TestBuffer_Slice(t *testing.T) {
	t.Parallel()

	b := audio.Buffer{Samples: make([]float32, 1000), SampleRate: 1000}
	s := b.Slice(100*time.Millisecond, 350*time.Millisecond)
	if s.Len() != 250 {
		t.Errorf("slice length: got %d, want 250", s.Len())
	}
	if s := b.Slice(900*time.Millisecond, 2*time.Second); s.Len() != 100 {
		t.Errorf("clamped slice length: got %d, want 100", s.Len())
	}
	if s := b.Slice(500*time.Millisecond, 100*time.Millisecond); s.Len() != 0 {
		t.Errorf("inverted slice should be empty, got %d", s.Len())
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	in := audio.Buffer{Samples: sine(220, 0.5, 200*time.Millisecond, 16000), SampleRate: 16000}
	got, err := audio.Decode(bytes.NewReader(audio.EncodeWAV(in)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", got.SampleRate)
	}
	if got.Len() != in.Len() {
		t.Fatalf("samples: got %d, want %d", got.Len(), in.Len())
	}
	if p := got.Peak(); math.Abs(p-0.5) > 0.01 {
		t.Errorf("peak: got %v, want ~0.5", p)
	}
}

func TestLoad_KeepsLevelForProviders(t *testing.T) {
	t.Parallel()

	in := audio.Buffer{Samples: sine(440, 0.8, 100*time.Millisecond, 16000), SampleRate: 16000}
	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(in), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := audio.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := got.Peak(); math.Abs(p-0.8) > 0.01 {
		t.Errorf("peak: got %v, want ~0.8", p)
	}

	pcm := audio.PCM16(got.Samples)
	var nonZero int
	for _, b := range pcm {
		if b != 0 {
			nonZero++
		}
	}
	if nonZero < len(pcm)/2 {
		t.Errorf("re-encoded pcm is near silent: %d of %d bytes non-zero", nonZero, len(pcm))
	}
}

func TestDecode_Garbage(t *testing.T) {
	t.Parallel()

	_, err := audio.Decode(strings.NewReader("definitely not a wav file"))
	if !errors.Is(err, audio.ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := audio.Load("/nonexistent/take.wav")
	if !errors.Is(err, audio.ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil): got %v, want 0", got)
	}
	if got := audio.RMS([]float32{0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS: got %v, want 0.5", got)
	}
}
