package prosody_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrWong99/cadence/internal/prosody"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
)

const rate = 16000

// glide synthesises a tone sweeping linearly from f0 to f1.
func glide(f0, f1, amp float64, d time.Duration) []float32 {
	n := int(d.Seconds() * rate)
	x := make([]float32, n)
	var phase float64
	for i := range x {
		f := f0 + (f1-f0)*float64(i)/float64(n)
		phase += 2 * math.Pi * f / rate
		x[i] = float32(amp * math.Sin(phase))
	}
	return x
}

func tone(f, amp float64, d time.Duration) []float32 { return glide(f, f, amp, d) }

func noise(amp float64, d time.Duration) []float32 {
	r := rand.New(rand.NewPCG(1, 2))
	x := make([]float32, int(d.Seconds()*rate))
	for i := range x {
		x[i] = float32(amp * (2*r.Float64() - 1))
	}
	return x
}

// layout concatenates parts and returns one segment per part.
func layout(parts ...[]float32) (audio.Buffer, []types.Segment) {
	var x []float32
	var segs []types.Segment
	for i, p := range parts {
		start := time.Duration(len(x)) * time.Second / rate
		x = append(x, p...)
		segs = append(segs, types.Segment{
			Index:    i,
			Start:    start,
			Duration: time.Duration(len(p)) * time.Second / rate,
		})
	}
	return audio.Buffer{Samples: x, SampleRate: rate}, segs
}

func TestAnnotate_Stress(t *testing.T) {
	t.Parallel()

	d := 250 * time.Millisecond
	buf, segs := layout(tone(200, 1, d), tone(200, 0.5, d), tone(200, 1, d), tone(200, 0.5, d))
	got := prosody.New(prosody.Config{}).Annotate(buf, segs)

	want := []bool{true, false, true, false}
	for i, s := range got {
		if s.IsStressed != want[i] {
			t.Errorf("segment %d: IsStressed = %v, want %v", i, s.IsStressed, want[i])
		}
	}
}

func TestAnnotate_UniformLevelHasNoStress(t *testing.T) {
	t.Parallel()

	d := 200 * time.Millisecond
	buf, segs := layout(tone(200, 0.7, d), tone(200, 0.7, d), tone(200, 0.7, d))
	for i, s := range prosody.New(prosody.Config{}).Annotate(buf, segs) {
		if s.IsStressed {
			t.Errorf("segment %d should not be stressed at uniform level", i)
		}
	}
}

func TestAnnotate_Sustain(t *testing.T) {
	t.Parallel()

	buf, segs := layout(tone(200, 1, 300*time.Millisecond), tone(200, 1, 500*time.Millisecond))
	got := prosody.New(prosody.Config{}).Annotate(buf, segs)
	if got[0].IsSustained {
		t.Error("300ms segment should not be sustained")
	}
	if !got[1].IsSustained {
		t.Error("500ms segment should be sustained")
	}
}

func TestAnnotate_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	buf, segs := layout(tone(200, 1, 500*time.Millisecond))
	_ = prosody.New(prosody.Config{}).Annotate(buf, segs)
	if segs[0].IsSustained || segs[0].Pitch != "" {
		t.Errorf("input segment was modified: %+v", segs[0])
	}
}

func TestContour(t *testing.T) {
	t.Parallel()

	d := 400 * time.Millisecond
	tests := []struct {
		name    string
		samples []float32
		want    types.PitchContour
	}{
		{name: "low", samples: tone(110, 0.8, d), want: types.PitchLow},
		{name: "mid", samples: tone(200, 0.8, d), want: types.PitchMid},
		{name: "high", samples: tone(400, 0.8, d), want: types.PitchHigh},
		{name: "rising", samples: glide(150, 300, 0.8, d), want: types.PitchRising},
		{name: "falling", samples: glide(300, 150, 0.8, d), want: types.PitchFalling},
		{name: "unvoiced noise defaults to mid", samples: noise(0.8, d), want: types.PitchMid},
		{name: "silence defaults to mid", samples: make([]float32, int(d.Seconds()*rate)), want: types.PitchMid},
	}
	a := prosody.New(prosody.Config{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := a.Contour(audio.Buffer{Samples: tc.samples, SampleRate: rate})
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEstimatePitch(t *testing.T) {
	t.Parallel()

	for _, hz := range []float64{80, 150, 220, 440, 800} {
		est := prosody.EstimatePitch(tone(hz, 0.5, 300*time.Millisecond), rate, 60, 1000, 0.45)
		if !est.Voiced {
			t.Errorf("%v Hz: expected voiced estimate", hz)
			continue
		}
		if math.Abs(est.Hz-hz)/hz > 0.02 {
			t.Errorf("%v Hz: estimated %v Hz", hz, est.Hz)
		}
	}
}

func TestEstimatePitch_TooShort(t *testing.T) {
	t.Parallel()

	if est := prosody.EstimatePitch(make([]float32, 10), rate, 60, 1000, 0.45); est.Voiced {
		t.Error("a 10-sample buffer cannot be voiced")
	}
}
