package onset

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
)

const refineRate = 16000

func tone(amp float64, d time.Duration) []float32 {
	x := make([]float32, int(d.Seconds()*refineRate))
	for i := range x {
		x[i] = float32(amp * math.Sin(2*math.Pi*220*float64(i)/refineRate))
	}
	return x
}

func join(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestDropBreaths_Boundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amp      float64
		dur      time.Duration
		wantKept bool
	}{
		{name: "short and quiet is a breath", amp: 0.1, dur: 100 * time.Millisecond, wantKept: false},
		{name: "short but loud enough is kept", amp: 0.2, dur: 100 * time.Millisecond, wantKept: true},
		{name: "quiet but long is kept", amp: 0.1, dur: 300 * time.Millisecond, wantKept: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loud := 400 * time.Millisecond
			buf := audio.Buffer{
				SampleRate: refineRate,
				Samples:    join(tone(1, loud), tone(tc.amp, tc.dur), tone(1, loud)),
			}
			spans := []span{
				{0, loud},
				{loud, loud + tc.dur},
				{loud + tc.dur, 2*loud + tc.dur},
			}
			got := dropBreaths(buf, spans, DefaultConfig())
			kept := len(got) == 3
			if kept != tc.wantKept {
				t.Errorf("kept = %v, want %v (spans %v)", kept, tc.wantKept, got)
			}
		})
	}
}

func TestMergeShort(t *testing.T) {
	t.Parallel()

	ms := time.Millisecond
	tests := []struct {
		name string
		in   []span
		want []span
	}{
		{
			name: "short folds into next",
			in:   []span{{0, 30 * ms}, {30 * ms, 300 * ms}, {300 * ms, 600 * ms}},
			want: []span{{0, 300 * ms}, {300 * ms, 600 * ms}},
		},
		{
			name: "short last folds into previous",
			in:   []span{{0, 300 * ms}, {300 * ms, 330 * ms}},
			want: []span{{0, 330 * ms}},
		},
		{
			name: "consecutive shorts accumulate",
			in:   []span{{0, 20 * ms}, {20 * ms, 40 * ms}, {40 * ms, 200 * ms}},
			want: []span{{0, 200 * ms}},
		},
		{
			name: "nothing short",
			in:   []span{{0, 100 * ms}, {100 * ms, 200 * ms}},
			want: []span{{0, 100 * ms}, {100 * ms, 200 * ms}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mergeShort(tc.in, 60*ms)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("span %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitAtValleys(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	tests := []struct {
		name      string
		dipAmp    float64
		wantParts int
	}{
		{name: "deep valley splits", dipAmp: 0.1, wantParts: 2},
		{name: "shallow valley is one sustained sound", dipAmp: 0.65, wantParts: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := audio.Buffer{
				SampleRate: refineRate,
				Samples: join(
					tone(0.8, 400*time.Millisecond),
					tone(tc.dipAmp, 60*time.Millisecond),
					tone(0.8, 400*time.Millisecond),
				),
			}
			f := Extract(buf, cfg)
			got := splitLong([]span{{0, buf.Duration()}}, f, cfg)
			if len(got) != tc.wantParts {
				t.Fatalf("got %d parts (%v), want %d", len(got), got, tc.wantParts)
			}
			if tc.wantParts == 2 {
				cut := got[0].end
				if cut < 380*time.Millisecond || cut > 480*time.Millisecond {
					t.Errorf("cut at %v, want inside the dip", cut)
				}
			}
		})
	}
}

func TestSpansFromOnsets(t *testing.T) {
	t.Parallel()

	ms := time.Millisecond
	got := spansFromOnsets([]time.Duration{100 * ms, 400 * ms, 2 * time.Second}, time.Second, 0)
	want := []span{{100 * ms, 400 * ms}, {400 * ms, time.Second}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
