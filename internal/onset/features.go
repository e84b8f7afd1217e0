package onset

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// logCompression scales magnitudes before log1p so that quiet onsets still
// register against loud ones.
const logCompression = 100

// Features are the frame-level detection signals shared by all strategies.
// Frame i is centred on sample i*Hop.
type Features struct {
	// Novelty is the spectral-flux envelope normalised to [0, 1].
	Novelty []float64

	// Energy is the RMS envelope over windows of two hops.
	Energy []float64

	Hop        int
	SampleRate int
	Length     time.Duration
}

// FrameTime returns the centre time of frame i.
func (f *Features) FrameTime(i int) time.Duration {
	return time.Duration(int64(i) * int64(f.Hop) * int64(time.Second) / int64(f.SampleRate))
}

// Frames converts a duration to a whole number of frames, at least one.
func (f *Features) Frames(d time.Duration) int {
	n := int(math.Round(d.Seconds() * float64(f.SampleRate) / float64(f.Hop)))
	return max(n, 1)
}

// FrameAt returns the frame index closest to t.
func (f *Features) FrameAt(t time.Duration) int {
	i := int(math.Round(t.Seconds() * float64(f.SampleRate) / float64(f.Hop)))
	return min(max(i, 0), len(f.Energy))
}

// Attack reports whether energy rises at frame i: the highest energy within w
// frames from i must exceed ratio times the mean of the w frames before it.
func (f *Features) Attack(i, w int, ratio float64) bool {
	if i < 0 || i >= len(f.Energy) {
		return false
	}
	after := floats.Max(f.Energy[i:min(i+w+1, len(f.Energy))])
	if i == 0 {
		return after > 0
	}
	return after > ratio*stat.Mean(f.Energy[max(i-w, 0):i], nil)
}

// Extract computes the novelty and energy envelopes of buf.
func Extract(buf audio.Buffer, cfg Config) *Features {
	cfg = cfg.WithDefaults()
	hop := max(int(cfg.Hop.Seconds()*float64(buf.SampleRate)), 1)
	n := nextPow2(int(cfg.Window.Seconds() * float64(buf.SampleRate)))

	f := &Features{
		Hop:        hop,
		SampleRate: buf.SampleRate,
		Length:     buf.Duration(),
	}
	if buf.Len() == 0 || buf.SampleRate <= 0 {
		return f
	}
	frames := 1 + buf.Len()/hop
	f.Novelty = spectralFlux(buf.Samples, n, hop, frames)
	f.Energy = rmsEnvelope(buf.Samples, 2*hop, hop, frames)
	return f
}

// spectralFlux sums the half-wave rectified frame-to-frame increase of the
// log-compressed magnitude spectrum. Frames are centred, with zero padding at
// both edges.
func spectralFlux(x []float32, n, hop, frames int) []float64 {
	win := window.Hann(ones(n))
	fft := fourier.NewFFT(n)
	buf := make([]float64, n)
	coeff := make([]complex128, n/2+1)
	prev := make([]float64, n/2+1)
	cur := make([]float64, n/2+1)
	flux := make([]float64, frames)

	for i := range frames {
		start := i*hop - n/2
		for k := range n {
			j := start + k
			if j >= 0 && j < len(x) {
				buf[k] = float64(x[j]) * win[k]
			} else {
				buf[k] = 0
			}
		}
		coeff = fft.Coefficients(coeff, buf)
		var sum float64
		for k, c := range coeff {
			cur[k] = math.Log1p(logCompression * cmplx.Abs(c))
			if i > 0 {
				if d := cur[k] - prev[k]; d > 0 {
					sum += d
				}
			}
		}
		flux[i] = sum
		prev, cur = cur, prev
	}
	normalize(flux)
	return flux
}

func rmsEnvelope(x []float32, size, hop, frames int) []float64 {
	env := make([]float64, frames)
	for i := range env {
		from := max(i*hop-size/2, 0)
		to := min(i*hop+size/2, len(x))
		if from < to {
			env[i] = audio.RMS(x[from:to])
		}
	}
	return env
}

// normalize rescales v to [0, 1] in place. A constant envelope becomes all
// zeros.
func normalize(v []float64) {
	if len(v) == 0 {
		return
	}
	lo, hi := floats.Min(v), floats.Max(v)
	if hi-lo <= 0 {
		for i := range v {
			v[i] = 0
		}
		return
	}
	floats.AddConst(-lo, v)
	floats.Scale(1/(hi-lo), v)
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func nextPow2(n int) int {
	p := 16
	for p < n {
		p <<= 1
	}
	return p
}
