package align

import (
	"math/cmplx"

	"github.com/MrWong99/cadence/pkg/audio"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Fallback labels for segments no transcribed syllable could be placed on.
const (
	LabelConsonant = "<consonant>"
	LabelVowel     = "<vowel>"
	LabelUnknown   = "<unknown>"
)

// maxSpectrumSize bounds the FFT used for the spectral centroid.
const maxSpectrumSize = 8192

// FallbackLabel classifies a segment from its own audio: noisy, high
// zero-crossing audio is a consonant, energy concentrated low in the spectrum
// is a vowel, anything else is unknown.
func (a *Aligner) FallbackLabel(seg audio.Buffer) string {
	if ZeroCrossingRate(seg.Samples) > a.cfg.ZCRThreshold {
		return LabelConsonant
	}
	if c, ok := SpectralCentroid(seg); ok && c < a.cfg.CentroidHz {
		return LabelVowel
	}
	return LabelUnknown
}

// ZeroCrossingRate returns sign changes per sample.
func ZeroCrossingRate(x []float32) float64 {
	if len(x) < 2 {
		return 0
	}
	var n int
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(x)-1)
}

// SpectralCentroid returns the magnitude-weighted mean frequency of the
// Hann-windowed buffer. ok is false for silence or empty input.
func SpectralCentroid(b audio.Buffer) (hz float64, ok bool) {
	if b.Len() < 2 || b.SampleRate <= 0 {
		return 0, false
	}
	n := 2
	for n < b.Len() && n < maxSpectrumSize {
		n <<= 1
	}
	x := make([]float64, n)
	for i := range min(n, b.Len()) {
		x[i] = float64(b.Samples[i])
	}
	window.Hann(x[:min(n, b.Len())])

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, x)
	mags := make([]float64, len(coeff))
	freqs := make([]float64, len(coeff))
	for k, c := range coeff {
		mags[k] = cmplx.Abs(c)
		freqs[k] = fft.Freq(k) * float64(b.SampleRate)
	}
	total := floats.Sum(mags)
	if total < 1e-9 {
		return 0, false
	}
	return floats.Dot(mags, freqs) / total, true
}
