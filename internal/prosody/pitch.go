package prosody

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PitchEstimate is the result of a single F0 estimation.
type PitchEstimate struct {
	Hz     float64
	Voiced bool

	// Clarity is the normalised autocorrelation at the chosen lag.
	Clarity float64
}

// EstimatePitch returns the fundamental frequency of x within [minHz, maxHz].
// It uses the FFT-computed autocorrelation, normalised per lag by the energy
// of the overlapping parts, and takes the shortest lag whose clarity reaches
// 90% of the best one to avoid octave errors. The estimate is voiced when the
// clarity is at least voicing.
func EstimatePitch(x []float32, sampleRate int, minHz, maxHz, voicing float64) PitchEstimate {
	n := len(x)
	minLag := int(float64(sampleRate) / maxHz)
	maxLag := min(int(float64(sampleRate)/minHz), n/2)
	if minLag < 2 || maxLag <= minLag+1 {
		return PitchEstimate{}
	}

	var mean float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= float64(n)

	size := 1
	for size < 2*n {
		size <<= 1
	}
	seq := make([]float64, size)
	sq := make([]float64, n+1)
	for i, v := range x {
		d := float64(v) - mean
		seq[i] = d
		sq[i+1] = sq[i] + d*d
	}
	if sq[n] == 0 {
		return PitchEstimate{}
	}

	fft := fourier.NewFFT(size)
	coeff := fft.Coefficients(nil, seq)
	for i, c := range coeff {
		p := cmplx.Abs(c)
		coeff[i] = complex(p*p, 0)
	}
	acf := fft.Sequence(nil, coeff)
	if acf[0] <= 0 {
		return PitchEstimate{}
	}
	scale := sq[n] / acf[0]

	clarity := func(lag int) float64 {
		e := math.Sqrt((sq[n-lag] - sq[0]) * (sq[n] - sq[lag]))
		if e == 0 {
			return 0
		}
		return acf[lag] * scale / e
	}

	nac := make([]float64, maxLag+2)
	best := 0.0
	for lag := minLag; lag <= maxLag+1 && lag < n; lag++ {
		nac[lag] = clarity(lag)
	}
	for lag := minLag; lag <= maxLag; lag++ {
		best = max(best, nac[lag])
	}
	if best <= 0 {
		return PitchEstimate{}
	}

	chosen := -1
	for lag := minLag + 1; lag < maxLag; lag++ {
		if nac[lag] >= 0.9*best && nac[lag] >= nac[lag-1] && nac[lag] >= nac[lag+1] {
			chosen = lag
			break
		}
	}
	if chosen < 0 {
		return PitchEstimate{Clarity: best}
	}

	// Parabolic refinement of the peak position.
	a, b, c := nac[chosen-1], nac[chosen], nac[chosen+1]
	lag := float64(chosen)
	if den := a - 2*b + c; den != 0 {
		lag += 0.5 * (a - c) / den
	}
	return PitchEstimate{
		Hz:      float64(sampleRate) / lag,
		Voiced:  nac[chosen] >= voicing,
		Clarity: nac[chosen],
	}
}
