package onset

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Strategy is one onset detector of the fallback chain.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Detect returns onset times in ascending order. delta is the adaptive
	// threshold for this pass.
	Detect(f *Features, cfg Config, delta float64) []time.Duration
}

// DefaultStrategies is the spectral-novelty detector followed by the energy
// fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{SpectralStrategy{}, EnergyStrategy{}}
}

// AdaptiveDelta scales base by the coefficient of variation of env:
//
//	delta = base * (0.8 + 0.4*min(CV, 1.5)/1.5)
//
// Peaky envelopes get a higher bar, flat ones a lower one.
func AdaptiveDelta(env []float64, base float64) float64 {
	var cv float64
	if len(env) > 1 {
		mean, std := stat.MeanStdDev(env, nil)
		if mean > 0 {
			cv = std / mean
		}
	}
	return base * (0.8 + 0.4*min(cv, 1.5)/1.5)
}

// SpectralStrategy picks local maxima of the novelty envelope that rise delta
// above the local moving average. A peak without an energy attack behind it
// is the release or the cut-off of the previous sound and is skipped.
type SpectralStrategy struct{}

func (SpectralStrategy) Name() string { return "spectral" }

func (SpectralStrategy) Detect(f *Features, cfg Config, delta float64) []time.Duration {
	env := f.Novelty
	peakW := f.Frames(cfg.PeakWindow)
	meanW := f.Frames(cfg.MeanWindow)
	gap := f.Frames(cfg.MinGap)
	attackW := f.Frames(cfg.AttackWindow)

	var out []time.Duration
	last := -gap - 1
	for i, v := range env {
		if v <= 0 || !isLocalMax(env, i, peakW) {
			continue
		}
		lo, hi := max(i-meanW, 0), min(i+meanW+1, len(env))
		if v < stat.Mean(env[lo:hi], nil)+delta {
			continue
		}
		if i-last <= gap || !f.Attack(i, attackW, cfg.AttackRatio) {
			continue
		}
		out = append(out, f.FrameTime(i))
		last = i
	}
	return out
}

// EnergyStrategy finds peaks of the RMS envelope above a fraction of the local
// maximum. It catches smooth onsets the novelty envelope misses. A peak only
// counts when the envelope dipped by ValleyDepth since the previous one, and
// the reported onset is the foot of its rise.
type EnergyStrategy struct{}

func (EnergyStrategy) Name() string { return "energy" }

func (EnergyStrategy) Detect(f *Features, cfg Config, _ float64) []time.Duration {
	env := f.Energy
	peakW := f.Frames(cfg.PeakWindow)
	localW := f.Frames(cfg.EnergyWindow)

	var out []time.Duration
	lastPeak := -1
	for i, v := range env {
		if v < cfg.SilenceFloor || !isLocalMax(env, i, peakW) {
			continue
		}
		if i > 0 && env[i-1] == v {
			continue
		}
		lo, hi := max(i-localW, 0), min(i+localW+1, len(env))
		if v < cfg.EnergyRatio*slices.Max(env[lo:hi]) {
			continue
		}
		if lastPeak >= 0 && slices.Min(env[lastPeak:i+1]) > (1-cfg.ValleyDepth)*v {
			continue
		}
		foot := i
		for foot > 0 && foot-1 > lastPeak && env[foot-1] < env[foot] {
			foot--
		}
		t := f.FrameTime(foot)
		if len(out) > 0 && t-out[len(out)-1] < cfg.MinGap {
			continue
		}
		out = append(out, t)
		lastPeak = i
	}
	return out
}

func isLocalMax(env []float64, i, w int) bool {
	lo, hi := max(i-w, 0), min(i+w+1, len(env))
	for j := lo; j < hi; j++ {
		if env[j] > env[i] {
			return false
		}
	}
	return true
}

// mergeOnsets unions two ascending onset lists, dropping any onset closer than
// window to one already kept.
func mergeOnsets(a, b []time.Duration, window time.Duration) []time.Duration {
	all := append(slices.Clone(a), b...)
	slices.Sort(all)
	var out []time.Duration
	for _, t := range all {
		if len(out) > 0 && t-out[len(out)-1] < window {
			continue
		}
		out = append(out, t)
	}
	return out
}
