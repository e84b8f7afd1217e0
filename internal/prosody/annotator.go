// Package prosody tags syllable slots with stress, sustain and pitch contour.
//
// Annotation is a pure function of the audio buffer and the segment list: it
// performs no I/O and returns a new slice rather than modifying its input.
package prosody

import (
	"slices"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
)

// Config tunes the annotator. Zero values take the defaults from
// [DefaultConfig].
type Config struct {
	// StressThreshold is the factor by which a segment's peak must exceed the
	// local average peak to count as stressed.
	StressThreshold float64 `yaml:"stress_threshold"`

	// StressWindow is the number of segments in the centred averaging window.
	StressWindow int `yaml:"stress_window"`

	// SustainThreshold is the duration above which a segment is sustained.
	SustainThreshold time.Duration `yaml:"sustain_threshold"`

	// LowHz and HighHz split the absolute pitch into low, mid and high.
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`

	// ContourChange is the relative F0 change between the segment's start and
	// end portions that makes it rising or falling.
	ContourChange float64 `yaml:"contour_change"`

	// EdgeFraction is the share of the segment used for the start and end F0
	// estimates.
	EdgeFraction float64 `yaml:"edge_fraction"`

	// MinHz, MaxHz and Voicing bound the F0 search.
	MinHz   float64 `yaml:"min_hz"`
	MaxHz   float64 `yaml:"max_hz"`
	Voicing float64 `yaml:"voicing"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		StressThreshold:  1.1,
		StressWindow:     5,
		SustainThreshold: 400 * time.Millisecond,
		LowHz:            165,
		HighHz:           262,
		ContourChange:    0.2,
		EdgeFraction:     0.3,
		MinHz:            60,
		MaxHz:            1000,
		Voicing:          0.45,
	}
}

// WithDefaults fills zero fields from [DefaultConfig].
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.StressThreshold <= 0 {
		c.StressThreshold = d.StressThreshold
	}
	if c.StressWindow <= 0 {
		c.StressWindow = d.StressWindow
	}
	if c.SustainThreshold <= 0 {
		c.SustainThreshold = d.SustainThreshold
	}
	if c.LowHz <= 0 {
		c.LowHz = d.LowHz
	}
	if c.HighHz <= 0 {
		c.HighHz = d.HighHz
	}
	if c.ContourChange <= 0 {
		c.ContourChange = d.ContourChange
	}
	if c.EdgeFraction <= 0 || c.EdgeFraction > 0.5 {
		c.EdgeFraction = d.EdgeFraction
	}
	if c.MinHz <= 0 {
		c.MinHz = d.MinHz
	}
	if c.MaxHz <= 0 {
		c.MaxHz = d.MaxHz
	}
	if c.Voicing <= 0 {
		c.Voicing = d.Voicing
	}
	return c
}

// Annotator computes prosodic tags.
type Annotator struct {
	cfg Config
}

// New creates an Annotator. Zero config fields take their defaults.
func New(cfg Config) *Annotator {
	return &Annotator{cfg: cfg.WithDefaults()}
}

// Annotate returns a copy of segs with IsStressed, IsSustained and Pitch set.
func (a *Annotator) Annotate(buf audio.Buffer, segs []types.Segment) []types.Segment {
	out := slices.Clone(segs)
	peaks := make([]float64, len(out))
	for i, s := range out {
		peaks[i] = buf.Slice(s.Start, s.End()).Peak()
	}
	half := a.cfg.StressWindow / 2
	for i := range out {
		lo, hi := max(i-half, 0), min(i+half+1, len(out))
		var sum float64
		for _, p := range peaks[lo:hi] {
			sum += p
		}
		avg := sum / float64(hi-lo)
		out[i].IsStressed = peaks[i] > a.cfg.StressThreshold*avg
		out[i].IsSustained = out[i].Duration > a.cfg.SustainThreshold
		out[i].Pitch = a.Contour(buf.Slice(out[i].Start, out[i].End()))
	}
	return out
}

// Contour classifies the pitch of one segment's audio.
func (a *Annotator) Contour(seg audio.Buffer) types.PitchContour {
	edge := int(float64(seg.Len()) * a.cfg.EdgeFraction)
	first := a.estimate(seg.Samples[:edge], seg.SampleRate)
	last := a.estimate(seg.Samples[seg.Len()-edge:], seg.SampleRate)
	if first.Voiced && last.Voiced && first.Hz > 0 {
		change := (last.Hz - first.Hz) / first.Hz
		switch {
		case change > a.cfg.ContourChange:
			return types.PitchRising
		case change < -a.cfg.ContourChange:
			return types.PitchFalling
		}
	}

	whole := a.estimate(seg.Samples, seg.SampleRate)
	switch {
	case !whole.Voiced:
		return types.PitchMid
	case whole.Hz < a.cfg.LowHz:
		return types.PitchLow
	case whole.Hz > a.cfg.HighHz:
		return types.PitchHigh
	default:
		return types.PitchMid
	}
}

func (a *Annotator) estimate(x []float32, rate int) PitchEstimate {
	return EstimatePitch(x, rate, a.cfg.MinHz, a.cfg.MaxHz, a.cfg.Voicing)
}
