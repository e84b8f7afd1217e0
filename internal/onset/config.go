// Package onset turns a mono audio buffer into an ordered list of timed
// syllable slots.
//
// Detection runs an ordered list of strategies (spectral novelty, then an
// energy-peak fallback) under an adaptive threshold, optionally retries with a
// sweep of threshold multipliers when a linguistic syllable estimate is
// available, and finally refines the slots: long sounds are split at deep
// energy valleys, fragments are merged and breaths are dropped.
package onset

import "time"

// Config holds every tunable of the segmenter. Zero values are replaced by the
// defaults from [DefaultConfig].
type Config struct {
	// BaseDelta is the unscaled peak-picking threshold on the normalised
	// novelty envelope.
	BaseDelta float64 `yaml:"base_delta"`

	// Window and Hop control the STFT framing.
	Window time.Duration `yaml:"window"`
	Hop    time.Duration `yaml:"hop"`

	// MinGap is the minimum distance between two onsets.
	MinGap time.Duration `yaml:"min_gap"`

	// PeakWindow is the half-width of the local-maximum test.
	PeakWindow time.Duration `yaml:"peak_window"`

	// MeanWindow is the half-width of the moving average the delta is added
	// to.
	MeanWindow time.Duration `yaml:"mean_window"`

	// AttackWindow and AttackRatio gate novelty peaks on the energy envelope:
	// the loudest frame within AttackWindow after a peak must exceed
	// AttackRatio times the mean energy over AttackWindow before it. Releases
	// and cuts to silence fail the test.
	AttackWindow time.Duration `yaml:"attack_window"`
	AttackRatio  float64       `yaml:"attack_ratio"`

	// MinOnsets is the acceptance criterion of the strategy chain.
	MinOnsets int `yaml:"min_onsets"`

	// EnergyRatio is the energy fallback threshold relative to the local
	// maximum within EnergyWindow.
	EnergyRatio  float64       `yaml:"energy_ratio"`
	EnergyWindow time.Duration `yaml:"energy_window"`

	// DedupeWindow merges onsets from different strategies that are closer
	// than this.
	DedupeWindow time.Duration `yaml:"dedupe_window"`

	// RetryTolerance is the relative count error above which the multiplier
	// sweep runs.
	RetryTolerance float64   `yaml:"retry_tolerance"`
	Multipliers    []float64 `yaml:"multipliers"`

	// Tail, when positive, bounds the last segment instead of extending it to
	// the end of the buffer.
	Tail time.Duration `yaml:"tail"`

	// MaxSegment is the length above which a segment is searched for valleys.
	MaxSegment time.Duration `yaml:"max_segment"`

	// ValleyDepth is how far below both neighbouring peaks a valley must dip
	// to count as a syllable boundary.
	ValleyDepth float64 `yaml:"valley_depth"`

	// MinSegment is the shortest segment kept on its own; shorter ones merge
	// into the next.
	MinSegment time.Duration `yaml:"min_segment"`

	// BreathMaxDuration and BreathEnergyRatio define a breath: a segment both
	// shorter than the duration and quieter than the ratio of the file peak.
	BreathMaxDuration time.Duration `yaml:"breath_max_duration"`
	BreathEnergyRatio float64       `yaml:"breath_energy_ratio"`

	// SilenceFloor is the absolute RMS below which no energy peak is reported.
	SilenceFloor float64 `yaml:"silence_floor"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelta:         0.07,
		Window:            32 * time.Millisecond,
		Hop:               10 * time.Millisecond,
		MinGap:            50 * time.Millisecond,
		PeakWindow:        30 * time.Millisecond,
		MeanWindow:        100 * time.Millisecond,
		AttackWindow:      50 * time.Millisecond,
		AttackRatio:       1.5,
		MinOnsets:         3,
		EnergyRatio:       0.15,
		EnergyWindow:      500 * time.Millisecond,
		DedupeWindow:      50 * time.Millisecond,
		RetryTolerance:    0.3,
		Multipliers:       []float64{0.5, 0.75, 1.25, 1.5, 2.0, 2.5},
		MaxSegment:        600 * time.Millisecond,
		ValleyDepth:       0.3,
		MinSegment:        60 * time.Millisecond,
		BreathMaxDuration: 150 * time.Millisecond,
		BreathEnergyRatio: 0.15,
		SilenceFloor:      1e-4,
	}
}

// WithDefaults fills zero fields from [DefaultConfig].
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelta <= 0 {
		c.BaseDelta = d.BaseDelta
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Hop <= 0 {
		c.Hop = d.Hop
	}
	if c.MinGap <= 0 {
		c.MinGap = d.MinGap
	}
	if c.PeakWindow <= 0 {
		c.PeakWindow = d.PeakWindow
	}
	if c.MeanWindow <= 0 {
		c.MeanWindow = d.MeanWindow
	}
	if c.AttackWindow <= 0 {
		c.AttackWindow = d.AttackWindow
	}
	if c.AttackRatio <= 0 {
		c.AttackRatio = d.AttackRatio
	}
	if c.MinOnsets <= 0 {
		c.MinOnsets = d.MinOnsets
	}
	if c.EnergyRatio <= 0 {
		c.EnergyRatio = d.EnergyRatio
	}
	if c.EnergyWindow <= 0 {
		c.EnergyWindow = d.EnergyWindow
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = d.DedupeWindow
	}
	if c.RetryTolerance <= 0 {
		c.RetryTolerance = d.RetryTolerance
	}
	if len(c.Multipliers) == 0 {
		c.Multipliers = d.Multipliers
	}
	if c.MaxSegment <= 0 {
		c.MaxSegment = d.MaxSegment
	}
	if c.ValleyDepth <= 0 {
		c.ValleyDepth = d.ValleyDepth
	}
	if c.MinSegment <= 0 {
		c.MinSegment = d.MinSegment
	}
	if c.BreathMaxDuration <= 0 {
		c.BreathMaxDuration = d.BreathMaxDuration
	}
	if c.BreathEnergyRatio <= 0 {
		c.BreathEnergyRatio = d.BreathEnergyRatio
	}
	if c.SilenceFloor <= 0 {
		c.SilenceFloor = d.SilenceFloor
	}
	return c
}
