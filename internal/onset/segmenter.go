package onset

import (
	"math"
	"slices"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// Hint carries optional side information for a segmentation run.
type Hint struct {
	// ExpectedSyllables is the syllable count of a linguistic transcription of
	// the same buffer. Zero means unknown and disables the multiplier sweep.
	ExpectedSyllables int
}

// Result is the outcome of one segmentation run.
type Result struct {
	Segments []types.Segment

	// Strategy names the last strategy of the chain that contributed onsets.
	// Empty when nothing was detected.
	Strategy string

	// Multiplier is the delta multiplier that produced the accepted onset
	// set; 1 unless the linguistic sweep replaced it.
	Multiplier float64

	// Delta is the adaptive threshold of the accepted pass.
	Delta float64

	// Onsets is the raw onset count before splitting and filtering.
	Onsets int
}

// Segmenter detects syllable slots. It holds no state between calls and is
// safe for concurrent use.
type Segmenter struct {
	cfg        Config
	strategies []Strategy
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithStrategies replaces the detector chain.
func WithStrategies(s ...Strategy) Option {
	return func(seg *Segmenter) { seg.strategies = s }
}

// New creates a Segmenter. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Segmenter {
	s := &Segmenter{cfg: cfg.WithDefaults(), strategies: DefaultStrategies()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// Segment returns the ordered, non-overlapping segments of buf. Prosody and
// phoneme fields are left at their zero values.
func (s *Segmenter) Segment(buf audio.Buffer, hint Hint) Result {
	f := Extract(buf, s.cfg)
	base := AdaptiveDelta(f.Novelty, s.cfg.BaseDelta)

	onsets, strategy := s.detect(f, base)
	res := Result{Strategy: strategy, Multiplier: 1, Delta: base}

	if exp := hint.ExpectedSyllables; exp > 0 && relErr(len(onsets), exp) > s.cfg.RetryTolerance {
		for _, m := range s.cfg.Multipliers {
			cand, name := s.detect(f, base*m)
			if absDiff(len(cand), exp) < absDiff(len(onsets), exp) {
				onsets, res.Strategy, res.Multiplier, res.Delta = cand, name, m, base*m
			}
		}
	}
	res.Onsets = len(onsets)

	spans := spansFromOnsets(onsets, f.Length, s.cfg.Tail)
	spans = splitLong(spans, f, s.cfg)
	spans = mergeShort(spans, s.cfg.MinSegment)
	spans = dropBreaths(buf, spans, s.cfg)
	res.Segments = toSegments(spans)
	return res
}

// detect runs the strategy chain until the acceptance criterion is met,
// merging each strategy's onsets into the running set.
func (s *Segmenter) detect(f *Features, delta float64) ([]time.Duration, string) {
	var onsets []time.Duration
	var used string
	for _, st := range s.strategies {
		found := st.Detect(f, s.cfg, delta)
		if len(found) > 0 {
			used = st.Name()
		}
		onsets = mergeOnsets(onsets, found, s.cfg.DedupeWindow)
		if len(onsets) >= s.cfg.MinOnsets {
			break
		}
	}
	return onsets, used
}

// EstimateTempo returns beats per minute from the median inter-onset interval,
// or 0 with fewer than two segments.
func EstimateTempo(segs []types.Segment) float64 {
	if len(segs) < 2 {
		return 0
	}
	ioi := make([]float64, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		if d := (segs[i].Start - segs[i-1].Start).Seconds(); d > 0 {
			ioi = append(ioi, d)
		}
	}
	if len(ioi) == 0 {
		return 0
	}
	slices.Sort(ioi)
	med := stat.Quantile(0.5, stat.Empirical, ioi, nil)
	return math.Round(60/med*10) / 10
}

func relErr(got, want int) float64 {
	return float64(absDiff(got, want)) / float64(want)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
