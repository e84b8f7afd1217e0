// Package types defines the shared types used across all Cadence packages.
//
// These types form the lingua franca between the analysis stages, the
// providers, the validator and the orchestrator. Cross-cutting data structures
// live here to avoid circular imports; each package keeps its own internal
// types.
package types

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"
)

// PitchContour is the coarse melodic shape of a single segment.
type PitchContour string

const (
	PitchMid     PitchContour = "mid"
	PitchLow     PitchContour = "low"
	PitchHigh    PitchContour = "high"
	PitchRising  PitchContour = "rising"
	PitchFalling PitchContour = "falling"
)

// IsValid reports whether c is one of the known contours. The empty string is
// accepted and treated as [PitchMid].
func (c PitchContour) IsValid() bool {
	switch c {
	case "", PitchMid, PitchLow, PitchHigh, PitchRising, PitchFalling:
		return true
	}
	return false
}

// OrMid returns c, or [PitchMid] when c is unset.
func (c PitchContour) OrMid() PitchContour {
	if c == "" {
		return PitchMid
	}
	return c
}

// Segment is one timed syllable slot of a [Block].
//
// Segments are values: every analysis stage returns new copies rather than
// mutating the slice it was given.
type Segment struct {
	// Index is the position of the segment within its Block.
	Index int

	// Start is the onset time relative to the start of the analysed buffer.
	Start time.Duration

	// Duration is the length of the slot. Start+Duration never exceeds the
	// next segment's Start.
	Duration time.Duration

	// IsStressed marks a rhythmically accented slot.
	IsStressed bool

	// IsSustained marks a slot held longer than the sustain threshold.
	IsSustained bool

	// Pitch is the coarse pitch contour. The zero value means mid.
	Pitch PitchContour

	// PhonemeLabel is the aligned syllable (ARPAbet without stress digits) or
	// a broad-class fallback tag.
	PhonemeLabel string

	// Fallback is true when PhonemeLabel was derived from the audio alone
	// because no transcribed syllable lined up with this slot.
	Fallback bool
}

// End returns Start+Duration.
func (s Segment) End() time.Duration { return s.Start + s.Duration }

type segmentJSON struct {
	Index        int          `json:"index"`
	TimeStart    float64      `json:"time_start"`
	Duration     float64      `json:"duration"`
	IsStressed   bool         `json:"is_stressed"`
	IsSustained  bool         `json:"is_sustained"`
	PitchContour PitchContour `json:"pitch_contour"`
	PhonemeLabel string       `json:"phoneme_label"`
	Fallback     bool         `json:"fallback,omitempty"`
}

// MarshalJSON encodes times as seconds rounded to the millisecond.
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(segmentJSON{
		Index:        s.Index,
		TimeStart:    Seconds(s.Start),
		Duration:     Seconds(s.Duration),
		IsStressed:   s.IsStressed,
		IsSustained:  s.IsSustained,
		PitchContour: s.Pitch.OrMid(),
		PhonemeLabel: s.PhonemeLabel,
		Fallback:     s.Fallback,
	})
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON. It is used when
// an external editor supplies a corrected segment list.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw segmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Segment{
		Index:        raw.Index,
		Start:        FromSeconds(raw.TimeStart),
		Duration:     FromSeconds(raw.Duration),
		IsStressed:   raw.IsStressed,
		IsSustained:  raw.IsSustained,
		Pitch:        raw.PitchContour,
		PhonemeLabel: raw.PhonemeLabel,
		Fallback:     raw.Fallback,
	}
	return nil
}

// Seconds converts d to seconds rounded to the millisecond.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// FromSeconds converts fractional seconds to a Duration.
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Block is the rhythmic template built from one bounded audio chunk: an
// ordered, non-overlapping sequence of segments.
type Block struct {
	// ID identifies the block within its run (chunk index for track runs).
	ID int `json:"id"`

	// Offset is the position of the chunk within the original track.
	Offset time.Duration `json:"-"`

	// Length is the duration of the analysed chunk.
	Length time.Duration `json:"-"`

	// TempoBPM is estimated from the median inter-onset interval. Zero when
	// fewer than two segments exist.
	TempoBPM float64 `json:"tempo_bpm"`

	// Segments are sorted by Start and never overlap.
	Segments []Segment `json:"segments"`
}

// SyllableTarget is the number of syllables a candidate line must have.
func (b Block) SyllableTarget() int { return len(b.Segments) }

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	b.Segments = slices.Clone(b.Segments)
	return b
}

// WithSegments returns a copy of b holding segs, re-indexed by position.
func (b Block) WithSegments(segs []Segment) Block {
	out := slices.Clone(segs)
	for i := range out {
		out[i].Index = i
	}
	b.Segments = out
	return b
}

// Ordered reports whether the segments are sorted by start time and do not
// overlap.
func (b Block) Ordered() bool {
	for i := 1; i < len(b.Segments); i++ {
		if b.Segments[i-1].End() > b.Segments[i].Start {
			return false
		}
	}
	return true
}

// StressPattern renders the stress sequence as "DA-da-DA" notation.
func (b Block) StressPattern() string {
	parts := make([]string, len(b.Segments))
	for i, s := range b.Segments {
		if s.IsStressed {
			parts[i] = "DA"
		} else {
			parts[i] = "da"
		}
	}
	return strings.Join(parts, "-")
}

// PitchPattern returns the pitch contour of every segment in order.
func (b Block) PitchPattern() []PitchContour {
	out := make([]PitchContour, len(b.Segments))
	for i, s := range b.Segments {
		out[i] = s.Pitch.OrMid()
	}
	return out
}

// MarshalJSON adds the derived syllable target to the encoding.
func (b Block) MarshalJSON() ([]byte, error) {
	type plain Block
	return json.Marshal(struct {
		plain
		SyllableTarget int `json:"syllable_target"`
	}{plain(b), b.SyllableTarget()})
}

// TranscribedWord is a single word of a linguistic transcription together with
// its time span in the analysed buffer.
type TranscribedWord struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Syllable is a linguistic syllable derived from a [TranscribedWord].
type Syllable struct {
	// Phonemes are ARPAbet symbols; vowels carry a stress digit.
	Phonemes []string

	// Start and End are estimated proportionally within the parent word.
	Start time.Duration
	End   time.Duration

	// Word is the text of the parent word.
	Word string
}

// ValidationResult is the verdict of the gatekeeper for one candidate line.
type ValidationResult struct {
	Candidate     string   `json:"candidate"`
	IsValid       bool     `json:"is_valid"`
	Score         float64  `json:"score"`
	SyllableCount int      `json:"syllable_count"`
	Reason        string   `json:"reason,omitempty"`
	Phonemes      []string `json:"phonemes,omitempty"`
	Stress        []int    `json:"stress,omitempty"`
}

// GenerationMeta is block metadata carried alongside a [GenerationResult].
type GenerationMeta struct {
	SyllableTarget int            `json:"syllable_target"`
	Duration       float64        `json:"duration"`
	TempoBPM       float64        `json:"tempo_bpm"`
	StressPattern  string         `json:"stress_pattern"`
	PitchPattern   []PitchContour `json:"pitch_pattern"`
}

// GenerationResult aggregates every candidate generated for one block and its
// validation. Candidates and Validations always have the same length and
// order; nothing is dropped.
type GenerationResult struct {
	BlockID     int                `json:"block_id"`
	Block       Block              `json:"block"`
	Candidates  []string           `json:"candidates"`
	Validations []ValidationResult `json:"validations"`

	// Best indexes Validations, or is -1 when no candidate is valid.
	Best int `json:"best"`

	// Ranked lists indices of valid candidates, best first.
	Ranked []int `json:"ranked"`

	// Attempts counts generator calls, including retries.
	Attempts int `json:"attempts"`

	// Err records a collaborator failure that cut the block short.
	Err string `json:"error,omitempty"`

	Meta GenerationMeta `json:"meta"`
}

// BestCandidate returns the selected validation, if any.
func (r GenerationResult) BestCandidate() (ValidationResult, bool) {
	if r.Best < 0 || r.Best >= len(r.Validations) {
		return ValidationResult{}, false
	}
	return r.Validations[r.Best], true
}

// MetaFor derives generation metadata from b.
func MetaFor(b Block) GenerationMeta {
	return GenerationMeta{
		SyllableTarget: b.SyllableTarget(),
		Duration:       Seconds(b.Length),
		TempoBPM:       b.TempoBPM,
		StressPattern:  b.StressPattern(),
		PitchPattern:   b.PitchPattern(),
	}
}
