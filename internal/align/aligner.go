// Package align places linguistic syllables on detected rhythmic segments.
//
// Transcribed words are phonemized, split into syllables and given
// proportional time stamps inside their word. Syllables are then matched to
// segments by position. Segments left over are labelled from their own audio
// so that every slot carries some phonetic hint.
package align

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/MrWong99/cadence/pkg/types"
)

// Config tunes the audio fallback classifier.
type Config struct {
	// ZCRThreshold is the zero-crossing rate (crossings per sample) above
	// which a segment is labelled a consonant.
	ZCRThreshold float64 `yaml:"zcr_threshold"`

	// CentroidHz is the spectral centroid below which a segment is labelled
	// a vowel.
	CentroidHz float64 `yaml:"centroid_hz"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.ZCRThreshold <= 0 {
		c.ZCRThreshold = 0.25
	}
	if c.CentroidHz <= 0 {
		c.CentroidHz = 1000
	}
	return c
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aligner) { a.log = l }
}

// Aligner maps transcribed words onto segments. It is safe for concurrent
// use when its Lexicon is.
type Aligner struct {
	lex lexicon.Lexicon
	cfg Config
	log *slog.Logger
}

// New creates an Aligner backed by lex.
func New(lex lexicon.Lexicon, cfg Config, opts ...Option) *Aligner {
	a := &Aligner{lex: lex, cfg: cfg.WithDefaults(), log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Syllables phonemizes words and returns their syllables ordered by start
// time. A transcribed word that normalises to several tokens ("99") has each
// token syllabified on its own before the syllables share the word's span.
// Tokens the lexicon cannot pronounce contribute nothing.
func (a *Aligner) Syllables(ctx context.Context, words []types.TranscribedWord) []types.Syllable {
	var out []types.Syllable
	for _, w := range words {
		var sylls [][]string
		for _, tok := range lexicon.Words(w.Text) {
			ph, err := a.lex.Phonemize(ctx, tok)
			if err != nil {
				if !errors.Is(err, lexicon.ErrUnknownWord) {
					a.log.Warn("align: phonemize failed", "word", tok, "err", err)
				} else {
					a.log.Debug("align: word not in lexicon", "word", tok)
				}
				continue
			}
			sylls = append(sylls, Syllabify(ph)...)
		}
		out = append(out, Distribute(sylls, w)...)
	}
	slices.SortStableFunc(out, func(x, y types.Syllable) int { return cmp.Compare(x.Start, y.Start) })
	return out
}

// ExpectedSyllables is the linguistic syllable count of words.
func (a *Aligner) ExpectedSyllables(ctx context.Context, words []types.TranscribedWord) int {
	return len(a.Syllables(ctx, words))
}

// Align returns a copy of segs, sorted by start, with PhonemeLabel set. The
// i-th syllable labels the i-th segment; segments beyond the last syllable
// get an audio-derived fallback label and Fallback=true.
func (a *Aligner) Align(ctx context.Context, buf audio.Buffer, segs []types.Segment, words []types.TranscribedWord) []types.Segment {
	out := slices.Clone(segs)
	slices.SortStableFunc(out, func(x, y types.Segment) int { return cmp.Compare(x.Start, y.Start) })

	sylls := a.Syllables(ctx, words)
	for i := range out {
		if i < len(sylls) {
			out[i].PhonemeLabel = Label(sylls[i].Phonemes)
			out[i].Fallback = false
			continue
		}
		out[i].PhonemeLabel = a.FallbackLabel(buf.Slice(out[i].Start, out[i].End()))
		out[i].Fallback = true
	}
	if len(out) > 0 && len(sylls) == 0 {
		a.log.Warn("align: no syllables from transcription, labelling from audio", "segments", len(out))
	}
	return out
}
