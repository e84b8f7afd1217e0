// Package lexicon defines the grapheme-to-phoneme contract used by the aligner
// and the gatekeeper, together with the text normalisation both rely on.
//
// Pronunciations are ARPAbet symbol sequences. Vowel symbols carry a trailing
// stress digit: 1 for primary, 2 for secondary and 0 for no stress. The
// number of digit-marked symbols is the syllable count of a word.
package lexicon

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownWord is returned by a [Lexicon] that cannot produce a
// pronunciation for a word.
var ErrUnknownWord = errors.New("lexicon: unknown word")

// WordError names the word a text lookup stopped at.
type WordError struct {
	Word string
	Err  error
}

func (e *WordError) Error() string { return fmt.Sprintf("phonemize %q: %v", e.Word, e.Err) }

func (e *WordError) Unwrap() error { return e.Err }

// Lexicon maps a single normalised word to its pronunciation.
//
// Implementations must be safe for concurrent use.
type Lexicon interface {
	// Phonemize returns the ARPAbet pronunciation of word. word is expected
	// to be lowercase and free of punctuation (see [Words]). Unknown words
	// yield an error wrapping [ErrUnknownWord].
	Phonemize(ctx context.Context, word string) ([]string, error)
}

// Stress returns the stress digit of a vowel phoneme and true, or (0, false)
// for a consonant.
func Stress(phoneme string) (int, bool) {
	if phoneme == "" {
		return 0, false
	}
	switch phoneme[len(phoneme)-1] {
	case '0':
		return 0, true
	case '1':
		return 1, true
	case '2':
		return 2, true
	}
	return 0, false
}

// IsVowel reports whether phoneme is a stress-marked vowel nucleus.
func IsVowel(phoneme string) bool {
	_, ok := Stress(phoneme)
	return ok
}

// StripStress removes a trailing stress digit.
func StripStress(phoneme string) string {
	if IsVowel(phoneme) {
		return phoneme[:len(phoneme)-1]
	}
	return phoneme
}

// StressSequence returns the stress digits of all vowel nuclei in order.
func StressSequence(phonemes []string) []int {
	var out []int
	for _, p := range phonemes {
		if s, ok := Stress(p); ok {
			out = append(out, s)
		}
	}
	return out
}

// SyllableCount returns the number of stress-marked vowel nuclei.
func SyllableCount(phonemes []string) int {
	return len(StressSequence(phonemes))
}

// PhonemizeText normalises text and phonemizes every word, concatenating the
// pronunciations. The first word the lexicon cannot pronounce aborts with a
// [*WordError] naming it.
func PhonemizeText(ctx context.Context, lex Lexicon, text string) ([]string, error) {
	var out []string
	for _, w := range Words(text) {
		ph, err := lex.Phonemize(ctx, w)
		if err != nil {
			return nil, &WordError{Word: w, Err: err}
		}
		out = append(out, ph...)
	}
	return out, nil
}

// Words normalises text and splits it into lowercase words consisting of
// letters and inner apostrophes.
func Words(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}
