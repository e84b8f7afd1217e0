package align

import (
	"slices"
	"time"

	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/MrWong99/cadence/pkg/types"
)

// Syllabify groups an ARPAbet phoneme sequence into syllables by onset
// maximisation: consonants wait for the next vowel, a vowel closes the
// syllable in progress once that already has a nucleus, and consonants left
// after the last vowel become its coda. A sequence without vowels yields no
// syllables.
func Syllabify(phonemes []string) [][]string {
	var (
		out     [][]string
		cur     []string
		pending []string
		nucleus bool
	)
	for _, p := range phonemes {
		if !lexicon.IsVowel(p) {
			pending = append(pending, p)
			continue
		}
		if nucleus {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, pending...)
		cur = append(cur, p)
		pending = pending[:0]
		nucleus = true
	}
	if !nucleus {
		return nil
	}
	cur = append(cur, pending...)
	return append(out, cur)
}

// Distribute spreads syllables evenly over the word's time span.
func Distribute(sylls [][]string, w types.TranscribedWord) []types.Syllable {
	if len(sylls) == 0 {
		return nil
	}
	span := max(w.End-w.Start, 0)
	step := span / time.Duration(len(sylls))
	out := make([]types.Syllable, len(sylls))
	for i, s := range sylls {
		out[i] = types.Syllable{
			Phonemes: slices.Clone(s),
			Start:    w.Start + time.Duration(i)*step,
			End:      w.Start + time.Duration(i+1)*step,
			Word:     w.Text,
		}
	}
	out[len(out)-1].End = w.Start + span
	return out
}

// Label renders a syllable as space separated phonemes without stress digits,
// e.g. "N AY N".
func Label(phonemes []string) string {
	var b []byte
	for i, p := range phonemes {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, lexicon.StripStress(p)...)
	}
	return string(b)
}
