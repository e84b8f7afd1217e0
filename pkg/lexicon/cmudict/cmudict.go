// Package cmudict provides a [lexicon.Lexicon] backed by a pronouncing
// dictionary in the CMU Pronouncing Dictionary format.
//
// Each non-comment line holds a word followed by its ARPAbet phonemes:
//
//	FIRE  F AY1 ER0
//	FIRE(1)  F AY1 R
//
// Alternate pronunciations carry a "(n)" suffix; the first entry of a word is
// used. Lines starting with ";;;" are comments.
//
// Words missing from the dictionary fall back to the phonetically nearest
// entry: candidates share a Double Metaphone code with the word and the one
// with the highest Jaro-Winkler similarity above the threshold wins.
package cmudict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/antzucaro/matchr"
)

const defaultNearestThreshold = 0.90

// Option is a functional option for configuring a [Dict].
type Option func(*Dict)

// WithNearestThreshold sets the minimum Jaro-Winkler similarity for the
// out-of-vocabulary fallback. A value above 1 disables the fallback.
// Default: 0.90.
func WithNearestThreshold(threshold float64) Option {
	return func(d *Dict) {
		d.threshold = threshold
	}
}

// Dict is an in-memory pronouncing dictionary. It is read-only after
// construction and safe for concurrent use.
type Dict struct {
	entries   map[string][]string
	byCode    map[string][]string
	threshold float64
}

// Compile-time interface assertion.
var _ lexicon.Lexicon = (*Dict)(nil)

// Open loads the dictionary file at path.
func Open(path string, opts ...Option) (*Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cmudict: open: %w", err)
	}
	defer f.Close()
	return Load(f, opts...)
}

// Load parses a dictionary from r.
func Load(r io.Reader, opts ...Option) (*Dict, error) {
	d := &Dict{
		entries:   make(map[string][]string),
		byCode:    make(map[string][]string),
		threshold: defaultNearestThreshold,
	}
	for _, o := range opts {
		o(d)
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";;;") {
			continue
		}
		// Some distributions append inline comments after '#'.
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("cmudict: line %d: missing pronunciation", line)
		}
		word := strings.ToLower(fields[0])
		if i := strings.IndexByte(word, '('); i > 0 {
			word = word[:i]
		}
		if _, seen := d.entries[word]; seen {
			continue
		}
		d.entries[word] = fields[1:]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cmudict: read: %w", err)
	}
	if len(d.entries) == 0 {
		return nil, fmt.Errorf("cmudict: dictionary is empty")
	}

	for word := range d.entries {
		for _, code := range codes(word) {
			d.byCode[code] = append(d.byCode[code], word)
		}
	}
	for code := range d.byCode {
		slices.Sort(d.byCode[code])
	}
	return d, nil
}

// Len returns the number of distinct words.
func (d *Dict) Len() int { return len(d.entries) }

// Phonemize implements [lexicon.Lexicon].
func (d *Dict) Phonemize(_ context.Context, word string) ([]string, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if ph, ok := d.entries[word]; ok {
		return slices.Clone(ph), nil
	}
	if near, ok := d.Nearest(word); ok {
		return slices.Clone(d.entries[near]), nil
	}
	return nil, fmt.Errorf("%w: %q", lexicon.ErrUnknownWord, word)
}

// Nearest returns the dictionary word that sounds most like word, if any
// candidate reaches the similarity threshold. Ties keep the alphabetically
// first candidate.
func (d *Dict) Nearest(word string) (string, bool) {
	if word == "" || d.threshold > 1 {
		return "", false
	}
	var best string
	var bestScore float64
	for _, code := range codes(word) {
		for _, cand := range d.byCode[code] {
			score := matchr.JaroWinkler(word, cand, false)
			if score > bestScore || (score == bestScore && cand < best) {
				best, bestScore = cand, score
			}
		}
	}
	if best == "" || bestScore < d.threshold {
		return "", false
	}
	return best, true
}

func codes(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	switch {
	case p == "" && s == "":
		return nil
	case s == "" || s == p:
		return []string{p}
	case p == "":
		return []string{s}
	}
	return []string{p, s}
}
