// Package mock provides a test double for the lexicon package.
//
// Example:
//
//	lex := &mock.Lexicon{Entries: map[string][]string{
//	    "fire": {"F", "AY1", "ER0"},
//	}}
//	ph, _ := lex.Phonemize(ctx, "fire")
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/cadence/pkg/lexicon"
)

// Lexicon is a mock implementation of lexicon.Lexicon backed by a map.
type Lexicon struct {
	mu sync.Mutex

	// Entries maps lowercase words to pronunciations.
	Entries map[string][]string

	// Err, if non-nil, is returned from every call.
	Err error

	// Calls records every word passed to Phonemize.
	Calls []string
}

var _ lexicon.Lexicon = (*Lexicon)(nil)

// Phonemize records the call and looks word up in Entries.
func (l *Lexicon) Phonemize(_ context.Context, word string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, word)
	if l.Err != nil {
		return nil, l.Err
	}
	ph, ok := l.Entries[word]
	if !ok {
		return nil, fmt.Errorf("%w: %q", lexicon.ErrUnknownWord, word)
	}
	return slices.Clone(ph), nil
}

// Reset clears recorded calls.
func (l *Lexicon) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = nil
}
