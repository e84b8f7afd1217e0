// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber turns one bounded, already-captured audio buffer into a list of
// words with time stamps. The aligner uses those time stamps to place
// syllables on detected segments, so backends must decode deterministically
// (greedy, temperature zero): the same buffer must always yield the same
// words.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
)

// Transcriber is the abstraction over any word-timestamped speech-to-text
// backend.
type Transcriber interface {
	// Transcribe returns the words spoken in buf in chronological order. Time
	// stamps are relative to the start of buf. An empty result with a nil
	// error means nothing intelligible was heard.
	Transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error)
}

// SpreadWords splits text on whitespace and distributes the words evenly over
// [start, end). It serves backends that only report segment-level times.
func SpreadWords(text string, start, end time.Duration) []types.TranscribedWord {
	fields := strings.Fields(text)
	if len(fields) == 0 || end <= start {
		return nil
	}
	step := (end - start) / time.Duration(len(fields))
	out := make([]types.TranscribedWord, len(fields))
	for i, f := range fields {
		out[i] = types.TranscribedWord{
			Text:  f,
			Start: start + time.Duration(i)*step,
			End:   start + time.Duration(i+1)*step,
		}
	}
	out[len(out)-1].End = end
	return out
}

// CleanWords trims whitespace and drops empty or punctuation-only words.
func CleanWords(words []types.TranscribedWord) []types.TranscribedWord {
	out := make([]types.TranscribedWord, 0, len(words))
	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if strings.IndexFunc(w.Text, isWordRune) < 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r > 0x7f
}
