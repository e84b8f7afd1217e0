// Package gatekeeper validates candidate lyric lines against a block.
//
// A line passes only when its dictionary syllable count equals the number of
// segments exactly. Passing lines are scored by how well their lexical stress
// lines up with the stressed segments, and can then be ranked.
package gatekeeper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/MrWong99/cadence/pkg/types"
)

// Groove points per position.
const (
	pointsStressedPrimary   = 2.0
	pointsStressedSecondary = 0.5
	pointsUnstressed        = 1.0
)

// Gatekeeper validates candidate lines. It is safe for concurrent use when
// its Lexicon is.
type Gatekeeper struct {
	lex lexicon.Lexicon
}

// New creates a Gatekeeper backed by lex.
func New(lex lexicon.Lexicon) *Gatekeeper {
	return &Gatekeeper{lex: lex}
}

// Validate checks candidate against block. A mismatch is a normal outcome
// reported through IsValid and Reason, never an error.
func (g *Gatekeeper) Validate(ctx context.Context, candidate string, block types.Block) types.ValidationResult {
	res := types.ValidationResult{Candidate: candidate}
	if len(lexicon.Words(candidate)) == 0 {
		res.Reason = "empty candidate"
		return res
	}

	ph, err := lexicon.PhonemizeText(ctx, g.lex, candidate)
	if err != nil {
		res.Reason = failureReason(err)
		return res
	}

	res.Phonemes = ph
	res.Stress = lexicon.StressSequence(ph)
	res.SyllableCount = lexicon.SyllableCount(ph)
	target := block.SyllableTarget()
	if res.SyllableCount != target {
		res.Reason = fmt.Sprintf("syllable count %d != target %d", res.SyllableCount, target)
		return res
	}
	res.IsValid = true
	res.Score = GrooveScore(block.Segments, res.Stress)
	return res
}

func failureReason(err error) string {
	var we *lexicon.WordError
	if !errors.As(err, &we) {
		return fmt.Sprintf("lexicon error: %v", err)
	}
	if errors.Is(err, lexicon.ErrUnknownWord) {
		return fmt.Sprintf("cannot phonemize %q", we.Word)
	}
	return fmt.Sprintf("lexicon error on %q: %v", we.Word, we.Err)
}

// ValidateAll validates every candidate in order.
func (g *Gatekeeper) ValidateAll(ctx context.Context, candidates []string, block types.Block) []types.ValidationResult {
	out := make([]types.ValidationResult, len(candidates))
	for i, c := range candidates {
		out[i] = g.Validate(ctx, c, block)
	}
	return out
}

// GrooveScore rates how well text stress fits segment stress, in [0, 1].
// A stressed segment earns 2 points for primary stress and 0.5 for
// secondary; an unstressed segment earns 1 point for an unstressed syllable.
// The score is 0 when either side is empty or the lengths differ.
func GrooveScore(segs []types.Segment, stress []int) float64 {
	if len(segs) == 0 || len(stress) == 0 || len(segs) != len(stress) {
		return 0
	}
	var earned, possible float64
	for i, s := range segs {
		if s.IsStressed {
			possible += pointsStressedPrimary
			switch stress[i] {
			case 1:
				earned += pointsStressedPrimary
			case 2:
				earned += pointsStressedSecondary
			}
			continue
		}
		possible += pointsUnstressed
		if stress[i] == 0 {
			earned += pointsUnstressed
		}
	}
	return earned / possible
}

// Rank returns the indices of valid results ordered by descending score.
// Equal scores keep their original order.
func Rank(results []types.ValidationResult) []int {
	idx := make([]int, 0, len(results))
	for i, r := range results {
		if r.IsValid {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(results[b].Score, results[a].Score)
	})
	return idx
}
