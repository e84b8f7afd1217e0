// Package resultstore persists generation results so a reviewer can inspect,
// correct and re-validate blocks after a run.
//
// Results are grouped by run. A run is one invocation of the pipeline over a
// file or track; each of its blocks is stored under its block ID. Saving a
// block that already exists replaces it; revised blocks are written back that
// way after re-validation.
package resultstore

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/MrWong99/cadence/pkg/types"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when the run or block does not exist.
var ErrNotFound = errors.New("resultstore: not found")

// Record is one stored block result.
type Record struct {
	RunID     string
	Result    types.GenerationResult
	UpdatedAt time.Time
}

// Store is the persistence interface for generation results.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces the result for (runID, res.BlockID).
	Save(ctx context.Context, runID string, res types.GenerationResult) error

	// Get returns one block of a run, or an error wrapping [ErrNotFound].
	Get(ctx context.Context, runID string, blockID int) (Record, error)

	// List returns every block of a run ordered by block ID. An unknown run
	// yields an empty slice.
	List(ctx context.Context, runID string) ([]Record, error)
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string { return uuid.NewString() }

// SaveAll stores results under runID in order and stops at the first error.
func SaveAll(ctx context.Context, s Store, runID string, results []types.GenerationResult) error {
	for _, res := range results {
		if err := s.Save(ctx, runID, res); err != nil {
			return err
		}
	}
	return nil
}

// cloneResult deep-copies the slices of res so stored values cannot be
// mutated through the caller's copy.
func cloneResult(res types.GenerationResult) types.GenerationResult {
	res.Block = res.Block.Clone()
	res.Candidates = slices.Clone(res.Candidates)
	res.Ranked = slices.Clone(res.Ranked)
	res.Meta.PitchPattern = slices.Clone(res.Meta.PitchPattern)
	vals := make([]types.ValidationResult, len(res.Validations))
	for i, v := range res.Validations {
		v.Phonemes = slices.Clone(v.Phonemes)
		v.Stress = slices.Clone(v.Stress)
		vals[i] = v
	}
	if res.Validations != nil {
		res.Validations = vals
	}
	return res
}
