package resultstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/cadence/pkg/types"
)

// MemoryStore is an in-process [Store]. It is the default when no database is
// configured and is used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[int]Record
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]Record), now: time.Now}
}

// Save implements [Store].
func (s *MemoryStore) Save(ctx context.Context, runID string, res types.GenerationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" {
		return fmt.Errorf("resultstore: empty run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks, ok := s.runs[runID]
	if !ok {
		blocks = make(map[int]Record)
		s.runs[runID] = blocks
	}
	blocks[res.BlockID] = Record{RunID: runID, Result: cloneResult(res), UpdatedAt: s.now()}
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(ctx context.Context, runID string, blockID int) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID][blockID]
	if !ok {
		return Record{}, fmt.Errorf("%w: run %q block %d", ErrNotFound, runID, blockID)
	}
	rec.Result = cloneResult(rec.Result)
	return rec, nil
}

// List implements [Store].
func (s *MemoryStore) List(ctx context.Context, runID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.runs[runID]))
	for _, rec := range s.runs[runID] {
		rec.Result = cloneResult(rec.Result)
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Compare(a.Result.BlockID, b.Result.BlockID)
	})
	return out, nil
}
