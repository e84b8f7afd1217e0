package resultstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cadence/internal/resultstore"
	"github.com/MrWong99/cadence/pkg/types"
)

func result(id int, candidates ...string) types.GenerationResult {
	vals := make([]types.ValidationResult, len(candidates))
	for i, c := range candidates {
		vals[i] = types.ValidationResult{Candidate: c, IsValid: true, Score: 1, Stress: []int{1, 0}}
	}
	return types.GenerationResult{
		BlockID: id,
		Block: types.Block{ID: id, Offset: time.Duration(id) * time.Second}.WithSegments([]types.Segment{
			{Start: 0, Duration: 200 * time.Millisecond, IsStressed: true},
			{Start: 200 * time.Millisecond, Duration: 200 * time.Millisecond},
		}),
		Candidates:  candidates,
		Validations: vals,
		Best:        0,
		Ranked:      []int{0},
		Attempts:    1,
	}
}

func TestMemoryStore_SaveGetList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := resultstore.NewMemoryStore()

	if err := resultstore.SaveAll(ctx, s, "run-1", []types.GenerationResult{
		result(2, "fire day"), result(0, "ninety"), result(1, "city"),
	}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := s.Save(ctx, "run-2", result(0, "other")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := s.Get(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RunID != "run-1" || rec.Result.Candidates[0] != "fire day" || rec.UpdatedAt.IsZero() {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Result.Block.Offset != 2*time.Second {
		t.Errorf("offset = %v, want 2s", rec.Result.Block.Offset)
	}

	list, err := s.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List returned %d records, want 3", len(list))
	}
	for i, r := range list {
		if r.Result.BlockID != i {
			t.Errorf("list[%d] has block %d, want ordered by id", i, r.Result.BlockID)
		}
	}

	empty, err := s.List(ctx, "unknown")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("unknown run: got %v, %v; want empty slice", empty, err)
	}
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := resultstore.NewMemoryStore()

	_ = s.Save(ctx, "run", result(0, "first"))
	_ = s.Save(ctx, "run", result(0, "revised", "again"))

	rec, err := s.Get(ctx, "run", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Result.Candidates) != 2 || rec.Result.Candidates[0] != "revised" {
		t.Errorf("candidates = %v, want the revised block", rec.Result.Candidates)
	}
	if list, _ := s.List(ctx, "run"); len(list) != 1 {
		t.Errorf("List returned %d records, want 1", len(list))
	}
}

func TestMemoryStore_IsolatesCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := resultstore.NewMemoryStore()

	res := result(0, "ninety nine")
	_ = s.Save(ctx, "run", res)
	res.Candidates[0] = "mutated"
	res.Block.Segments[0].IsStressed = false
	res.Validations[0].Stress[0] = 9

	rec, _ := s.Get(ctx, "run", 0)
	if rec.Result.Candidates[0] != "ninety nine" {
		t.Error("stored candidates changed through the caller's slice")
	}
	if !rec.Result.Block.Segments[0].IsStressed {
		t.Error("stored segments changed through the caller's slice")
	}
	if rec.Result.Validations[0].Stress[0] != 1 {
		t.Error("stored stress changed through the caller's slice")
	}

	rec.Result.Candidates[0] = "mutated again"
	again, _ := s.Get(ctx, "run", 0)
	if again.Result.Candidates[0] != "ninety nine" {
		t.Error("Get returned shared storage")
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	t.Parallel()
	s := resultstore.NewMemoryStore()

	tests := []struct {
		name    string
		run     func(ctx context.Context) error
		cancel  bool
		wantErr error
	}{
		{
			name:    "unknown block",
			run:     func(ctx context.Context) error { _, err := s.Get(ctx, "run", 3); return err },
			wantErr: resultstore.ErrNotFound,
		},
		{
			name:    "cancelled save",
			run:     func(ctx context.Context) error { return s.Save(ctx, "run", result(0)) },
			cancel:  true,
			wantErr: context.Canceled,
		},
		{
			name:    "cancelled list",
			run:     func(ctx context.Context) error { _, err := s.List(ctx, "run"); return err },
			cancel:  true,
			wantErr: context.Canceled,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			if tc.cancel {
				cancel()
			}
			defer cancel()
			if err := tc.run(ctx); !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if err := s.Save(context.Background(), "", result(0)); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := resultstore.NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Go(func() {
			if err := s.Save(ctx, "run", result(i, "line")); err != nil {
				t.Errorf("Save(%d): %v", i, err)
			}
		})
	}
	wg.Wait()

	list, err := s.List(ctx, "run")
	if err != nil || len(list) != 32 {
		t.Fatalf("List: %d records, err %v", len(list), err)
	}
}

func TestNewRunID_Unique(t *testing.T) {
	t.Parallel()
	a, b := resultstore.NewRunID(), resultstore.NewRunID()
	if a == "" || a == b {
		t.Errorf("run ids %q and %q", a, b)
	}
}
