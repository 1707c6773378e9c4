package repo

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Montecarlo/internal/aggregator"
	"github.com/shaiso/Montecarlo/internal/domain"
)

// newTestRepo подключается к TEST_DB_URL; без него тест пропускается.
func newTestRepo(t *testing.T) *CheckpointRepo {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	r := NewCheckpointRepo(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return r
}

// --- CheckpointRepo Tests ---

func TestCheckpointRepo_SaveLoad(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	runID := "test-" + uuid.NewString()
	t.Cleanup(func() { r.Delete(context.Background(), runID) })

	if _, ok, err := r.Load(ctx, runID); err != nil || ok {
		t.Fatalf("expected no checkpoint, got ok=%v err=%v", ok, err)
	}

	cp := aggregator.Checkpoint{
		State: domain.AggregateState{
			TotalPoints:     300,
			TotalHits:       235,
			Multiplier:      4,
			ScenarioCount:   2,
			PerWorkerCounts: map[string]int{"w1": 2},
		},
		ConsumedIDs: []string{"a", "b"},
	}
	if err := r.Save(ctx, runID, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Второй Save добавляет только новые id; повтор уже сохранённого не мешает
	cp.State.TotalPoints = 400
	cp.ConsumedIDs = []string{"b", "c"}
	if err := r.Save(ctx, runID, cp); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	loaded, ok, err := r.Load(ctx, runID)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.State.TotalPoints != 400 || loaded.State.PerWorkerCounts["w1"] != 2 {
		t.Errorf("unexpected checkpoint: %+v", loaded)
	}
	sort.Strings(loaded.ConsumedIDs)
	if strings.Join(loaded.ConsumedIDs, ",") != "a,b,c" {
		t.Errorf("expected ids a,b,c, got %v", loaded.ConsumedIDs)
	}
}

func TestCheckpointRepo_LockExclusive(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	runID := "test-" + uuid.NewString()

	release, err := r.Lock(ctx, runID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := r.Lock(ctx, runID); !errors.Is(err, aggregator.ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}

	release()

	again, err := r.Lock(ctx, runID)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}
