package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/predictsh/predictd/internal/kv"
)

func TestCheckHitMarksPendingBatchAndCountsOnce(t *testing.T) {
	ctx := context.Background()
	e := New(kv.NewMemory(), "proj1", 24*time.Hour)

	batch, err := e.LogPrediction(ctx, "S", []string{"f1", "f2", "f3", "f4", "f5"}, []string{"#api"}, "trigger.go", 0.8, 2)
	if err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	if batch.Status != Pending {
		t.Fatalf("new batch status = %v, want pending", batch.Status)
	}

	hit, err := e.CheckHit(ctx, "S", "f3")
	if err != nil {
		t.Fatalf("CheckHit: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit for f3")
	}

	loaded, ok, err := e.loadBatch(ctx, batch.ID)
	if err != nil || !ok {
		t.Fatalf("loadBatch: ok=%v err=%v", ok, err)
	}
	if loaded.Status != Hit {
		t.Fatalf("batch status after CheckHit = %v, want hit", loaded.Status)
	}

	// A second CheckHit for the same batch is idempotent: still reports a
	// match but does not double-count the hit counter.
	if _, err := e.CheckHit(ctx, "S", "f3"); err != nil {
		t.Fatalf("second CheckHit: %v", err)
	}
	counters, err := e.store.HGetAll(ctx, e.key(countersKey))
	if err != nil {
		t.Fatalf("HGetAll counters: %v", err)
	}
	if counters["hits"] != 1 {
		t.Fatalf("hits counter = %v, want 1", counters["hits"])
	}
}

func TestCheckHitNoMatchIncrementsMiss(t *testing.T) {
	ctx := context.Background()
	e := New(kv.NewMemory(), "proj1", 24*time.Hour)

	if _, err := e.LogPrediction(ctx, "S", []string{"f1", "f2"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}

	hit, err := e.CheckHit(ctx, "S", "unrelated.go")
	if err != nil {
		t.Fatalf("CheckHit: %v", err)
	}
	if hit {
		t.Fatalf("expected no hit for unrelated file")
	}

	counters, err := e.store.HGetAll(ctx, e.key(countersKey))
	if err != nil {
		t.Fatalf("HGetAll counters: %v", err)
	}
	if counters["misses"] != 1 {
		t.Fatalf("misses counter = %v, want 1", counters["misses"])
	}
}

func TestFinalizeFlipsOldPendingBatchesToMiss(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	e := New(store, "proj1", 24*time.Hour)

	batch, err := e.LogPrediction(ctx, "S", []string{"f1"}, nil, "", 0.5, 0)
	if err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	// Backdate the batch so Finalize sees it as stale.
	batch.CreatedAt = time.Now().Add(-2 * time.Hour)
	if err := store.Set(ctx, e.key(batchKeyPrefix)+batch.ID, mustMarshal(batch), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.ZAdd(ctx, e.key(timelineKey), batch.ID, float64(batch.CreatedAt.UnixNano())); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	n, err := e.Finalize(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("finalized count = %d, want 1", n)
	}

	loaded, _, err := e.loadBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("loadBatch: %v", err)
	}
	if loaded.Status != Miss {
		t.Fatalf("status after Finalize = %v, want miss", loaded.Status)
	}
}

func TestRollingHitAt5ExcludesPending(t *testing.T) {
	ctx := context.Background()
	e := New(kv.NewMemory(), "proj1", 24*time.Hour)

	if _, err := e.LogPrediction(ctx, "S1", []string{"f1", "f2", "f3", "f4", "f5"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	if _, err := e.CheckHit(ctx, "S1", "f3"); err != nil {
		t.Fatalf("CheckHit: %v", err)
	}

	if _, err := e.LogPrediction(ctx, "S2", []string{"g1"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}

	rate, err := e.RollingHitAt5(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("RollingHitAt5: %v", err)
	}
	// Only b1 (hit) has resolved; the second batch is still pending and
	// excluded from both halves of the ratio.
	if rate != 1.0 {
		t.Fatalf("rate = %v, want 1.0", rate)
	}

	if _, err := e.Finalize(ctx, 0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	rate, err = e.RollingHitAt5(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("RollingHitAt5 after finalize: %v", err)
	}
	if rate != 0.5 {
		t.Fatalf("rate after finalize = %v, want 0.5", rate)
	}
}

func TestStatsReportsHitsMissesAndPending(t *testing.T) {
	ctx := context.Background()
	e := New(kv.NewMemory(), "proj1", 24*time.Hour)

	if _, err := e.LogPrediction(ctx, "S1", []string{"f1", "f2", "f3"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	if _, err := e.CheckHit(ctx, "S1", "f2"); err != nil {
		t.Fatalf("CheckHit: %v", err)
	}
	if _, err := e.LogPrediction(ctx, "S2", []string{"g1"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	if _, err := e.CheckHit(ctx, "S2", "unrelated.go"); err != nil {
		t.Fatalf("CheckHit: %v", err)
	}
	// An unmatched read only bumps the miss counter; finalizing resolves
	// S2's still-pending batch to a miss.
	if _, err := e.Finalize(ctx, 0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := e.LogPrediction(ctx, "S3", []string{"h1"}, nil, "", 0.5, 0); err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}

	stats, err := e.Stats(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Pending != 1 || stats.Total != 3 {
		t.Fatalf("stats = %+v, want hits=1 misses=1 pending=1 total=3", stats)
	}
	if stats.HitAt5 != 0.5 {
		t.Fatalf("HitAt5 = %v, want 0.5", stats.HitAt5)
	}
}

func TestCheckHitBatchExposesArmIndexForTunerFeedback(t *testing.T) {
	ctx := context.Background()
	e := New(kv.NewMemory(), "proj1", 24*time.Hour)

	logged, err := e.LogPrediction(ctx, "S", []string{"f1", "f2"}, nil, "trigger.go", 0.8, 5)
	if err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}

	batch, hit, err := e.CheckHitBatch(ctx, "S", "f1")
	if err != nil {
		t.Fatalf("CheckHitBatch: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit")
	}
	if batch.ID != logged.ID || batch.ArmIndex != 5 {
		t.Fatalf("batch = %+v, want id=%s armIndex=5", batch, logged.ID)
	}
}

// TestConcurrentCheckHitAndFinalizeResolveOnce races CheckHitBatch against
// FinalizeBatches on the same pending batch and asserts exactly one of them
// wins the transition: the batch ends up hit or miss but never both, and
// the hits+misses counters sum to exactly one, never two.
func TestConcurrentCheckHitAndFinalizeResolveOnce(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	e := New(store, "proj1", 24*time.Hour)

	for i := 0; i < 200; i++ {
		batch, err := e.LogPrediction(ctx, "S", []string{"f1", "f2"}, nil, "", 0.5, 0)
		if err != nil {
			t.Fatalf("LogPrediction: %v", err)
		}
		// Backdate so FinalizeBatches considers it stale immediately.
		batch.CreatedAt = time.Now().Add(-2 * time.Hour)
		if err := store.Set(ctx, e.key(batchKeyPrefix)+batch.ID, mustMarshal(batch), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.ZAdd(ctx, e.key(timelineKey), batch.ID, float64(batch.CreatedAt.UnixNano())); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := e.CheckHitBatch(ctx, "S", "f1"); err != nil {
				t.Errorf("CheckHitBatch: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.FinalizeBatches(ctx, time.Hour); err != nil {
				t.Errorf("FinalizeBatches: %v", err)
			}
		}()
		wg.Wait()

		loaded, ok, err := e.loadBatch(ctx, batch.ID)
		if err != nil || !ok {
			t.Fatalf("loadBatch: ok=%v err=%v", ok, err)
		}
		if loaded.Status != Hit && loaded.Status != Miss {
			t.Fatalf("batch %d left pending after race", i)
		}
	}

	counters, err := e.store.HGetAll(ctx, e.key(countersKey))
	if err != nil {
		t.Fatalf("HGetAll counters: %v", err)
	}
	if got, want := counters["hits"]+counters["misses"], float64(200); got != want {
		t.Fatalf("hits+misses = %v, want %v (every batch resolved exactly once)", got, want)
	}
}

func TestFinalizeBatchesExposesArmIndexForTunerFeedback(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	e := New(store, "proj1", 24*time.Hour)

	batch, err := e.LogPrediction(ctx, "S", []string{"f1"}, nil, "", 0.5, 7)
	if err != nil {
		t.Fatalf("LogPrediction: %v", err)
	}
	batch.CreatedAt = time.Now().Add(-2 * time.Hour)
	if err := store.Set(ctx, e.key(batchKeyPrefix)+batch.ID, mustMarshal(batch), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.ZAdd(ctx, e.key(timelineKey), batch.ID, float64(batch.CreatedAt.UnixNano())); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	finalized, err := e.FinalizeBatches(ctx, time.Hour)
	if err != nil {
		t.Fatalf("FinalizeBatches: %v", err)
	}
	if len(finalized) != 1 || finalized[0].ArmIndex != 7 {
		t.Fatalf("finalized = %+v, want one batch with armIndex=7", finalized)
	}
}
