// Package evaluator turns logged prediction batches into a rolling stream
// of hit/miss outcomes, the signal the Weight Tuner closes its loop on.
package evaluator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/predictsh/predictd/internal/kv"
)

// Status is a prediction batch's terminal state.
type Status string

const (
	Pending Status = "pending"
	Hit     Status = "hit"
	Miss    Status = "miss"
)

const (
	batchKeyPrefix   = "eval:batch:"
	timelineKey      = "eval:timeline"
	sessionKeyPrefix = "eval:session:"
	countersKey      = "eval:counters"

	maxPredictedFiles = 5
	recentBatchLookback = 10
)

// Batch is one logged prediction: the top files predicted for a trigger,
// and whatever a later read revealed about whether they were right.
type Batch struct {
	ID          string    `json:"id"`
	Session     string    `json:"session"`
	Files       []string  `json:"files"`
	Tags        []string  `json:"tags,omitempty"`
	TriggerFile string    `json:"trigger_file,omitempty"`
	Confidence  float64   `json:"confidence"`
	ArmIndex    int       `json:"arm_index"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Evaluator tracks prediction batches for one project over a rolling
// evaluation window (default 24h).
type Evaluator struct {
	store   kv.Store
	project string
	window  time.Duration
}

// New creates an Evaluator namespaced to project with the given
// evaluation window (defaults to 24h when zero).
func New(store kv.Store, project string, window time.Duration) *Evaluator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Evaluator{store: store, project: project, window: window}
}

func (e *Evaluator) key(base string) string { return e.project + ":" + base }

// LogPrediction creates and stores a new pending batch, truncating files
// to the top 5, and prunes timeline entries older than the evaluation
// window.
func (e *Evaluator) LogPrediction(ctx context.Context, session string, files, tags []string, triggerFile string, confidence float64, armIndex int) (Batch, error) {
	if len(files) > maxPredictedFiles {
		files = files[:maxPredictedFiles]
	}

	batch := Batch{
		ID:          uuid.NewString(),
		Session:     session,
		Files:       files,
		Tags:        tags,
		TriggerFile: triggerFile,
		Confidence:  confidence,
		ArmIndex:    armIndex,
		Status:      Pending,
		CreatedAt:   time.Now(),
	}

	if err := e.store.Set(ctx, e.key(batchKeyPrefix)+batch.ID, mustMarshal(batch), e.window+time.Hour); err != nil {
		return Batch{}, err
	}

	ts := float64(batch.CreatedAt.UnixNano())
	if err := e.store.ZAdd(ctx, e.key(timelineKey), batch.ID, ts); err != nil {
		return Batch{}, err
	}
	if session != "" {
		if err := e.store.ZAdd(ctx, e.key(sessionKeyPrefix)+session, batch.ID, ts); err != nil {
			return Batch{}, err
		}
	}

	if err := e.pruneTimeline(ctx); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

func (e *Evaluator) pruneTimeline(ctx context.Context) error {
	cutoff := float64(time.Now().Add(-e.window).UnixNano())
	members, err := e.store.ZRangeAll(ctx, e.key(timelineKey), false)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Score >= cutoff {
			break
		}
		if err := e.store.ZRem(ctx, e.key(timelineKey), m.Member); err != nil {
			return err
		}
	}
	return nil
}

// CheckHit looks at this session's recent batches (bounded lookback) for
// the first whose predicted files contain fileRead. A still-pending match
// transitions to hit and bumps the project's hit counter; a match that
// already resolved is a no-op return of true. No match at all bumps the
// miss counter.
func (e *Evaluator) CheckHit(ctx context.Context, session, fileRead string) (bool, error) {
	_, hit, err := e.CheckHitBatch(ctx, session, fileRead)
	return hit, err
}

// CheckHitBatch is CheckHit plus the matched batch, so a caller coupling
// the Evaluator to the Weight Tuner can call RecordFeedback against the
// batch's ArmIndex, closing the loop back to the arm that produced it.
// The returned Batch is the zero value when nothing matched.
func (e *Evaluator) CheckHitBatch(ctx context.Context, session, fileRead string) (Batch, bool, error) {
	recent, err := e.store.ZRange(ctx, e.key(sessionKeyPrefix)+session, 0, recentBatchLookback, true)
	if err != nil {
		return Batch{}, false, err
	}

	for _, m := range recent {
		batch, ok, err := e.loadBatch(ctx, m.Member)
		if err != nil {
			return Batch{}, false, err
		}
		if !ok || !contains(batch.Files, fileRead) {
			continue
		}

		resolved, transitioned, err := e.transitionStatus(ctx, batch.ID, Hit)
		if err != nil {
			return Batch{}, false, err
		}
		if resolved.ID != "" {
			batch = resolved
		}
		if transitioned {
			if _, err := e.store.HIncrBy(ctx, e.key(countersKey), "hits", 1); err != nil {
				return Batch{}, false, err
			}
		}
		return batch, true, nil
	}

	if _, err := e.store.HIncrBy(ctx, e.key(countersKey), "misses", 1); err != nil {
		return Batch{}, false, err
	}
	return Batch{}, false, nil
}

// Finalize flips every still-pending batch older than maxAge to miss,
// returning how many batches were finalized.
func (e *Evaluator) Finalize(ctx context.Context, maxAge time.Duration) (int, error) {
	batches, err := e.FinalizeBatches(ctx, maxAge)
	return len(batches), err
}

// FinalizeBatches is Finalize plus the batches it flipped to miss, so a
// caller can feed each one's ArmIndex back into the Weight Tuner as a miss.
func (e *Evaluator) FinalizeBatches(ctx context.Context, maxAge time.Duration) ([]Batch, error) {
	cutoff := float64(time.Now().Add(-maxAge).UnixNano())
	members, err := e.store.ZRangeAll(ctx, e.key(timelineKey), false)
	if err != nil {
		return nil, err
	}

	var finalized []Batch
	for _, m := range members {
		if m.Score >= cutoff {
			break
		}
		batch, ok, err := e.loadBatch(ctx, m.Member)
		if err != nil {
			return finalized, err
		}
		if !ok || batch.Status != Pending {
			continue
		}

		resolved, transitioned, err := e.transitionStatus(ctx, batch.ID, Miss)
		if err != nil {
			return finalized, err
		}
		if !transitioned {
			// Lost the race to a concurrent CheckHitBatch/FinalizeBatches
			// call that already resolved this batch; don't double-count it.
			continue
		}
		if _, err := e.store.HIncrBy(ctx, e.key(countersKey), "misses", 1); err != nil {
			return finalized, err
		}
		finalized = append(finalized, resolved)
	}
	return finalized, nil
}

// RollingHitAt5 scans the timeline for the last window and returns
// hits / (hits+misses) among batches that have resolved; pending batches
// are excluded from both halves of the ratio. Returns 0 when nothing has
// resolved yet.
func (e *Evaluator) RollingHitAt5(ctx context.Context, window time.Duration) (float64, error) {
	cutoff := float64(time.Now().Add(-window).UnixNano())
	members, err := e.store.ZRangeAll(ctx, e.key(timelineKey), true)
	if err != nil {
		return 0, err
	}

	hits, misses := 0, 0
	for _, m := range members {
		if m.Score < cutoff {
			break
		}
		batch, ok, err := e.loadBatch(ctx, m.Member)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		switch batch.Status {
		case Hit:
			hits++
		case Miss:
			misses++
		}
	}
	if hits+misses == 0 {
		return 0, nil
	}
	return float64(hits) / float64(hits+misses), nil
}

// Stats is the evaluator's IR-metrics companion to RollingHitAt5: an
// external benchmark harness computes whatever aggregate it wants from
// the resolved/pending counts without the core owning IR-metric opinions.
type Stats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	Pending int     `json:"pending"`
	Total   int     `json:"total"`
	HitAt5  float64 `json:"hit_at_5"`
}

// Stats scans the timeline for the last window and reports how many
// batches resolved to hit, miss, or are still pending, alongside the same
// hits/(hits+misses) ratio RollingHitAt5 reports.
func (e *Evaluator) Stats(ctx context.Context, window time.Duration) (Stats, error) {
	cutoff := float64(time.Now().Add(-window).UnixNano())
	members, err := e.store.ZRangeAll(ctx, e.key(timelineKey), true)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for _, m := range members {
		if m.Score < cutoff {
			break
		}
		batch, ok, err := e.loadBatch(ctx, m.Member)
		if err != nil {
			return Stats{}, err
		}
		if !ok {
			continue
		}
		s.Total++
		switch batch.Status {
		case Hit:
			s.Hits++
		case Miss:
			s.Misses++
		default:
			s.Pending++
		}
	}
	if s.Hits+s.Misses > 0 {
		s.HitAt5 = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
	return s, nil
}

// transitionStatus moves a batch from Pending to newStatus through
// Store.Atomic's CAS, so a hit mark and a finalize-miss racing on the same
// batch ID resolve deterministically to whichever caller's Atomic callback
// observes Pending first; the loser sees an already-resolved batch and
// reports transitioned=false instead of double-counting it.
func (e *Evaluator) transitionStatus(ctx context.Context, id string, newStatus Status) (Batch, bool, error) {
	var result Batch
	var transitioned bool
	key := e.key(batchKeyPrefix) + id
	err := e.store.Atomic(ctx, key, func(current []byte) ([]byte, bool, error) {
		if current == nil {
			return nil, false, nil
		}
		var batch Batch
		if err := json.Unmarshal(current, &batch); err != nil {
			return nil, false, err
		}
		result = batch
		if batch.Status != Pending {
			return nil, false, nil
		}
		batch.Status = newStatus
		result = batch
		transitioned = true
		return mustMarshal(batch), true, nil
	})
	if err != nil {
		return Batch{}, false, err
	}
	return result, transitioned, nil
}

func (e *Evaluator) loadBatch(ctx context.Context, id string) (Batch, bool, error) {
	raw, ok, err := e.store.Get(ctx, e.key(batchKeyPrefix)+id)
	if err != nil || !ok {
		return Batch{}, false, err
	}
	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return Batch{}, false, nil
	}
	return batch, true, nil
}

func contains(files []string, target string) bool {
	for _, f := range files {
		if f == target {
			return true
		}
	}
	return false
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
