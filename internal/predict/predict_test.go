package predict

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/predictsh/predictd/internal/evaluator"
	"github.com/predictsh/predictd/internal/fileindex"
	"github.com/predictsh/predictd/internal/kv"
	"github.com/predictsh/predictd/internal/scorer"
	"github.com/predictsh/predictd/internal/transition"
)

func newTestEngine(t *testing.T) (*Engine, *fileindex.Index, string) {
	t.Helper()
	root := t.TempDir()

	store := kv.NewMemory()
	sc := scorer.New(store, "proj1", time.Hour)
	tr := transition.New(store, "proj1")
	idx := fileindex.New(root, fileindex.Config{}, nil)
	ev := evaluator.New(store, "proj1", 24*time.Hour)

	return New(sc, tr, idx, ev, time.Hour), idx, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

const authSource = `package auth

func Login(user string) error {
	return nil
}

func Logout(user string) error {
	return nil
}
`

func TestPredictRanksByScorerAndExtractsSnippet(t *testing.T) {
	ctx := context.Background()
	eng, idx, root := newTestEngine(t)

	writeFile(t, root, "auth/login.go", authSource)
	if err := idx.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if err := eng.scorer.RecordAccess(ctx, "auth/login.go", []string{"authentication"}, time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	result, err := eng.Predict(ctx, Params{
		Keywords:        []string{"login"},
		Limit:           5,
		IncludeSnippets: true,
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(result.Predictions) != 1 {
		t.Fatalf("len(predictions) = %d, want 1", len(result.Predictions))
	}
	pred := result.Predictions[0]
	if pred.File != "auth/login.go" {
		t.Fatalf("predicted file = %q, want auth/login.go", pred.File)
	}
	if pred.SymbolName != "Login" {
		t.Fatalf("matched symbol = %q, want Login", pred.SymbolName)
	}
	if pred.Snippet == "" {
		t.Fatalf("expected a non-empty snippet")
	}
}

func TestPredictBoostsScorerResultWithTransitionProbability(t *testing.T) {
	ctx := context.Background()
	eng, idx, root := newTestEngine(t)

	writeFile(t, root, "a.go", "package p\nfunc A() {}\n")
	writeFile(t, root, "b.go", "package p\nfunc B() {}\n")
	if err := idx.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Cross MinTransitionCount by observing the same consecutive pair
	// twice, under two sessions.
	if err := eng.transition.RecordAccess(ctx, "a.go", "Read", "s1", time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if err := eng.transition.RecordAccess(ctx, "b.go", "Read", "s1", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if err := eng.transition.RecordAccess(ctx, "a.go", "Read", "s2", time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if err := eng.transition.RecordAccess(ctx, "b.go", "Read", "s2", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	if err := eng.scorer.RecordAccess(ctx, "b.go", nil, time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	result, err := eng.Predict(ctx, Params{TriggerFile: "a.go", Limit: 5})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.TransitionMatches == 0 {
		t.Fatalf("expected at least one transition match")
	}

	var found bool
	for _, p := range result.Predictions {
		if p.File == "b.go" {
			found = true
			if !p.FromTrans {
				t.Fatalf("b.go prediction not flagged as transition-boosted")
			}
		}
	}
	if !found {
		t.Fatalf("expected b.go among predictions, got %+v", result.Predictions)
	}
}

func TestPredictInsertsTransitionOnlyFileAboveThreshold(t *testing.T) {
	ctx := context.Background()
	eng, idx, root := newTestEngine(t)

	writeFile(t, root, "a.go", "package p\n")
	writeFile(t, root, "c.go", "package p\n")
	if err := idx.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// c.go is never touched by the Scorer at all — it can only appear via
	// the Transition Model's insert-if-missing path.
	for _, session := range []string{"s1", "s2"} {
		if err := eng.transition.RecordAccess(ctx, "a.go", "Read", session, time.Now()); err != nil {
			t.Fatalf("RecordAccess: %v", err)
		}
		if err := eng.transition.RecordAccess(ctx, "c.go", "Read", session, time.Now().Add(time.Second)); err != nil {
			t.Fatalf("RecordAccess: %v", err)
		}
	}

	result, err := eng.Predict(ctx, Params{TriggerFile: "a.go", Limit: 5})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	var found bool
	for _, p := range result.Predictions {
		if p.File == "c.go" {
			found = true
			if !p.FromTrans || p.FromRank {
				t.Fatalf("c.go should be transition-only, got %+v", p)
			}
		}
	}
	if !found {
		t.Fatalf("expected c.go inserted purely from the Transition Model, got %+v", result.Predictions)
	}
}

func TestContextExtractsKeywordsAndMapsToTags(t *testing.T) {
	ctx := context.Background()
	eng, idx, root := newTestEngine(t)

	writeFile(t, root, "auth/login.go", authSource)
	if err := idx.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := eng.scorer.RecordAccess(ctx, "auth/login.go", []string{"authentication"}, time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	result, err := eng.Context(ctx, "please help me fix the login flow", Params{Limit: 5})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(result.Predictions) != 1 || result.Predictions[0].File != "auth/login.go" {
		t.Fatalf("Context predictions = %+v, want auth/login.go", result.Predictions)
	}

	// A second call with the same prose should hit the cache and omit
	// snippets.
	result2, err := eng.Context(ctx, "please help me fix the login flow", Params{Limit: 5})
	if err != nil {
		t.Fatalf("Context (cached): %v", err)
	}
	if len(result2.Predictions) != 1 {
		t.Fatalf("cached predictions = %+v, want 1 entry", result2.Predictions)
	}
	if result2.Predictions[0].Snippet != "" {
		t.Fatalf("cached Context result should omit snippets, got %q", result2.Predictions[0].Snippet)
	}
}

func TestPredictLogsBatchToEvaluator(t *testing.T) {
	ctx := context.Background()
	eng, idx, root := newTestEngine(t)

	writeFile(t, root, "a.go", "package p\n")
	if err := idx.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := eng.scorer.RecordAccess(ctx, "a.go", nil, time.Now()); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	if _, err := eng.Predict(ctx, Params{Session: "S", Limit: 5}); err != nil {
		t.Fatalf("Predict: %v", err)
	}

	hit, err := eng.eval.CheckHit(ctx, "S", "a.go")
	if err != nil {
		t.Fatalf("CheckHit: %v", err)
	}
	if !hit {
		t.Fatalf("expected the logged batch to register a hit for a.go")
	}
}
