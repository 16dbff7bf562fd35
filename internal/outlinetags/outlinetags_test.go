package outlinetags

import (
	"context"
	"testing"
	"time"

	"github.com/predictsh/predictd/internal/kv"
)

func TestEnrichDedupsTagCounts(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "proj1")

	if err := s.Enrich(ctx, "auth/login.go", "Login", []string{"#security", "#auth"}); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if err := s.Enrich(ctx, "auth/login.go", "Login", []string{"#security"}); err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	tags, err := s.Tags(ctx, "auth/login.go", "Login", true)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	counts := map[string]float64{}
	for _, tag := range tags {
		counts[tag.Tag] = tag.Count
	}
	if counts["#security"] != 2 {
		t.Fatalf("#security count = %v, want 2", counts["#security"])
	}
	if counts["#auth"] != 1 {
		t.Fatalf("#auth count = %v, want 1", counts["#auth"])
	}
}

func TestPendingFlagsUnenrichedAndModifiedFiles(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "proj1")

	past := time.Now().Add(-time.Hour)
	if err := s.Enrich(ctx, "a.go", "A", []string{"#x"}); err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	candidates := map[string]time.Time{
		"a.go": past,       // enriched after this mtime: not pending
		"b.go": time.Now(), // never enriched: pending
	}
	pending, err := s.Pending(ctx, candidates)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	has := map[string]bool{}
	for _, f := range pending {
		has[f] = true
	}
	if has["a.go"] {
		t.Fatalf("a.go should not be pending, got %v", pending)
	}
	if !has["b.go"] {
		t.Fatalf("b.go should be pending, got %v", pending)
	}
}
