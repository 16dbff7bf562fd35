// Package outlinetags stores agent-supplied tags on outline symbols, with
// per-tag dedup counts, and tracks which files have been modified since
// their last enrichment.
// Grounded on internal/intentgraph's hash-counter shape, adapted from
// tag<->file bidirectional maps to a single symbol-scoped tag counter.
package outlinetags

import (
	"context"
	"strconv"
	"time"

	"github.com/predictsh/predictd/internal/kv"
)

const (
	tagKeyPrefix     = "outline:tags:"
	enrichedAtPrefix = "outline:enriched_at:"
)

// Store namespaces enrichment state to one project.
type Store struct {
	store   kv.Store
	project string
}

// New creates a Store namespaced to project.
func New(store kv.Store, project string) *Store {
	return &Store{store: store, project: project}
}

func (s *Store) key(base string) string { return s.project + ":" + base }

func symbolKey(file, symbol string) string { return file + "\x00" + symbol }

// Tag is one stored tag and its dedup count.
type Tag struct {
	Tag   string  `json:"tag"`
	Count float64 `json:"count"`
}

// Enrich records tags on file/symbol, bumping each tag's dedup count by
// one, and marks file as enriched as of now.
func (s *Store) Enrich(ctx context.Context, file, symbol string, tags []string) error {
	key := s.key(tagKeyPrefix) + symbolKey(file, symbol)
	for _, tag := range tags {
		if _, err := s.store.HIncrBy(ctx, key, tag, 1); err != nil {
			return err
		}
	}
	return s.store.Set(ctx, s.key(enrichedAtPrefix)+file, []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0)
}

// Tags returns the stored tags (with counts if withCounts) for file/symbol.
func (s *Store) Tags(ctx context.Context, file, symbol string, withCounts bool) ([]Tag, error) {
	key := s.key(tagKeyPrefix) + symbolKey(file, symbol)
	fields, err := s.store.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]Tag, 0, len(fields))
	for tag, count := range fields {
		if !withCounts {
			count = 0
		}
		out = append(out, Tag{Tag: tag, Count: count})
	}
	return out, nil
}

// EnrichedAt returns when file was last enriched, if ever.
func (s *Store) EnrichedAt(ctx context.Context, file string) (time.Time, bool, error) {
	raw, ok, err := s.store.Get(ctx, s.key(enrichedAtPrefix)+file)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	unix, parseErr := strconv.ParseInt(string(raw), 10, 64)
	if parseErr != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}

// Pending returns every file in candidates whose modTime is after its
// last enrichment (or that was never enriched at all).
func (s *Store) Pending(ctx context.Context, candidates map[string]time.Time) ([]string, error) {
	var pending []string
	for file, modTime := range candidates {
		enrichedAt, ok, err := s.EnrichedAt(ctx, file)
		if err != nil {
			return nil, err
		}
		if !ok || modTime.After(enrichedAt) {
			pending = append(pending, file)
		}
	}
	return pending, nil
}
