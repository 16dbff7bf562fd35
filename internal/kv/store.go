// Package kv provides the Score Store abstraction: a single interface
// over sorted sets, hashes, and atomic counters, with a fast in-process
// implementation and a durable SQLite-backed one, so the rest of the
// prediction engine never has to special-case "are we testing or
// running for real."
//
// No Redis client is available in the retrieved dependency set, so this
// package plays the role an external KV store would without wiring an
// actual Redis client — see DESIGN.md.
package kv

import (
	"context"
	"time"
)

// ScoredMember is one element of a sorted-set range result.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the interface the Scorer, Transition Model, and Evaluator write
// through. Every mutation on a single key is atomic; cross-key updates
// are not.
type Store interface {
	// Sorted sets.
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZRange(ctx context.Context, key string, offset, count int, desc bool) ([]ScoredMember, error)
	ZRangeAll(ctx context.Context, key string, desc bool) ([]ScoredMember, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int, error)

	// Hashes — member -> value counters used for tag-affinity and similar
	// nested per-key maps (e.g. transition counts keyed by source file).
	HIncrBy(ctx context.Context, key, field string, delta float64) (float64, error)
	HGet(ctx context.Context, key, field string) (float64, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]float64, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Simple key/value with optional TTL, for first-seen timestamps,
	// prediction batches, and similar small records.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error

	// Keys returns all keys matching a "prefix*" style glob. Used sparingly
	// (registry listing, admin/debug endpoints), never on the request path.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Atomic performs a read-modify-write callback as a single logical
	// operation against one key, standing in for server-side scripting
	// (e.g. CAS-style pending->hit transitions, bulk recency decay). The
	// callback receives the current raw bytes (nil if absent) and returns
	// the new bytes to store, or ok=false to abort without writing.
	Atomic(ctx context.Context, key string, fn func(current []byte) (next []byte, ok bool, err error)) error
}
