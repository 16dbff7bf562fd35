package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process Store implementation: plain maps guarded by a
// single RWMutex, matching the locking idiom of internal/db/db.go's
// wrapper but applied per-operation rather than per-connection, since
// there is no underlying driver to serialize through.
type Memory struct {
	mu      sync.RWMutex
	zsets   map[string]map[string]float64
	hashes  map[string]map[string]float64
	entries map[string]entry
}

type entry struct {
	value   []byte
	expires time.Time // zero means no TTL
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		zsets:   make(map[string]map[string]float64),
		hashes:  make(map[string]map[string]float64),
		entries: make(map[string]entry),
	}
}

func (m *Memory) ZAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	set[member] = score
	return nil
}

func (m *Memory) ZIncrBy(_ context.Context, key, member string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	set[member] += delta
	return set[member], nil
}

func (m *Memory) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := set[member]
	return score, ok, nil
}

func (m *Memory) zrangeLocked(key string, desc bool) []ScoredMember {
	set := m.zsets[key]
	out := make([]ScoredMember, 0, len(set))
	for member, score := range set {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Member < out[j].Member
		}
		if desc {
			return out[i].Score > out[j].Score
		}
		return out[i].Score < out[j].Score
	})
	return out
}

func (m *Memory) ZRange(_ context.Context, key string, offset, count int, desc bool) ([]ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.zrangeLocked(key, desc)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []ScoredMember{}, nil
	}
	end := len(all)
	if count >= 0 && offset+count < end {
		end = offset + count
	}
	result := make([]ScoredMember, end-offset)
	copy(result, all[offset:end])
	return result, nil
}

func (m *Memory) ZRangeAll(ctx context.Context, key string, desc bool) ([]ScoredMember, error) {
	return m.ZRange(ctx, key, 0, -1, desc)
}

func (m *Memory) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.zsets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(set, mem)
	}
	return nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.zsets[key]), nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]float64)
		m.hashes[key] = h
	}
	h[field] += delta
	return h[field], nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[key]
	if !ok {
		return 0, false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.hashes[key]
	out := make(map[string]float64, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !expired(e) {
		return false, nil
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || expired(e) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k, e := range m.entries {
		if expired(e) {
			continue
		}
		if matchesPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range m.zsets {
		if matchesPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range m.hashes {
		if matchesPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Atomic(_ context.Context, key string, fn func(current []byte) ([]byte, bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current []byte
	if e, ok := m.entries[key]; ok && !expired(e) {
		current = e.value
	}
	next, ok, err := fn(current)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	m.entries[key] = entry{value: next}
	return nil
}

func expired(e entry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func matchesPrefix(key, prefix string) bool {
	if prefix == "" || prefix == "*" {
		return true
	}
	if len(prefix) > 0 && prefix[len(prefix)-1] == '*' {
		prefix = prefix[:len(prefix)-1]
	}
	if len(key) < len(prefix) {
		return false
	}
	return key[:len(prefix)] == prefix
}
