package kv

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/predictsh/predictd/internal/db"
)

// SQLite is the durable Store implementation, built on the same db.DB
// wrapper used by internal/registry: every store owns a *db.DB and
// issues plain parameterized SQL.
type SQLite struct {
	db *db.DB
}

// NewSQLite wraps an already-open database as a Store.
func NewSQLite(d *db.DB) *SQLite {
	return &SQLite{db: d}
}

func (s *SQLite) ZAdd(ctx context.Context, key, member string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_zset (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`,
		key, member, score)
	return err
}

func (s *SQLite) ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_zset (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = score + excluded.score`,
		key, member, delta)
	if err != nil {
		return 0, err
	}
	score, _, err := s.ZScore(ctx, key, member)
	return score, err
}

func (s *SQLite) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var score float64
	err := s.db.QueryRowContext(ctx, `SELECT score FROM kv_zset WHERE key = ? AND member = ?`, key, member).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *SQLite) zrange(ctx context.Context, key string, desc bool) ([]ScoredMember, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT member, score FROM kv_zset WHERE key = ? ORDER BY score %s, member ASC`, order), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredMember
	for rows.Next() {
		var m ScoredMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) ZRange(ctx context.Context, key string, offset, count int, desc bool) ([]ScoredMember, error) {
	all, err := s.zrange(ctx, key, desc)
	if err != nil {
		return nil, err
	}
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

func (s *SQLite) ZRangeAll(ctx context.Context, key string, desc bool) ([]ScoredMember, error) {
	return s.zrange(ctx, key, desc)
}

func (s *SQLite) ZRem(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_zset WHERE key = ? AND member = ?`, key, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) ZCard(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_zset WHERE key = ?`, key).Scan(&n)
	return n, err
}

func (s *SQLite) HIncrBy(ctx context.Context, key, field string, delta float64) (float64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_hash (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = value + excluded.value`,
		key, field, delta)
	if err != nil {
		return 0, err
	}
	v, _, err := s.HGet(ctx, key, field)
	return v, err
}

func (s *SQLite) HGet(ctx context.Context, key, field string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_hash WHERE key = ? AND field = ?`, key, field).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *SQLite) HGetAll(ctx context.Context, key string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM kv_hash WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var f string
		var v float64
		if err := rows.Scan(&f, &v); err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, rows.Err()
}

func (s *SQLite) HDel(ctx context.Context, key string, fields ...string) error {
	for _, f := range fields {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_hash WHERE key = ? AND field = ?`, key, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires sql.NullString
	if ttl > 0 {
		expires = sql.NullString{String: time.Now().Add(ttl).UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	return err
}

func (s *SQLite) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok, err := s.Get(ctx, key); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires.Valid {
		t, err := time.Parse(time.RFC3339Nano, expires.String)
		if err == nil && time.Now().After(t) {
			_ = s.Del(ctx, key)
			return nil, false, nil
		}
	}
	return value, true, nil
}

func (s *SQLite) Del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	return err
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	like := prefix
	if len(like) > 0 && like[len(like)-1] == '*' {
		like = like[:len(like)-1] + "%"
	} else {
		like += "%"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_entries WHERE key LIKE ?
		UNION SELECT key FROM kv_zset WHERE key LIKE ?
		UNION SELECT key FROM kv_hash WHERE key LIKE ?`, like, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// Atomic relies on SQLite's own transactional isolation rather than an
// application-level lock: the read and the conditional write happen inside
// one transaction, so two concurrent Atomic calls on the same key serialize
// through SQLite's writer lock, giving the Evaluator's pending->hit
// transition its CAS semantics.
func (s *SQLite) Atomic(ctx context.Context, key string, fn func(current []byte) ([]byte, bool, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current []byte
	var expires sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&current, &expires)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if expires.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, expires.String); perr == nil && time.Now().After(t) {
			current = nil
		}
	}

	next, ok, err := fn(current)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, next); err != nil {
		return err
	}
	return tx.Commit()
}
