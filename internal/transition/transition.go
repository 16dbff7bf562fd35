// Package transition learns P(next_file | current_file) as a Markov chain
// over ordered file reads within a session, keyed off a kv.Store the same
// way the Scorer is.
package transition

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/predictsh/predictd/internal/kv"
)

const (
	// TimeWindow bounds how far apart two reads can be and still count as
	// an observed transition.
	TimeWindow = 5 * time.Minute

	// MinTransitionCount is the lowest observed count a target needs
	// before it counts toward a Predict result.
	MinTransitionCount = 2

	// MaxTransitionsPerFile bounds how many targets are retained per
	// source file.
	MaxTransitionsPerFile = 20

	// decayFactor weights PredictFromRecent's contributions by how many
	// steps back a read was.
	decayFactor = 0.95

	maxSequenceLen = 100
	maxTimingLen   = 100
)

func sequenceKey(project, session string) string { return project + ":seq:" + session }
func transitionKey(project, from string) string  { return project + ":trans:" + from }
func countKey(project, from string) string       { return project + ":transcount:" + from }
func timingKey(project, from, to string) string  { return project + ":transtiming:" + from + ":" + to }

// access is one recorded file read, kept in the per-session sequence ring.
type access struct {
	File      string  `json:"file"`
	Timestamp float64 `json:"ts"`
	Tool      string  `json:"tool"`
}

// Transition is one predicted (or learned) file-to-file edge.
type Transition struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Probability  float64 `json:"probability"`
	Count        int     `json:"count"`
	AvgTimeDelta float64 `json:"avg_time_delta"`
}

// Model tracks file-access sequences per project and serves transition
// predictions from them.
type Model struct {
	store   kv.Store
	project string
}

// New creates a Model namespaced to project.
func New(store kv.Store, project string) *Model {
	return &Model{store: store, project: project}
}

// RecordAccess registers one ordered file read within session. It counts
// the transition from the session's immediately preceding read, if any,
// provided that read falls within TimeWindow, then appends file to the
// session's sequence ring. Only directly consecutive pairs are counted —
// not every recent read in the window — per the documented counting rule.
func (m *Model) RecordAccess(ctx context.Context, file, tool, session string, ts time.Time) error {
	if file == "" || strings.HasPrefix(file, "pattern:") || strings.HasPrefix(file, "cmd:") {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	seq, err := m.loadSequence(ctx, session)
	if err != nil {
		return err
	}
	if len(seq) > 0 {
		prev := seq[0]
		at := time.Unix(0, int64(prev.Timestamp*float64(time.Second)))
		if delta := ts.Sub(at); delta <= TimeWindow {
			if err := m.recordTransition(ctx, prev.File, file, delta.Seconds()); err != nil {
				return err
			}
		}
	}

	return m.pushAccess(ctx, session, access{File: file, Timestamp: float64(ts.UnixNano()) / 1e9, Tool: tool})
}

func (m *Model) loadSequence(ctx context.Context, session string) ([]access, error) {
	raw, ok, err := m.store.Get(ctx, sequenceKey(m.project, session))
	if err != nil || !ok {
		return nil, err
	}
	var seq []access
	if err := json.Unmarshal(raw, &seq); err != nil {
		return nil, nil
	}
	return seq, nil
}

// pushAccess prepends a to the session's sequence ring, bounded to
// maxSequenceLen, via a single atomic read-modify-write.
func (m *Model) pushAccess(ctx context.Context, session string, a access) error {
	return m.store.Atomic(ctx, sequenceKey(m.project, session), func(current []byte) ([]byte, bool, error) {
		var seq []access
		if len(current) > 0 {
			_ = json.Unmarshal(current, &seq)
		}
		seq = append([]access{a}, seq...)
		if len(seq) > maxSequenceLen {
			seq = seq[:maxSequenceLen]
		}
		next, err := json.Marshal(seq)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
}

func (m *Model) recordTransition(ctx context.Context, from, to string, deltaSeconds float64) error {
	if from == to {
		return nil
	}
	if _, err := m.store.HIncrBy(ctx, countKey(m.project, from), to, 1); err != nil {
		return err
	}
	if err := m.pushTiming(ctx, from, to, deltaSeconds); err != nil {
		return err
	}
	return m.updateTransitions(ctx, from)
}

func (m *Model) pushTiming(ctx context.Context, from, to string, delta float64) error {
	return m.store.Atomic(ctx, timingKey(m.project, from, to), func(current []byte) ([]byte, bool, error) {
		var timings []float64
		if len(current) > 0 {
			_ = json.Unmarshal(current, &timings)
		}
		timings = append([]float64{delta}, timings...)
		if len(timings) > maxTimingLen {
			timings = timings[:maxTimingLen]
		}
		next, err := json.Marshal(timings)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
}

// updateTransitions recalculates the from file's transition sorted set from
// its raw hash counts, pruning to MaxTransitionsPerFile entries and
// requiring MinTransitionCount before a target is retained at all.
func (m *Model) updateTransitions(ctx context.Context, from string) error {
	counts, err := m.store.HGetAll(ctx, countKey(m.project, from))
	if err != nil || len(counts) == 0 {
		return err
	}

	key := transitionKey(m.project, from)
	existing, err := m.store.ZRangeAll(ctx, key, false)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if err := m.store.ZRem(ctx, key, e.Member); err != nil {
			return err
		}
	}

	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}

	for to, count := range counts {
		if count < MinTransitionCount {
			continue
		}
		if err := m.store.ZAdd(ctx, key, to, count); err != nil {
			return err
		}
	}

	ranked, err := m.store.ZRangeAll(ctx, key, true)
	if err != nil {
		return err
	}
	if len(ranked) > MaxTransitionsPerFile {
		for _, extra := range ranked[MaxTransitionsPerFile:] {
			if err := m.store.ZRem(ctx, key, extra.Member); err != nil {
				return err
			}
		}
	}
	return nil
}

// Predict returns up to limit likely next files given currentFile, sorted
// by descending probability. Probabilities are normalized by the sum of
// the returned counts, per the documented counting rule — not by the
// source file's lifetime total, so stale pruned-away mass never drags
// probabilities below 1.0 across a single call's results.
func (m *Model) Predict(ctx context.Context, currentFile string, limit int) ([]Transition, error) {
	if currentFile == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	ranked, err := m.store.ZRange(ctx, transitionKey(m.project, currentFile), 0, limit, true)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	total := 0.0
	for _, r := range ranked {
		total += r.Score
	}
	if total == 0 {
		return nil, nil
	}

	out := make([]Transition, 0, len(ranked))
	for _, r := range ranked {
		avg, err := m.avgTimeDelta(ctx, currentFile, r.Member)
		if err != nil {
			return nil, err
		}
		out = append(out, Transition{
			From:         currentFile,
			To:           r.Member,
			Probability:  round4(r.Score / total),
			Count:        int(r.Score),
			AvgTimeDelta: round2(avg),
		})
	}
	return out, nil
}

func (m *Model) avgTimeDelta(ctx context.Context, from, to string) (float64, error) {
	raw, ok, err := m.store.Get(ctx, timingKey(m.project, from, to))
	if err != nil || !ok {
		return 0, err
	}
	var timings []float64
	if err := json.Unmarshal(raw, &timings); err != nil || len(timings) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, t := range timings {
		sum += t
	}
	return sum / float64(len(timings)), nil
}

// PredictFromRecent predicts likely next files from a session's last up to
// five reads, weighting each read's contribution by decayFactor^i where i
// counts steps back from the most recent read.
func (m *Model) PredictFromRecent(ctx context.Context, session string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 10
	}

	seq, err := m.loadSequence(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(seq) > 5 {
		seq = seq[:5]
	}
	if len(seq) == 0 {
		return nil, nil
	}

	type agg struct {
		prob  float64
		count int
		time  float64
	}
	merged := make(map[string]*agg)

	for i, a := range seq {
		preds, err := m.Predict(ctx, a.File, limit)
		if err != nil {
			return nil, err
		}
		weight := math.Pow(decayFactor, float64(i))
		for _, p := range preds {
			e, ok := merged[p.To]
			if !ok {
				e = &agg{}
				merged[p.To] = e
			}
			e.prob += p.Probability * weight
			e.count += p.Count
			e.time += p.AvgTimeDelta
		}
	}

	out := make([]Transition, 0, len(merged))
	for to, e := range merged {
		out = append(out, Transition{
			From:         "<recent>",
			To:           to,
			Probability:  round4(e.prob),
			Count:        e.count,
			AvgTimeDelta: round2(e.time),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats reports how many source files have learned transitions and the
// total transition edges across them.
type Stats struct {
	SourceFiles int `json:"source_files"`
	Transitions int `json:"transitions"`
}

func (m *Model) Stats(ctx context.Context) (Stats, error) {
	keys, err := m.store.Keys(ctx, m.project+":trans:*")
	if err != nil {
		return Stats{}, err
	}
	total := 0
	for _, k := range keys {
		n, err := m.store.ZCard(ctx, k)
		if err != nil {
			return Stats{}, err
		}
		total += n
	}
	return Stats{SourceFiles: len(keys), Transitions: total}, nil
}

// sessionEvent is one line of a replayed session log: an agent transcript
// in newline-delimited JSON, where only "assistant" events carry tool_use
// entries worth extracting a file read from.
type sessionEvent struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type  string `json:"type"`
			Name  string `json:"name"`
			Input struct {
				FilePath string `json:"file_path"`
			} `json:"input"`
		} `json:"content"`
	} `json:"message"`
}

// ReplaySession ingests a newline-delimited JSON session transcript,
// extracting the ordered sequence of tool_use file reads and feeding them
// through RecordAccess as if they had arrived live. Malformed lines are
// skipped; a single bad line never aborts the replay.
func (m *Model) ReplaySession(ctx context.Context, session string, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	now := time.Now()
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev sessionEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type != "assistant" {
			continue
		}
		for _, item := range ev.Message.Content {
			if item.Type != "tool_use" || item.Input.FilePath == "" {
				continue
			}
			if err := m.RecordAccess(ctx, item.Input.FilePath, item.Name, session, now); err != nil {
				return count, err
			}
			now = now.Add(time.Second)
			count++
		}
	}
	return count, scanner.Err()
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
