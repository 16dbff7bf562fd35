// Package intentgraph records observed agent activity (which tool touched
// which files under which tags) and answers the bidirectional tag<->file
// queries the Prediction Engine and tag-affinity scoring depend on.
package intentgraph

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbollon/go-edlib"

	"github.com/predictsh/predictd/internal/kv"
)

// bareNameSimilarity is the Jaro-Winkler threshold TagsForFile's fallback
// requires before treating an indexed file key as "the same file" the
// caller meant by a bare name, matching standardbeagle-lci's fuzzy_matcher
// default threshold for identifier lookups.
const bareNameSimilarity = 0.80

// globalProject is the reserved bucket for an empty or whitespace-only
// project id.
const globalProject = "global"

const (
	recordKeyPrefix  = "intent:record:"
	timelineKey      = "intent:timeline"
	sessionKeyPrefix = "intent:session:"
	tagKeyPrefix     = "intent:tag:"
	fileKeyPrefix    = "intent:file:"
)

// Record is one immutable, append-only observation of agent activity.
type Record struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Session    string           `json:"session"`
	Tool       string           `json:"tool"`
	Files      []string         `json:"files"`
	Tags       []string         `json:"tags"`
	CorrID     string           `json:"corr_id,omitempty"`
	Sizes      map[string]int64 `json:"sizes,omitempty"`
	OutputSize int64            `json:"output_size,omitempty"`
}

// Graph is the per-project Intent Graph. It holds no state beyond a
// project namespace, a kv.Store handle, and the tunable savings-estimate
// constant.
type Graph struct {
	store           kv.Store
	project         string
	secondsPerToken float64
}

// New creates a Graph namespaced to project. An empty or whitespace-only
// project falls through to the reserved "global" bucket. secondsPerToken
// is the tunable constant Stats uses to estimate time saved.
func New(store kv.Store, project string, secondsPerToken float64) *Graph {
	project = strings.TrimSpace(project)
	if project == "" {
		project = globalProject
	}
	return &Graph{store: store, project: project, secondsPerToken: secondsPerToken}
}

func (g *Graph) key(base string) string { return g.project + ":" + base }

// Record appends an intent record to the project's global timeline and the
// session's own list, and inserts every (tag, file) pair into both the
// tag->files and file->tags maps. Duplicate records are allowed and
// double-count by design — idempotency is not required.
func (g *Graph) Record(ctx context.Context, tool string, files, tags []string, session, corrID string, sizes map[string]int64, outputSize int64) (Record, error) {
	rec := Record{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Session:    session,
		Tool:       tool,
		Files:      files,
		Tags:       tags,
		CorrID:     corrID,
		Sizes:      sizes,
		OutputSize: outputSize,
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if err := g.store.Set(ctx, g.key(recordKeyPrefix)+rec.ID, blob, 0); err != nil {
		return Record{}, err
	}

	ts := float64(rec.Timestamp.UnixNano())
	if err := g.store.ZAdd(ctx, g.key(timelineKey), rec.ID, ts); err != nil {
		return Record{}, err
	}
	if session != "" {
		if err := g.store.ZAdd(ctx, g.key(sessionKeyPrefix)+session, rec.ID, ts); err != nil {
			return Record{}, err
		}
	}

	for _, tag := range tags {
		for _, file := range files {
			if _, err := g.store.ZIncrBy(ctx, g.tagKey(tag), file, 1); err != nil {
				return Record{}, err
			}
			if _, err := g.store.ZIncrBy(ctx, g.fileKey(file), tag, 1); err != nil {
				return Record{}, err
			}
		}
	}

	return rec, nil
}

func (g *Graph) tagKey(tag string) string   { return g.key(tagKeyPrefix) + tag }
func (g *Graph) fileKey(file string) string { return g.key(fileKeyPrefix) + file }

// FilesForTag returns the files observed under tag, most-associated first.
func (g *Graph) FilesForTag(ctx context.Context, tag string) ([]string, error) {
	members, err := g.store.ZRangeAll(ctx, g.tagKey(tag), true)
	if err != nil {
		return nil, err
	}
	return memberNames(members), nil
}

// TagsForFile returns the tags observed under file. Exact key match is
// preferred; when file has no exact entry (the caller supplied a bare
// filename rather than the full indexed path), it falls back to scanning
// every known file key for a suffix match or a high Jaro-Winkler
// similarity against the basename, and unions their tags.
func (g *Graph) TagsForFile(ctx context.Context, file string) ([]string, error) {
	members, err := g.store.ZRangeAll(ctx, g.fileKey(file), true)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return memberNames(members), nil
	}

	keys, err := g.store.Keys(ctx, g.key(fileKeyPrefix)+"*")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tags []string
	prefix := g.key(fileKeyPrefix)
	for _, k := range keys {
		candidate := strings.TrimPrefix(k, prefix)
		if candidate == file {
			continue // already tried as an exact match above
		}
		if !bareNameMatch(candidate, file) {
			continue
		}
		tagMembers, err := g.store.ZRangeAll(ctx, k, true)
		if err != nil {
			return nil, err
		}
		for _, tm := range tagMembers {
			if !seen[tm.Member] {
				seen[tm.Member] = true
				tags = append(tags, tm.Member)
			}
		}
	}
	return tags, nil
}

// bareNameMatch decides whether indexed path candidate is "the same file"
// the caller meant by bare. A suffix match (candidate ends in bare) is
// always accepted; otherwise the two basenames must be
// Jaro-Winkler similar enough to absorb typos or case differences.
func bareNameMatch(candidate, bare string) bool {
	if strings.HasSuffix(candidate, bare) {
		return true
	}
	candidateBase := candidate
	if idx := strings.LastIndexByte(candidate, '/'); idx >= 0 {
		candidateBase = candidate[idx+1:]
	}
	bareBase := bare
	if idx := strings.LastIndexByte(bare, '/'); idx >= 0 {
		bareBase = bare[idx+1:]
	}
	score, err := edlib.StringsSimilarity(candidateBase, bareBase, edlib.JaroWinkler)
	if err != nil {
		return false
	}
	return float64(score) >= bareNameSimilarity
}

// Recent returns up to limit most-recent records, newest first. A zero
// since includes every record regardless of age.
func (g *Graph) Recent(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	members, err := g.store.ZRangeAll(ctx, g.key(timelineKey), true)
	if err != nil {
		return nil, err
	}

	var sinceNanos float64
	if !since.IsZero() {
		sinceNanos = float64(since.UnixNano())
	}

	out := make([]Record, 0, limit)
	for _, m := range members {
		if limit > 0 && len(out) >= limit {
			break
		}
		if sinceNanos > 0 && m.Score < sinceNanos {
			continue
		}
		raw, ok, err := g.store.Get(ctx, g.key(recordKeyPrefix)+m.Member)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// TagCounts returns every known tag and how many distinct files it is
// associated with.
func (g *Graph) TagCounts(ctx context.Context) (map[string]int, error) {
	keys, err := g.store.Keys(ctx, g.key(tagKeyPrefix)+"*")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(keys))
	prefix := g.key(tagKeyPrefix)
	for _, k := range keys {
		n, err := g.store.ZCard(ctx, k)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(k, prefix)] = n
	}
	return out, nil
}

// Stats summarizes the graph: record/tag/file/session counts, plus a
// token-savings estimate computed from records that carry both per-file
// sizes and a produced-output size.
type Stats struct {
	RecordCount     int     `json:"record_count"`
	UniqueTags      int     `json:"unique_tags"`
	UniqueFiles     int     `json:"unique_files"`
	SessionCount    int     `json:"session_count"`
	TokensSaved     float64 `json:"tokens_saved"`
	TimeSavedSecond float64 `json:"time_saved_seconds"`
}

func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	recordCount, err := g.store.ZCard(ctx, g.key(timelineKey))
	if err != nil {
		return Stats{}, err
	}
	tagKeys, err := g.store.Keys(ctx, g.key(tagKeyPrefix)+"*")
	if err != nil {
		return Stats{}, err
	}
	fileKeys, err := g.store.Keys(ctx, g.key(fileKeyPrefix)+"*")
	if err != nil {
		return Stats{}, err
	}
	sessionKeys, err := g.store.Keys(ctx, g.key(sessionKeyPrefix)+"*")
	if err != nil {
		return Stats{}, err
	}

	records, err := g.Recent(ctx, time.Time{}, 0)
	if err != nil {
		return Stats{}, err
	}
	tokensSaved := 0.0
	for _, rec := range records {
		if len(rec.Sizes) == 0 || rec.OutputSize <= 0 {
			continue
		}
		baseline := 0.0
		for _, size := range rec.Sizes {
			baseline += float64(size) / 4
		}
		actual := float64(rec.OutputSize) / 4
		tokensSaved += math.Max(0, baseline-actual)
	}

	return Stats{
		RecordCount:     recordCount,
		UniqueTags:      len(tagKeys),
		UniqueFiles:     len(fileKeys),
		SessionCount:    len(sessionKeys),
		TokensSaved:     round2(tokensSaved),
		TimeSavedSecond: round2(tokensSaved * g.secondsPerToken),
	}, nil
}

func memberNames(members []kv.ScoredMember) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Member
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
