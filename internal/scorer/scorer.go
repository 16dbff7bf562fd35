// Package scorer ranks files by a composite of recency, frequency, and
// tag affinity, write-through to a kv.Store and holding no private state
// of its own.
package scorer

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/predictsh/predictd/internal/kv"
)

const (
	recencyKey    = "score:recency"
	frequencyKey  = "score:frequency"
	tagKeyPrefix  = "score:tag:"
	firstSeenKey  = "score:first_seen:"
)

// Weights are the composite-score mixing coefficients. They must sum to
// 1.0 — the Tuner is the only writer that varies them at runtime.
type Weights struct {
	Recency   float64
	Frequency float64
	Tag       float64
}

// DefaultWeights matches the original scorer's defaults.
var DefaultWeights = Weights{Recency: 0.4, Frequency: 0.3, Tag: 0.3}

// Confidence calibration constants: evidence ramps on a log scale to
// MinAccessesFullConfidence accesses, stability ramps linearly to
// MinHoursFullConfidence hours of observed history.
const (
	MinAccessesFullConfidence = 20
	MinHoursFullConfidence    = 24.0
	EvidenceWeight            = 0.7
	StabilityWeight           = 0.3
)

// RankedFile is one entry in a RankedFiles result.
type RankedFile struct {
	File       string             `json:"file"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Recency    float64            `json:"recency"`
	Frequency  float64            `json:"frequency"`
	Tags       map[string]float64 `json:"tags,omitempty"`
}

// Scorer composites recency/frequency/tag-affinity signals per project.
// It holds no state beyond a project namespace and a kv.Store handle.
type Scorer struct {
	store       kv.Store
	project     string
	halfLife    time.Duration
	weights     Weights
}

// New creates a Scorer namespaced to project, decaying recency with the
// given half-life (default 1 hour when zero).
func New(store kv.Store, project string, halfLife time.Duration) *Scorer {
	if halfLife <= 0 {
		halfLife = time.Hour
	}
	return &Scorer{store: store, project: project, halfLife: halfLife, weights: DefaultWeights}
}

// SetWeights overrides the composite mixing weights, e.g. from the Tuner.
func (s *Scorer) SetWeights(w Weights) { s.weights = w }

// Weights returns the scorer's current mixing weights.
func (s *Scorer) Weights() Weights { return s.weights }

func (s *Scorer) key(base string) string {
	return s.project + ":" + base
}

// RecordAccess registers one file access at ts (time.Now() if zero),
// bumping recency to ts, frequency by one, and each tag's affinity
// counter by one. First access time is recorded once via SetNX, for the
// confidence calibration's stability factor.
func (s *Scorer) RecordAccess(ctx context.Context, file string, tags []string, ts time.Time) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	unix := float64(ts.Unix())

	if err := s.store.ZAdd(ctx, s.key(recencyKey), file, unix); err != nil {
		return err
	}
	if _, err := s.store.ZIncrBy(ctx, s.key(frequencyKey), file, 1); err != nil {
		return err
	}
	firstSeen := s.key(firstSeenKey) + file
	if _, err := s.store.SetNX(ctx, firstSeen, []byte(strconv.FormatInt(ts.Unix(), 10)), 0); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := s.store.ZIncrBy(ctx, s.tagKey(tag), file, 1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scorer) tagKey(tag string) string {
	return s.key(tagKeyPrefix) + tag
}

// RankedFiles returns up to limit files ranked by composite score. When
// tags is non-empty, each file's per-tag affinity (normalized against
// that tag's own maximum) contributes an equal share of the tag weight.
func (s *Scorer) RankedFiles(ctx context.Context, tags []string, limit int) ([]RankedFile, error) {
	now := time.Now()

	recency, err := s.store.ZRangeAll(ctx, s.key(recencyKey), true)
	if err != nil {
		return nil, err
	}
	frequency, err := s.store.ZRangeAll(ctx, s.key(frequencyKey), true)
	if err != nil {
		return nil, err
	}

	type signals struct {
		recency   float64
		frequency float64
		tagScores map[string]float64
	}
	byFile := make(map[string]*signals)
	get := func(file string) *signals {
		sig, ok := byFile[file]
		if !ok {
			sig = &signals{tagScores: make(map[string]float64)}
			byFile[file] = sig
		}
		return sig
	}

	for _, m := range recency {
		age := now.Sub(time.Unix(int64(m.Score), 0)).Seconds()
		get(m.Member).recency = 100 * math.Exp(-age/s.halfLife.Seconds())
	}

	maxFreq := 0.0
	for _, m := range frequency {
		if m.Score > maxFreq {
			maxFreq = m.Score
		}
	}
	for _, m := range frequency {
		score := 0.0
		if maxFreq > 0 {
			score = (m.Score / maxFreq) * 100
		}
		get(m.Member).frequency = score
	}

	for _, tag := range tags {
		tagMembers, err := s.store.ZRangeAll(ctx, s.tagKey(tag), true)
		if err != nil {
			return nil, err
		}
		maxTag := 0.0
		for _, m := range tagMembers {
			if m.Score > maxTag {
				maxTag = m.Score
			}
		}
		for _, m := range tagMembers {
			score := 0.0
			if maxTag > 0 {
				score = (m.Score / maxTag) * 100
			}
			get(m.Member).tagScores[tag] = score
		}
	}

	if len(byFile) == 0 {
		return nil, nil
	}

	type composite struct {
		file string
		sig  *signals
		sum  float64
	}
	composites := make([]composite, 0, len(byFile))
	for file, sig := range byFile {
		sum := sig.recency*s.weights.Recency + sig.frequency*s.weights.Frequency
		if len(tags) > 0 && len(sig.tagScores) > 0 {
			tagWeight := s.weights.Tag / float64(len(tags))
			for _, tag := range tags {
				sum += sig.tagScores[tag] * tagWeight
			}
		}
		composites = append(composites, composite{file: file, sig: sig, sum: sum})
	}

	sort.SliceStable(composites, func(i, j int) bool { return composites[i].sum > composites[j].sum })
	if limit > 0 && len(composites) > limit {
		composites = composites[:limit]
	}

	out := make([]RankedFile, 0, len(composites))
	for _, c := range composites {
		accessCount, _, err := s.store.ZScore(ctx, s.key(frequencyKey), c.file)
		if err != nil {
			return nil, err
		}
		if accessCount < 1 {
			accessCount = 1
		}

		timeSpanHours := 0.0
		if raw, ok, err := s.store.Get(ctx, s.key(firstSeenKey)+c.file); err == nil && ok {
			if firstSeen, parseErr := strconv.ParseInt(string(raw), 10, 64); parseErr == nil {
				timeSpanHours = now.Sub(time.Unix(firstSeen, 0)).Hours()
			}
		}

		rf := RankedFile{
			File:       c.file,
			Score:      round4(c.sum),
			Confidence: calculateConfidence(c.sum, int(accessCount), timeSpanHours),
			Recency:    round2(c.sig.recency),
			Frequency:  round2(c.sig.frequency),
		}
		if len(tags) > 0 && len(c.sig.tagScores) > 0 {
			rf.Tags = make(map[string]float64, len(c.sig.tagScores))
			for tag, score := range c.sig.tagScores {
				rf.Tags[tag] = round2(score)
			}
		}
		out = append(out, rf)
	}
	return out, nil
}

// calculateConfidence calibrates a 0-100 composite score against how
// much evidence supports it: accessCount ramps an evidence factor on a
// log scale, timeSpanHours ramps a stability factor linearly, each
// capped at 1.0 and mixed by EvidenceWeight/StabilityWeight.
func calculateConfidence(composite float64, accessCount int, timeSpanHours float64) float64 {
	base := composite / 100.0

	evidence := 0.3 + 0.7*math.Log1p(float64(accessCount))/math.Log1p(MinAccessesFullConfidence)
	if evidence > 1.0 {
		evidence = 1.0
	}

	stability := 0.5 + 0.5*timeSpanHours/MinHoursFullConfidence
	if stability > 1.0 {
		stability = 1.0
	}

	confidence := base * (EvidenceWeight*evidence + StabilityWeight*stability)
	return round4(confidence)
}

// Decay applies exponential recency decay to every tracked file's
// recency score: new = old * 0.5^(age/halfLife). Unlike the original
// Redis Lua script, this isn't a single atomic operation — no KV
// operation here spans the whole key's member set atomically — but it
// runs as a scheduled maintenance pass, never on the request path, so a
// race against a concurrent RecordAccess losing a decay step is
// harmless (that RecordAccess has just reset the file's recency anyway).
func (s *Scorer) Decay(ctx context.Context, halfLife time.Duration) (int, error) {
	if halfLife <= 0 {
		halfLife = s.halfLife
	}
	now := time.Now()
	members, err := s.store.ZRangeAll(ctx, s.key(recencyKey), true)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range members {
		age := now.Sub(time.Unix(int64(m.Score), 0))
		if age <= 0 {
			continue
		}
		decayFactor := math.Pow(0.5, age.Seconds()/halfLife.Seconds())
		newScore := m.Score * decayFactor
		if err := s.store.ZAdd(ctx, s.key(recencyKey), m.Member, newScore); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Stats reports how many files and tags the scorer is tracking.
type Stats struct {
	FilesTracked     int     `json:"files_tracked"`
	FrequencyEntries int     `json:"frequency_entries"`
	TagsTracked      int     `json:"tags_tracked"`
	TagAssociations  int     `json:"tag_associations"`
	Weights          Weights `json:"weights"`
}

func (s *Scorer) Stats(ctx context.Context) (Stats, error) {
	recencyCount, err := s.store.ZCard(ctx, s.key(recencyKey))
	if err != nil {
		return Stats{}, err
	}
	freqCount, err := s.store.ZCard(ctx, s.key(frequencyKey))
	if err != nil {
		return Stats{}, err
	}
	tagKeys, err := s.store.Keys(ctx, s.key(tagKeyPrefix)+"*")
	if err != nil {
		return Stats{}, err
	}
	total := 0
	for _, k := range tagKeys {
		n, err := s.store.ZCard(ctx, k)
		if err != nil {
			return Stats{}, err
		}
		total += n
	}
	return Stats{
		FilesTracked:     recencyCount,
		FrequencyEntries: freqCount,
		TagsTracked:      len(tagKeys),
		TagAssociations:  total,
		Weights:          s.weights,
	}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
