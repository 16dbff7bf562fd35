// Package predict composes the Codebase Index, Scorer, Transition Model,
// and Evaluator into the sidecar's one public operation: given a few
// keywords, tags, or a trigger file, rank the files an agent is about to
// need and hand back a confidence-ordered shortlist with snippets.
//
// Follows internal/contextengine.Engine's shape: compose signals, build
// a result, log/cache it. The LLM-extraction call is swapped for
// scorer+transition composition (no LLM call here).
package predict

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/predictsh/predictd/internal/evaluator"
	"github.com/predictsh/predictd/internal/fileindex"
	"github.com/predictsh/predictd/internal/scorer"
	"github.com/predictsh/predictd/internal/transition"
)

const (
	defaultLimit         = 5
	defaultSnippetBudget = 20
	transitionBoostCap   = 1.0
	transitionBoostScale = 0.3
	transitionInsertMin  = 0.1
	transitionInsertMult = 0.8
)

// binaryExtensions are skipped entirely during snippet extraction.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".bin": true,
	".exe": true, ".so": true, ".dylib": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".mp3": true, ".mp4": true, ".wasm": true,
}

// Params is Predict's input: any combination of keywords, explicit tags,
// and a trigger file.
type Params struct {
	Keywords     []string
	Tags         []string
	TriggerFile  string
	Session      string
	Limit        int
	SnippetLines int
	// IncludeSnippets enables snippet extraction; Context() sets it on
	// every call it makes, and its cached hits never reach Predict.
	IncludeSnippets bool
}

// Prediction is one ranked file in a Result.
type Prediction struct {
	File       string  `json:"file"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"snippet,omitempty"`
	SymbolName string  `json:"symbol,omitempty"`
	FromRank   bool    `json:"from_scorer"`
	FromTrans  bool    `json:"from_transition"`
}

// Result is Predict's full response.
type Result struct {
	Predictions       []Prediction `json:"predictions"`
	TriggerFile       string       `json:"trigger_file,omitempty"`
	Tags              []string     `json:"tags"`
	TransitionMatches int          `json:"transition_matches"`
}

// Engine wires the Scorer, Transition Model, Codebase Index, and
// Evaluator together behind the Predict/Context operations.
type Engine struct {
	scorer     *scorer.Scorer
	transition *transition.Model
	index      *fileindex.Index
	eval       *evaluator.Evaluator
	tunerArm   int
	cacheTTL   time.Duration
}

// New creates an Engine. index may be nil (snippets are then skipped).
// cacheTTL governs Context's keyword-cache lifetime (defaults to 1h
// when zero).
func New(sc *scorer.Scorer, tr *transition.Model, idx *fileindex.Index, ev *evaluator.Evaluator, cacheTTL time.Duration) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Engine{scorer: sc, transition: tr, index: idx, eval: ev, cacheTTL: cacheTTL}
}

// SetArm records which Tuner arm chose the Scorer's current weights, so
// a later Evaluator outcome can be attributed back to it.
func (e *Engine) SetArm(armIdx int) { e.tunerArm = armIdx }

// Predict ranks files per spec, logging the resulting batch to the
// Evaluator for later hit/miss scoring.
func (e *Engine) Predict(ctx context.Context, p Params) (Result, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	snippetLines := p.SnippetLines
	if snippetLines <= 0 {
		snippetLines = defaultSnippetBudget
	}

	tags := normalizeTags(p.Keywords, p.Tags)

	ranked, err := e.scorer.RankedFiles(ctx, tags, limit*2)
	if err != nil {
		return Result{}, err
	}

	type candidate struct {
		file       string
		confidence float64
		fromRank   bool
		fromTrans  bool
	}
	byFile := make(map[string]*candidate, len(ranked))
	order := make([]string, 0, len(ranked))
	for _, rf := range ranked {
		byFile[rf.File] = &candidate{file: rf.File, confidence: rf.Confidence, fromRank: true}
		order = append(order, rf.File)
	}

	transitionMatches := 0
	if p.TriggerFile != "" && e.transition != nil {
		transitions, err := e.transition.Predict(ctx, p.TriggerFile, limit*2)
		if err != nil {
			return Result{}, err
		}
		for _, tr := range transitions {
			transitionMatches++
			if c, ok := byFile[tr.To]; ok {
				boost := tr.Probability * transitionBoostScale
				c.confidence += boost
				if c.confidence > transitionBoostCap {
					c.confidence = transitionBoostCap
				}
				c.fromTrans = true
				continue
			}
			if tr.Probability >= transitionInsertMin {
				byFile[tr.To] = &candidate{
					file:       tr.To,
					confidence: tr.Probability * transitionInsertMult,
					fromTrans:  true,
				}
				order = append(order, tr.To)
			}
		}
	}

	candidates := make([]*candidate, 0, len(byFile))
	for _, file := range order {
		candidates = append(candidates, byFile[file])
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].confidence > candidates[j].confidence })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	keywords := normalizeKeywords(p.Keywords)
	predictions := make([]Prediction, 0, len(candidates))
	predictedFiles := make([]string, 0, len(candidates))
	for _, c := range candidates {
		pred := Prediction{
			File:       c.file,
			Confidence: round4(c.confidence),
			FromRank:   c.fromRank,
			FromTrans:  c.fromTrans,
		}
		if p.IncludeSnippets && e.index != nil {
			snippet, symbol := e.extractSnippet(c.file, keywords, snippetLines)
			pred.Snippet = snippet
			pred.SymbolName = symbol
		}
		predictions = append(predictions, pred)
		predictedFiles = append(predictedFiles, c.file)
	}

	if e.eval != nil {
		if _, err := e.eval.LogPrediction(ctx, p.Session, predictedFiles, tags, p.TriggerFile, topConfidence(predictions), e.tunerArm); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Predictions:       predictions,
		TriggerFile:       p.TriggerFile,
		Tags:              tags,
		TransitionMatches: transitionMatches,
	}, nil
}

func topConfidence(preds []Prediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	return preds[0].Confidence
}

// normalizeTags unions keywords and tags, lowercases, and strips a
// leading '#'.
func normalizeTags(keywords, tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		t := strings.ToLower(strings.TrimSpace(raw))
		t = strings.TrimPrefix(t, "#")
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, k := range keywords {
		add(k)
	}
	for _, t := range tags {
		add(t)
	}
	return out
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
