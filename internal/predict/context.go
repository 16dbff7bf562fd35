package predict

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// stopwords mirror the original prompt-keyword hook (predict-context.py):
// common verbs, fillers, and pronouns that never usefully narrow a
// Scorer tag query.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "what": true, "how": true,
	"can": true, "you": true, "are": true, "please": true, "help": true,
	"want": true, "need": true, "make": true, "use": true, "get": true,
	"add": true, "fix": true, "update": true, "change": true, "create": true,
	"delete": true, "remove": true, "show": true, "find": true, "look": true,
	"see": true, "let": true, "know": true, "would": true, "could": true,
	"should": true, "will": true, "just": true, "like": true, "also": true,
	"more": true, "some": true, "any": true, "all": true, "new": true,
	"now": true, "about": true, "into": true,
}

var identifierPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)

// tagRule maps a keyword pattern to the tags it implies, e.g. a prompt
// mentioning "login" or "session" is probably about authentication.
type tagRule struct {
	pattern *regexp.Regexp
	tags    []string
}

var tagRules = []tagRule{
	{regexp.MustCompile(`(?i)^(auth|login|logout|session|token|oauth|jwt)$`), []string{"#authentication"}},
	{regexp.MustCompile(`(?i)^(db|database|sql|query|migration|schema)$`), []string{"#database"}},
	{regexp.MustCompile(`(?i)^(test|tests|spec|assert|mock)$`), []string{"#testing"}},
	{regexp.MustCompile(`(?i)^(api|endpoint|route|handler|http)$`), []string{"#api"}},
	{regexp.MustCompile(`(?i)^(ui|frontend|component|render|style|css)$`), []string{"#frontend"}},
	{regexp.MustCompile(`(?i)^(deploy|ci|cd|pipeline|docker|k8s|kubernetes)$`), []string{"#infra"}},
	{regexp.MustCompile(`(?i)^(cache|caching|redis|memcache)$`), []string{"#caching"}},
	{regexp.MustCompile(`(?i)^(error|exception|panic|crash|bug)$`), []string{"#error-handling"}},
	{regexp.MustCompile(`(?i)^(config|configuration|env|settings)$`), []string{"#config"}},
	{regexp.MustCompile(`(?i)^(log|logging|logger|metrics|trace)$`), []string{"#observability"}},
}

// cacheEntry holds a Context result alongside its expiry.
type cacheEntry struct {
	result  Result
	expires time.Time
}

var (
	contextCacheMu sync.Mutex
	contextCache   = make(map[string]cacheEntry)
)

// Context accepts free-form natural-language prose, extracts keywords,
// maps them to tags via the fixed rule table, and reuses Predict.
// Results are cached by a sorted-keyword key for the Engine's cacheTTL
// (default 1h); cached hits omit snippets (Snippet and SymbolName are
// cleared on the returned copy, not on the cached entry itself).
func (e *Engine) Context(ctx context.Context, prose string, p Params) (Result, error) {
	keywords := extractKeywords(prose)
	if len(keywords) == 0 {
		return Result{Tags: p.Tags}, nil
	}

	tags := append([]string{}, p.Tags...)
	for _, kw := range keywords {
		for _, rule := range tagRules {
			if rule.pattern.MatchString(kw) {
				tags = append(tags, rule.tags...)
			}
		}
	}

	cacheKey := cacheKeyFor(keywords, tags)
	if cached, ok := lookupCache(cacheKey); ok {
		cached.Predictions = stripSnippets(cached.Predictions)
		return cached, nil
	}

	cp := p
	cp.Keywords = keywords
	cp.Tags = tags
	cp.IncludeSnippets = true

	result, err := e.Predict(ctx, cp)
	if err != nil {
		return Result{}, err
	}

	storeCache(cacheKey, result, e.cacheTTL)
	return result, nil
}

func extractKeywords(prose string) []string {
	words := identifierPattern.FindAllString(strings.ToLower(prose), -1)
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if len(w) <= 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func cacheKeyFor(keywords, tags []string) string {
	all := append([]string{}, keywords...)
	all = append(all, tags...)
	sort.Strings(all)
	return strings.Join(all, ",")
}

func lookupCache(key string) (Result, bool) {
	contextCacheMu.Lock()
	defer contextCacheMu.Unlock()
	entry, ok := contextCache[key]
	if !ok || time.Now().After(entry.expires) {
		return Result{}, false
	}
	return entry.result, true
}

func storeCache(key string, result Result, ttl time.Duration) {
	contextCacheMu.Lock()
	defer contextCacheMu.Unlock()
	contextCache[key] = cacheEntry{result: result, expires: time.Now().Add(ttl)}
}

func stripSnippets(preds []Prediction) []Prediction {
	out := make([]Prediction, len(preds))
	for i, p := range preds {
		p.Snippet = ""
		p.SymbolName = ""
		out[i] = p
	}
	return out
}
