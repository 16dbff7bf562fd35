package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
	"github.com/predictsh/predictd/internal/fileindex"
)

func registerIndexRoutes(r chi.Router, m *Manager) {
	r.Get("/symbol", symbolSearch(m))
	r.Get("/multi", multiSearch(m))
	r.Post("/multi", multiSearch(m))
	r.Get("/files", listFiles(m))
	r.Get("/file", readFile(m))
	r.Get("/file/meta", fileMeta(m))
	r.Get("/deps", deps(m))
	r.Get("/deps/external", depsExternal(m))
	r.Get("/structure", structure(m))
	r.Get("/outline", outline(m))
	r.Post("/outline/enriched", outlineEnrich(m))
	r.Get("/outline/tags", outlineTags(m))
	r.Get("/outline/pending", outlinePending(m))
}

func searchMode(raw string) fileindex.SearchMode {
	if raw == string(fileindex.ModeLexicographic) {
		return fileindex.ModeLexicographic
	}
	return fileindex.ModeRecent
}

func intParam(q url.Values, key string, def int) int {
	if v := q.Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func int64Param(q url.Values, key string, def int64) int64 {
	if v := q.Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func symbolSearch(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		token := q.Get("q")
		if token == "" {
			apierr.Write(w, apierr.BadRequest("q is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		limit := intParam(q, "limit", 20)
		since := int64Param(q, "since", 0)
		before := int64Param(q, "before", 0)
		hits := b.Index.Search(token, searchMode(q.Get("mode")), limit, since, before)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"query": token, "hits": hits})
	}
}

func multiSearch(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		terms := strings.Fields(q.Get("terms"))
		if len(terms) == 0 {
			apierr.Write(w, apierr.BadRequest("terms is required (space-separated)"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		limitPerTerm := intParam(q, "limit_per_term", 20)
		limitFiles := intParam(q, "limit", 20)
		hits := b.Index.MultiSearch(terms, searchMode(q.Get("mode")), limitPerTerm, limitFiles)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"terms": terms, "files": hits})
	}
}

func listFiles(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		limit := intParam(q, "limit", 100)
		files := b.Index.ListFiles(q.Get("match"), searchMode(q.Get("mode")), limit)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"files": files})
	}
}

func readFile(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("path")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("path is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		content, readErr := b.Index.ReadFile(path)
		if readErr != nil {
			apierr.Write(w, apierr.NotFound("reading "+path))
			return
		}

		text := string(content)
		if symbol := q.Get("symbol"); symbol != "" {
			symbols, outlineErr := b.Index.Outline(path)
			if outlineErr != nil {
				apierr.Write(w, apierr.Unavailable("reading outline", outlineErr))
				return
			}
			lines := strings.Split(text, "\n")
			for _, sym := range symbols {
				if sym.Name != symbol {
					continue
				}
				start, end := sym.StartLine, sym.EndLine
				if start < 1 {
					start = 1
				}
				if end > len(lines) {
					end = len(lines)
				}
				if start > end {
					apierr.Write(w, apierr.NotFound("symbol "+symbol+" has an empty range"))
					return
				}
				apierr.WriteTimed(w, http.StatusOK, time.Now(), map[string]any{
					"path": path, "symbol": symbol, "content": strings.Join(lines[start-1:end], "\n"),
				})
				return
			}
			apierr.Write(w, apierr.NotFound("symbol "+symbol+" not found in "+path))
			return
		}

		if window := q.Get("lines"); window != "" {
			parts := strings.SplitN(window, "-", 2)
			lines := strings.Split(text, "\n")
			from, to := 1, len(lines)
			if len(parts) == 2 {
				if n, err := strconv.Atoi(parts[0]); err == nil {
					from = n
				}
				if n, err := strconv.Atoi(parts[1]); err == nil {
					to = n
				}
			}
			if from < 1 {
				from = 1
			}
			if to > len(lines) {
				to = len(lines)
			}
			if from > to {
				apierr.Write(w, apierr.BadRequest("lines window is empty"))
				return
			}
			text = strings.Join(lines[from-1:to], "\n")
		}

		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"path": path, "content": text})
	}
}

func fileMeta(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("path")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("path is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		meta, ok := b.Index.FileMeta(path)
		if !ok {
			apierr.Write(w, apierr.NotFound("file not indexed: "+path))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{
			"path":           meta.Path,
			"size":           meta.Size,
			"language":       meta.Language,
			"mtime":          meta.ModTime.Unix(),
			"is_test":        meta.IsTest,
			"token_estimate": meta.Size / 4,
		})
	}
}

func deps(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("file")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("file is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		direction := fileindex.DepsOutgoing
		if q.Get("direction") == string(fileindex.DepsIncoming) {
			direction = fileindex.DepsIncoming
		}
		edges := b.Index.Deps(path, direction)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": path, "direction": direction, "edges": edges})
	}
}

// depsExternal reports the subset of a file's outgoing import edges that
// look like external (URL-style) module paths, the core-side half of the
// git fetch helper's interface: read only, the core never invokes it.
func depsExternal(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("file")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("file is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		edges := b.Index.Deps(path, fileindex.DepsOutgoing)
		var external []string
		for _, e := range edges {
			if looksExternal(e) {
				external = append(external, e)
			}
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": path, "external": external})
	}
}

func looksExternal(importPath string) bool {
	return strings.Contains(importPath, ".") && strings.Contains(importPath, "/") && !strings.HasPrefix(importPath, ".")
}

func structure(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		depth := intParam(q, "depth", 3)
		tree := b.Index.Structure(q.Get("focus"), depth)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"tree": tree})
	}
}

func outline(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("file")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("file is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		symbols, outlineErr := b.Index.Outline(path)
		if outlineErr != nil {
			apierr.Write(w, apierr.Unavailable("reading outline", outlineErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": path, "symbols": symbols})
	}
}

type outlineEnrichRequest struct {
	ProjectID string   `json:"project_id"`
	File      string   `json:"file"`
	Symbol    string   `json:"symbol"`
	Tags      []string `json:"tags"`
}

func outlineEnrich(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req outlineEnrichRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if req.File == "" || len(req.Tags) == 0 {
			apierr.Write(w, apierr.BadRequest("file and tags are required"))
			return
		}
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if err := b.OutlineTags().Enrich(r.Context(), req.File, req.Symbol, req.Tags); err != nil {
			apierr.Write(w, apierr.Unavailable("storing enrichment", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": req.File, "symbol": req.Symbol, "tags": req.Tags})
	}
}

func outlineTags(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		path := q.Get("file")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("file is required"))
			return
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		withCounts := q.Get("counts") == "true" || q.Get("counts") == "1"
		tags, tagsErr := b.OutlineTags().Tags(r.Context(), path, q.Get("symbol"), withCounts)
		if tagsErr != nil {
			apierr.Write(w, apierr.Unavailable("reading outline tags", tagsErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": path, "tags": tags})
	}
}

func outlinePending(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if b.Index == nil {
			apierr.Write(w, apierr.NotFound("project has no index"))
			return
		}
		candidates := map[string]time.Time{}
		for _, meta := range b.Index.ListFiles("", fileindex.ModeLexicographic, 0) {
			candidates[meta.Path] = meta.ModTime
		}
		pending, pendingErr := b.OutlineTags().Pending(r.Context(), candidates)
		if pendingErr != nil {
			apierr.Write(w, apierr.Unavailable("computing pending enrichment", pendingErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"pending": pending})
	}
}
