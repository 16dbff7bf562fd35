package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
	"github.com/predictsh/predictd/internal/intentgraph"
)

func registerIntentRoutes(r chi.Router, m *Manager) {
	r.Post("/intent", intentRecord(m))
	r.Get("/intent/tags", intentTags(m))
	r.Get("/intent/files", intentFiles(m))
	r.Get("/intent/file", intentFile(m))
	r.Get("/intent/recent", intentRecent(m))
	r.Get("/intent/stats", intentStats(m))
}

type intentRequest struct {
	SessionID  string           `json:"session_id"`
	ProjectID  string           `json:"project_id"`
	Tool       string           `json:"tool"`
	Files      []string         `json:"files"`
	Tags       []string         `json:"tags"`
	ToolUseID  string           `json:"tool_use_id,omitempty"`
	FileSizes  map[string]int64 `json:"file_sizes,omitempty"`
	OutputSize int64            `json:"output_size,omitempty"`
	Summary    string           `json:"summary,omitempty"`
}

func intentRecord(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req intentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if req.Tool == "" {
			apierr.Write(w, apierr.BadRequest("tool is required"))
			return
		}

		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}

		rec, err := b.IntentGraph().Record(r.Context(), req.Tool, req.Files, req.Tags, req.SessionID, req.ToolUseID, req.FileSizes, req.OutputSize)
		if err != nil {
			apierr.Write(w, apierr.Unavailable("recording intent", err))
			return
		}
		apierr.WriteTimed(w, http.StatusCreated, start, withSummary{Record: rec, Summary: req.Summary})
	}
}

// withSummary surfaces the optional free-text summary verbatim alongside
// the stored Record, without the core parsing or acting on it.
type withSummary struct {
	intentgraph.Record
	Summary string `json:"summary,omitempty"`
}

func intentTags(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		counts, err := b.IntentGraph().TagCounts(r.Context())
		if err != nil {
			apierr.Write(w, apierr.Unavailable("listing tags", err))
			return
		}
		type tagCount struct {
			Tag   string `json:"tag"`
			Count int    `json:"count"`
		}
		tags := make([]tagCount, 0, len(counts))
		for tag, count := range counts {
			tags = append(tags, tagCount{Tag: tag, Count: count})
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{
			"tags":       tags,
			"project_id": b.project(),
		})
	}
}

func intentFiles(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tag := r.URL.Query().Get("tag")
		if tag == "" {
			apierr.Write(w, apierr.BadRequest("tag is required"))
			return
		}
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		files, err := b.IntentGraph().FilesForTag(r.Context(), tag)
		if err != nil {
			apierr.Write(w, apierr.Unavailable("listing files for tag", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"tag": tag, "files": files})
	}
}

func intentFile(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Query().Get("path")
		if path == "" {
			apierr.Write(w, apierr.BadRequest("path is required"))
			return
		}
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		tags, err := b.IntentGraph().TagsForFile(r.Context(), path)
		if err != nil {
			apierr.Write(w, apierr.Unavailable("listing tags for file", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"path": path, "tags": tags})
	}
}

func intentRecent(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		limit := 20
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		var since time.Time
		if v := q.Get("since"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				since = time.Unix(n, 0)
			}
		}

		b, err := m.Resolve(r.Context(), q.Get("project_id"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		graph := b.IntentGraph()
		records, err := graph.Recent(r.Context(), since, limit)
		if err != nil {
			apierr.Write(w, apierr.Unavailable("listing recent intent records", err))
			return
		}
		stats, err := graph.Stats(r.Context())
		if err != nil {
			apierr.Write(w, apierr.Unavailable("computing intent stats", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"records": records, "stats": stats})
	}
}

func intentStats(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		stats, err := b.IntentGraph().Stats(r.Context())
		if err != nil {
			apierr.Write(w, apierr.Unavailable("computing intent stats", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, stats)
	}
}
