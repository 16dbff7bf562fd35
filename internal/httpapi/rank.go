package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
)

func registerRankRoutes(r chi.Router, m *Manager) {
	r.Get("/rank", rank(m))
	r.Post("/rank/record", rankRecord(m))
}

func rank(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		var tags []string
		if raw := q.Get("tag"); raw != "" {
			tags = strings.Split(raw, ",")
		}
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		limit := intParam(q, "limit", 20)
		ranked, rankErr := b.Scorer().RankedFiles(r.Context(), tags, limit)
		if rankErr != nil {
			apierr.Write(w, apierr.Unavailable("ranking files", rankErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"tags": tags, "files": ranked})
	}
}

type rankRecordRequest struct {
	File      string   `json:"file"`
	Tags      []string `json:"tags"`
	ProjectID string   `json:"project_id,omitempty"`
}

func rankRecord(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req rankRecordRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if req.File == "" {
			apierr.Write(w, apierr.BadRequest("file is required"))
			return
		}
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if err := b.Scorer().RecordAccess(r.Context(), req.File, req.Tags, time.Now()); err != nil {
			apierr.Write(w, apierr.Unavailable("recording access", err))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"file": req.File, "tags": req.Tags})
	}
}
