package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
)

func registerTunerRoutes(r chi.Router, m *Manager) {
	r.Get("/tuner/weights", tunerWeights(m))
	r.Get("/tuner/best", tunerBest(m))
	r.Get("/tuner/stats", tunerStats(m))
	r.Post("/tuner/feedback", tunerFeedback(m))
	r.Post("/tuner/reset", tunerReset(m))
}

// tunerWeights reports the closed arm set itself — name and weight triple
// per arm — distinct from /tuner/best (which one is currently favored) and
// /tuner/stats (posterior shape per arm).
func tunerWeights(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"arms": b.Tuner.Arms()})
	}
}

func tunerBest(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		armIdx, weights := b.Tuner.Best()
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"arm_index": armIdx, "weights": weights})
	}
}

func tunerStats(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		b, err := m.Resolve(r.Context(), r.URL.Query().Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"arms": b.Tuner.Stats()})
	}
}

type tunerFeedbackRequest struct {
	ProjectID string `json:"project_id"`
	ArmIndex  int    `json:"arm_index"`
	Hit       bool   `json:"hit"`
}

// tunerFeedback lets an external caller (or a replayed log) report an
// outcome directly, independent of the Evaluator's own CheckHit/Finalize
// feedback path wired in predict_routes.go.
func tunerFeedback(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req tunerFeedbackRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		b.Tuner.RecordFeedback(req.ArmIndex, req.Hit)
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"arm_index": req.ArmIndex, "hit": req.Hit})
	}
}

type tunerResetRequest struct {
	ProjectID string `json:"project_id"`
}

func tunerReset(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req tunerResetRequest
		_ = decodeJSON(r, &req)
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		b.Tuner.Reset()
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"reset": true})
	}
}
