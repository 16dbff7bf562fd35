package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
	"github.com/predictsh/predictd/internal/predict"
)

func registerPredictRoutes(r chi.Router, m *Manager) {
	r.Get("/predict", servePredict(m))
	r.Post("/predict", servePredict(m))
	r.Post("/context", serveContext(m))
	r.Post("/predict/log", predictLog(m))
	r.Post("/predict/check", predictCheck(m))
	r.Get("/predict/stats", predictStats(m))
	r.Post("/predict/finalize", predictFinalize(m))
}

type predictRequest struct {
	ProjectID       string   `json:"project_id"`
	Session         string   `json:"session"`
	Keywords        []string `json:"keywords"`
	Tags            []string `json:"tags"`
	TriggerFile     string   `json:"trigger_file"`
	Limit           int      `json:"limit"`
	SnippetLines    int      `json:"snippet_lines"`
	IncludeSnippets *bool    `json:"include_snippets"`
}

func (req predictRequest) params() predict.Params {
	includeSnippets := true
	if req.IncludeSnippets != nil {
		includeSnippets = *req.IncludeSnippets
	}
	return predict.Params{
		Keywords:        req.Keywords,
		Tags:            req.Tags,
		TriggerFile:     req.TriggerFile,
		Session:         req.Session,
		Limit:           req.Limit,
		SnippetLines:    req.SnippetLines,
		IncludeSnippets: includeSnippets,
	}
}

func predictRequestFromQuery(r *http.Request) predictRequest {
	q := r.URL.Query()
	req := predictRequest{
		ProjectID:    q.Get("project"),
		Session:      q.Get("session"),
		TriggerFile:  q.Get("trigger_file"),
		Limit:        intParam(q, "limit", 0),
		SnippetLines: intParam(q, "snippet_lines", 0),
	}
	if v := q.Get("keywords"); v != "" {
		req.Keywords = strings.Split(v, ",")
	}
	if v := q.Get("tags"); v != "" {
		req.Tags = strings.Split(v, ",")
	}
	if q.Get("include_snippets") == "false" {
		no := false
		req.IncludeSnippets = &no
	}
	return req
}

func servePredict(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req predictRequest
		if r.Method == http.MethodPost {
			if err := decodeJSON(r, &req); err != nil {
				apierr.Write(w, apierr.BadRequest("invalid request body"))
				return
			}
		} else {
			req = predictRequestFromQuery(r)
		}

		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		result, predictErr := b.Predict().Predict(r.Context(), req.params())
		if predictErr != nil {
			apierr.Write(w, apierr.Unavailable("predicting", predictErr))
			return
		}
		publishPredictEvent(m, req.ProjectID, result)
		apierr.WriteTimed(w, http.StatusOK, start, result)
	}
}

type contextRequest struct {
	ProjectID   string `json:"project_id"`
	IntentProse string `json:"intent_prose"`
	predictRequest
}

func serveContext(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req contextRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if req.IntentProse == "" {
			apierr.Write(w, apierr.BadRequest("intent_prose is required"))
			return
		}

		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		result, ctxErr := b.Predict().Context(r.Context(), req.IntentProse, req.params())
		if ctxErr != nil {
			apierr.Write(w, apierr.Unavailable("resolving context", ctxErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, result)
	}
}

type predictLogRequest struct {
	ProjectID   string   `json:"project_id"`
	Session     string   `json:"session"`
	Files       []string `json:"files"`
	Tags        []string `json:"tags"`
	TriggerFile string   `json:"trigger_file"`
	Confidence  float64  `json:"confidence"`
	ArmIndex    int      `json:"arm_index"`
}

func predictLog(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req predictLogRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if len(req.Files) == 0 {
			apierr.Write(w, apierr.BadRequest("files is required"))
			return
		}
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		batch, logErr := b.Evaluator().LogPrediction(r.Context(), req.Session, req.Files, req.Tags, req.TriggerFile, req.Confidence, req.ArmIndex)
		if logErr != nil {
			apierr.Write(w, apierr.Unavailable("logging prediction", logErr))
			return
		}
		apierr.WriteTimed(w, http.StatusCreated, start, batch)
	}
}

type predictCheckRequest struct {
	ProjectID string `json:"project_id"`
	Session   string `json:"session"`
	FileRead  string `json:"file_read"`
}

func predictCheck(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req predictCheckRequest
		if err := decodeJSON(r, &req); err != nil {
			apierr.Write(w, apierr.BadRequest("invalid request body"))
			return
		}
		if req.FileRead == "" {
			apierr.Write(w, apierr.BadRequest("file_read is required"))
			return
		}
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		batch, hit, checkErr := b.Evaluator().CheckHitBatch(r.Context(), req.Session, req.FileRead)
		if checkErr != nil {
			apierr.Write(w, apierr.Unavailable("checking hit", checkErr))
			return
		}
		if hit {
			b.Tuner.RecordFeedback(batch.ArmIndex, true)
			publishEvaluatorEvent(m, eventHit, req.ProjectID, req.Session, req.FileRead)
		} else {
			publishEvaluatorEvent(m, eventMiss, req.ProjectID, req.Session, req.FileRead)
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"hit": hit})
	}
}

func predictStats(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		b, err := m.Resolve(r.Context(), q.Get("project"))
		if err != nil {
			apierr.Write(w, err)
			return
		}
		window := m.cfg.EvaluationWindow()
		stats, statsErr := b.Evaluator().Stats(r.Context(), window)
		if statsErr != nil {
			apierr.Write(w, apierr.Unavailable("computing prediction stats", statsErr))
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, stats)
	}
}

type predictFinalizeRequest struct {
	ProjectID string `json:"project_id"`
	MaxAgeSec int    `json:"max_age_seconds"`
}

func predictFinalize(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req predictFinalizeRequest
		_ = decodeJSON(r, &req) // empty body finalizes with the default window
		b, err := m.Resolve(r.Context(), req.ProjectID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		maxAge := m.cfg.EvaluationWindow()
		if req.MaxAgeSec > 0 {
			maxAge = time.Duration(req.MaxAgeSec) * time.Second
		}
		finalized, finalizeErr := b.Evaluator().FinalizeBatches(r.Context(), maxAge)
		if finalizeErr != nil {
			apierr.Write(w, apierr.Unavailable("finalizing predictions", finalizeErr))
			return
		}
		for _, batch := range finalized {
			b.Tuner.RecordFeedback(batch.ArmIndex, false)
			publishEvaluatorEvent(m, eventMiss, req.ProjectID, batch.Session, batch.TriggerFile)
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"finalized": len(finalized)})
	}
}
