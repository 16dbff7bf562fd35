package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/predictsh/predictd/internal/config"
	"github.com/predictsh/predictd/internal/db"
	"github.com/predictsh/predictd/internal/kv"
	"github.com/predictsh/predictd/internal/registry"
)

// newTestServer builds a Server against a throwaway project directory, an
// in-memory KV store, and an in-memory registry DB: a real router driven
// with httptest, not mocked handlers.
func newTestServer(t *testing.T) (*Server, *registry.Project) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store := kv.NewMemory()
	dbase, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { dbase.Close() })

	projects := registry.NewStore(dbase)
	project, err := projects.Register(t.Context(), "testproj", dir)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.WatchEnabled = false

	manager := NewManager(cfg, store, projects, nil)
	return New(cfg, manager, nil), project
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "GET", "/healthz", nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestIntentRecordAndQuery(t *testing.T) {
	srv, project := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/intent", map[string]any{
		"project_id": project.ID,
		"session_id": "S1",
		"tool":       "Read",
		"files":      []string{"main.go"},
		"tags":       []string{"#api"},
	})
	if rec.Code != 201 {
		t.Fatalf("POST /intent status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, ok := body["ms"]; !ok {
		t.Fatalf("response missing ms field: %v", body)
	}

	rec = doJSON(t, srv, "GET", "/intent/tags?project_id="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /intent/tags status = %d body=%s", rec.Code, rec.Body.String())
	}
	tagsBody := decodeBody(t, rec)
	tags, ok := tagsBody["tags"].([]any)
	if !ok || len(tags) != 1 {
		t.Fatalf("expected one tag, got %v", tagsBody["tags"])
	}
}

func TestRankRecordAndRank(t *testing.T) {
	srv, project := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/rank/record", map[string]any{
		"project_id": project.ID,
		"file":       "main.go",
		"tags":       []string{"#api"},
	})
	if rec.Code != 200 {
		t.Fatalf("POST /rank/record status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, "GET", "/rank?tag=api&project="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /rank status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	files, ok := body["files"].([]any)
	if !ok || len(files) != 1 {
		t.Fatalf("expected one ranked file, got %v", body["files"])
	}
}

func TestPredictLogCheckAndTunerFeedback(t *testing.T) {
	srv, project := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/predict/log", map[string]any{
		"project_id":   project.ID,
		"session":      "S1",
		"files":        []string{"a.go", "b.go"},
		"trigger_file": "trigger.go",
		"confidence":   0.9,
		"arm_index":    3,
	})
	if rec.Code != 201 {
		t.Fatalf("POST /predict/log status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, "POST", "/predict/check", map[string]any{
		"project_id": project.ID,
		"session":    "S1",
		"file_read":  "a.go",
	})
	if rec.Code != 200 {
		t.Fatalf("POST /predict/check status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if hit, _ := body["hit"].(bool); !hit {
		t.Fatalf("expected hit=true, got %v", body)
	}

	rec = doJSON(t, srv, "GET", "/tuner/stats?project="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /tuner/stats status = %d body=%s", rec.Code, rec.Body.String())
	}
	statsBody := decodeBody(t, rec)
	arms, ok := statsBody["arms"].([]any)
	if !ok || len(arms) != 8 {
		t.Fatalf("expected 8 arms, got %v", statsBody["arms"])
	}
	arm3 := arms[3].(map[string]any)
	if samples, _ := arm3["samples"].(float64); samples != 1 {
		t.Fatalf("expected arm 3 to have recorded one sample after /predict/check, got %v", arm3["samples"])
	}
}

func TestPredictStatsAndMetrics(t *testing.T) {
	srv, project := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/predict/stats?project="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /predict/stats status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, "GET", "/metrics?project="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /metrics status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, ok := body["rolling_hit_at_5"]; !ok {
		t.Fatalf("metrics response missing rolling_hit_at_5: %v", body)
	}
}

func TestStatusReportsComponents(t *testing.T) {
	srv, project := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/status?project="+project.ID, nil)
	if rec.Code != 200 {
		t.Fatalf("GET /status status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if ok, _ := body["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, got %v", body)
	}
	components, ok := body["components"].([]any)
	if !ok || len(components) != 3 {
		t.Fatalf("expected 3 components, got %v", body["components"])
	}
}

func TestUnknownProjectReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "GET", "/intent/tags?project_id=does-not-exist", nil)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404 body=%s", rec.Code, rec.Body.String())
	}
}
