package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/predictsh/predictd/internal/apierr"
	"github.com/predictsh/predictd/internal/fileindex"
)

func registerStatusRoutes(r chi.Router, m *Manager) {
	r.Get("/status", serveStatus(m))
}

// componentStatus is one subsystem's liveness, broken out per component
// since predictd has several moving parts (KV store, Codebase Index,
// Evaluator) that can degrade independently, and a degraded-mode caller
// needs to know which one, not just whether the process is up.
type componentStatus struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Indexed int    `json:"files_indexed,omitempty"`
}

func serveStatus(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		projectID := r.URL.Query().Get("project")

		components := []componentStatus{checkKV(ctx, m)}

		b, err := m.Resolve(ctx, projectID)
		if err != nil {
			components = append(components, componentStatus{Name: "index", OK: false, Detail: err.Error()})
			components = append(components, componentStatus{Name: "evaluator", OK: false, Detail: "project unresolved"})
		} else {
			components = append(components, checkIndex(b))
			components = append(components, checkEvaluator(ctx, b))
		}

		ok := true
		for _, c := range components {
			if !c.OK {
				ok = false
				break
			}
		}
		apierr.WriteTimed(w, http.StatusOK, start, map[string]any{"ok": ok, "components": components})
	}
}

// checkKV probes the store with a cheap bounded Keys lookup; any error
// (SQLite file missing, connection dropped) surfaces as a component
// failure rather than bubbling up as a 500 from whichever endpoint hit
// it first.
func checkKV(ctx context.Context, m *Manager) componentStatus {
	if _, err := m.store.Keys(ctx, "status-probe"); err != nil {
		return componentStatus{Name: "kv", OK: false, Detail: err.Error()}
	}
	return componentStatus{Name: "kv", OK: true}
}

// checkIndex reports whether this project's Codebase Index has completed
// at least one scan. A nil Index (unregistered/global project bucket) is
// reported rather than treated as an error.
func checkIndex(b *Bundle) componentStatus {
	if b.Index == nil {
		return componentStatus{Name: "index", OK: false, Detail: "no project registered"}
	}
	files := b.Index.ListFiles("", fileindex.ModeLexicographic, 0)
	return componentStatus{Name: "index", OK: true, Indexed: len(files)}
}

// checkEvaluator exercises the Evaluator's read path (RollingHitAt5 over a
// 1-minute window) so a store that answers Keys but chokes on sorted-set
// reads is still caught.
func checkEvaluator(ctx context.Context, b *Bundle) componentStatus {
	if _, err := b.Evaluator().RollingHitAt5(ctx, time.Minute); err != nil {
		return componentStatus{Name: "evaluator", OK: false, Detail: err.Error()}
	}
	return componentStatus{Name: "evaluator", OK: true}
}
