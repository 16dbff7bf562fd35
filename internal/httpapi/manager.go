package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/predictsh/predictd/internal/apierr"
	"github.com/predictsh/predictd/internal/config"
	"github.com/predictsh/predictd/internal/evaluator"
	"github.com/predictsh/predictd/internal/fileindex"
	"github.com/predictsh/predictd/internal/intentgraph"
	"github.com/predictsh/predictd/internal/kv"
	"github.com/predictsh/predictd/internal/logging"
	"github.com/predictsh/predictd/internal/outlinetags"
	"github.com/predictsh/predictd/internal/predict"
	"github.com/predictsh/predictd/internal/registry"
	"github.com/predictsh/predictd/internal/scorer"
	"github.com/predictsh/predictd/internal/transition"
	"github.com/predictsh/predictd/internal/tuner"
)

// Manager resolves an HTTP request's project id into the objects that
// answer it. Most subsystems (Scorer, Transition Model, Intent Graph,
// Evaluator, outline tags, the Prediction Engine) are thin kv.Store
// wrappers carrying no private state beyond a project-id string, so they
// are built fresh per request. The Codebase Index and its filesystem
// watcher hold real in-memory state (the inverted index, pending watch
// debounce timers) and must survive across requests, as does the Weight
// Tuner's Hits/Misses bandit state — those three are cached per project
// for the Manager's lifetime.
type Manager struct {
	cfg      *config.Config
	store    kv.Store
	projects *registry.Store
	log      *logging.Logger

	mu       sync.Mutex
	indexes  map[string]*fileindex.Index
	watchers map[string]*fileindex.Watcher
	tuners   map[string]*tuner.Tuner

	events *eventHub
}

// NewManager creates a Manager. store backs every per-project subsystem;
// projects resolves project ids to registered roots.
func NewManager(cfg *config.Config, store kv.Store, projects *registry.Store, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		projects: projects,
		log:      log.With("manager"),
		indexes:  make(map[string]*fileindex.Index),
		watchers: make(map[string]*fileindex.Watcher),
		tuners:   make(map[string]*tuner.Tuner),
		events:   newEventHub(),
	}
}

// Bundle is every per-project dependency one request might need. Fields
// beyond Project and Index are built lazily by their accessor methods
// rather than eagerly on Resolve, since most requests only touch one or
// two of them.
type Bundle struct {
	m       *Manager
	Project *registry.Project
	Index   *fileindex.Index
	Tuner   *tuner.Tuner
}

// Resolve looks up project (falling back to the "global" bucket when
// empty) and returns its Bundle, constructing and caching the stateful
// objects on first access.
func (m *Manager) Resolve(ctx context.Context, projectID string) (*Bundle, error) {
	var project *registry.Project
	if projectID != "" {
		p, err := m.projects.Get(ctx, projectID)
		if err != nil {
			return nil, apierr.Unavailable("looking up project", err)
		}
		if p == nil {
			return nil, apierr.NotFound("unknown project " + projectID)
		}
		project = p
	}

	idx, tu := m.resolveStateful(projectID, project)
	return &Bundle{m: m, Project: project, Index: idx, Tuner: tu}, nil
}

func (m *Manager) resolveStateful(projectID string, project *registry.Project) (*fileindex.Index, *tuner.Tuner) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indexes[projectID]
	if !ok && project != nil {
		idx = fileindex.New(project.RootPath, fileindex.Config{
			Include: m.cfg.Include,
			Exclude: m.cfg.Exclude,
		}, m.log)
		if err := idx.Scan(); err != nil {
			m.log.Warnf("initial scan of project %s: %v", project.ID, err)
		}
		m.indexes[projectID] = idx

		if m.cfg.WatchEnabled {
			if w, err := fileindex.NewWatcher(idx, 300*time.Millisecond); err != nil {
				m.log.Warnf("starting watcher for project %s: %v", project.ID, err)
			} else if err := w.Start(context.Background()); err != nil {
				m.log.Warnf("starting watcher for project %s: %v", project.ID, err)
			} else {
				m.watchers[projectID] = w
			}
		}
	}

	tu, ok := m.tuners[projectID]
	if !ok {
		tu = tuner.New()
		m.tuners[projectID] = tu
	}

	return idx, tu
}

func (b *Bundle) project() string {
	if b.Project == nil {
		return ""
	}
	return b.Project.ID
}

// Scorer builds a Scorer namespaced to this bundle's project.
func (b *Bundle) Scorer() *scorer.Scorer {
	return scorer.New(b.m.store, b.project(), b.m.cfg.RecencyHalfLife())
}

// Transition builds a Transition Model namespaced to this bundle's project.
func (b *Bundle) Transition() *transition.Model {
	return transition.New(b.m.store, b.project())
}

// IntentGraph builds an Intent Graph namespaced to this bundle's project.
func (b *Bundle) IntentGraph() *intentgraph.Graph {
	return intentgraph.New(b.m.store, b.project(), b.m.cfg.SavingsSecondsPerToken)
}

// Evaluator builds a Rolling Evaluator namespaced to this bundle's project.
func (b *Bundle) Evaluator() *evaluator.Evaluator {
	return evaluator.New(b.m.store, b.project(), b.m.cfg.EvaluationWindow())
}

// OutlineTags builds an outline-tag store namespaced to this bundle's project.
func (b *Bundle) OutlineTags() *outlinetags.Store {
	return outlinetags.New(b.m.store, b.project())
}

// Predict builds a Prediction Engine wired to this bundle's Scorer,
// Transition Model, Index, and Evaluator. The production path draws via
// Select (not Best) so the arm threaded onto the prediction batch carries
// real exploration; the arm index is recorded on the batch by the Engine
// itself so a later Evaluator outcome can be fed back into that same arm.
func (b *Bundle) Predict() *predict.Engine {
	sc := b.Scorer()
	armIdx, weights := b.Tuner.Select()
	sc.SetWeights(weights)
	eng := predict.New(sc, b.Transition(), b.Index, b.Evaluator(), b.m.cfg.ContextCacheTTL())
	eng.SetArm(armIdx)
	return eng
}
