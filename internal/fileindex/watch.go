package fileindex

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/predictsh/predictd/internal/walker"
)

// Watcher drives Index.OnEvent from filesystem notifications, debouncing
// bursts of events per path so a save-triggered write+chmod pair doesn't
// reindex a file twice.
type Watcher struct {
	idx     *Index
	fs      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]ChangeKind
	timer   *time.Timer

	cancel context.CancelFunc
}

// NewWatcher creates a Watcher over idx's root directory. It does not
// start watching until Start is called.
func NewWatcher(idx *Index, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		idx:      idx,
		fs:       fw,
		debounce: debounce,
		pending:  make(map[string]ChangeKind),
	}, nil
}

// Start registers watches on every directory under the index root (apart
// from excluded subtrees) and begins processing events in the
// background. Cancel ctx, or call Stop, to end it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addDirs(w.idx.root); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.loop(runCtx)
	return nil
}

// Stop halts event processing and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.fs.Close()
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && walker.MatchesExclude(rel, walker.DefaultExcludes) {
			return filepath.SkipDir
		}
		_ = w.fs.Add(path)
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)
	if statErr == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = w.fs.Add(event.Name)
		}
		return
	}

	rel, err := filepath.Rel(w.idx.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	var kind ChangeKind
	switch {
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		kind = ChangeDeleted
	case event.Op&fsnotify.Create != 0:
		kind = ChangeCreated
	case event.Op&fsnotify.Write != 0:
		kind = ChangeModified
	default:
		return
	}

	w.mu.Lock()
	w.pending[rel] = kind
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	events := w.pending
	w.pending = make(map[string]ChangeKind)
	w.mu.Unlock()

	for path, kind := range events {
		if err := w.idx.OnEvent(kind, path); err != nil {
			w.idx.log.Warnf("watch: %s %s: %v", kind, path, err)
		}
	}
}
