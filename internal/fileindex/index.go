package fileindex

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/predictsh/predictd/internal/logging"
	"github.com/predictsh/predictd/internal/walker"
)

// Config controls traversal, mirroring walker.WalkerConfig plus the
// index's own knobs.
type Config struct {
	Include     []string
	Exclude     []string
	MaxFileSize int64
}

// Index is the per-project Codebase Index. The inverted index and file
// metadata are guarded by a single readers-writer lock: readers never
// block each other, and a rescan holds the write lock only while swapping
// in already-computed results, so the index remains queryable during a
// rescan.
type Index struct {
	mu     sync.RWMutex
	root   string
	cfg    Config
	log    *logging.Logger

	files map[string]*FileMeta // relPath -> meta

	tokensOriginal map[string][]Location
	tokensLower    map[string][]Location

	importsOut map[string][]string // relPath -> raw import targets
	importsIn  map[string][]string // resolved relPath -> relPaths that import it

	changes []ChangeRecord
}

// New creates an empty Index rooted at root.
func New(root string, cfg Config, log *logging.Logger) *Index {
	if log == nil {
		log = logging.Default()
	}
	return &Index{
		root:           root,
		cfg:            cfg,
		log:            log.With("fileindex"),
		files:          make(map[string]*FileMeta),
		tokensOriginal: make(map[string][]Location),
		tokensLower:    make(map[string][]Location),
		importsOut:     make(map[string][]string),
		importsIn:      make(map[string][]string),
	}
}

// Root returns the project's root directory.
func (idx *Index) Root() string { return idx.root }

// Scan walks the whole tree and (re)builds the index from scratch.
// Individual file errors are logged and skipped; a single bad file never
// aborts the scan.
func (idx *Index) Scan() error {
	return idx.ScanProgress(nil)
}

// ScanProgress is Scan plus an optional onFile callback, invoked after
// each discovered file is processed with (done, total, relPath), so a
// caller driving a terminal progress bar can report scan progress on a
// large codebase without the core index owning any UI concerns.
func (idx *Index) ScanProgress(onFile func(done, total int, relPath string)) error {
	wcfg := walker.WalkerConfig{
		RootDir:     idx.root,
		Include:     idx.cfg.Include,
		Exclude:     idx.cfg.Exclude,
		MaxFileSize: idx.cfg.MaxFileSize,
	}
	discovered, err := walker.Walk(wcfg)
	if err != nil {
		return err
	}

	files := make(map[string]*FileMeta, len(discovered))
	tokensOriginal := make(map[string][]Location)
	tokensLower := make(map[string][]Location)
	importsOut := make(map[string][]string)

	for i, fi := range discovered {
		meta, origTok, lowTok, imports, err := idx.buildEntry(fi)
		if err != nil {
			idx.log.Warnf("scan: skipping %s: %v", fi.RelPath, err)
		} else {
			files[fi.RelPath] = meta
			mergeLocations(tokensOriginal, origTok)
			mergeLocations(tokensLower, lowTok)
			if len(imports) > 0 {
				importsOut[fi.RelPath] = imports
			}
		}
		if onFile != nil {
			onFile(i+1, len(discovered), fi.RelPath)
		}
	}

	idx.mu.Lock()
	idx.files = files
	idx.tokensOriginal = tokensOriginal
	idx.tokensLower = tokensLower
	idx.importsOut = importsOut
	idx.importsIn = buildReverseImports(files, importsOut)
	idx.mu.Unlock()

	return nil
}

// buildEntry reads and tokenizes one discovered file, then folds its
// outline symbols (functions, methods, classes, routes, tests) into the
// same Location maps token occurrences go into, so a symbol-kind lookup
// is answered by the inverted index directly rather than a separate,
// unindexed Outline call.
func (idx *Index) buildEntry(fi walker.FileInfo) (*FileMeta, map[string][]Location, map[string][]Location, []string, error) {
	info, err := os.Stat(fi.Path)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	text := toValidUTF8(content)

	tokens, err := tokenizeText(text)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	lowered := lowerTokens(tokens)

	imports := extractImports(fi.Language, text)

	mtime := info.ModTime()
	meta := &FileMeta{
		Path:        fi.RelPath,
		AbsPath:     fi.Path,
		Size:        fi.Size,
		Language:    fi.Language,
		ContentHash: fi.ContentHash,
		ModTime:     mtime,
		IsTest:      fi.IsTest,
	}

	origLocs := locate(tokens, fi.RelPath, mtime)
	lowLocs := locate(lowered, fi.RelPath, mtime)

	if fi.Outlineable {
		symbols := symbolsFromSource(fi.Language, content)
		symLocs := locateSymbols(symbols, fi.RelPath, mtime)
		mergeLocations(origLocs, symLocs)
		mergeLocations(lowLocs, lowerLocationKeys(symLocs))
	}

	return meta, origLocs, lowLocs, imports, nil
}

// ReindexOne re-indexes a single file if its content has changed since
// the last index. If the content hash is unchanged, it is a no-op.
func (idx *Index) ReindexOne(relPath string) error {
	abs := filepath.Join(idx.root, filepath.FromSlash(relPath))
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	hash := hashBytes(content)

	idx.mu.RLock()
	prev, existed := idx.files[relPath]
	unchanged := existed && prev.ContentHash == hash
	idx.mu.RUnlock()
	if unchanged {
		return nil
	}

	text := toValidUTF8(content)
	tokens, err := tokenizeText(text)
	if err != nil {
		return err
	}
	lowered := lowerTokens(tokens)
	language := walker.DetectLanguage(relPath)
	imports := extractImports(language, text)

	mtime := info.ModTime()
	meta := &FileMeta{
		Path:        relPath,
		AbsPath:     abs,
		Size:        info.Size(),
		Language:    language,
		ContentHash: hash,
		ModTime:     mtime,
		IsTest:      strings.Contains(strings.ToLower(relPath), "test"),
	}

	origLocs := locate(tokens, relPath, mtime)
	lowLocs := locate(lowered, relPath, mtime)
	if walker.SupportsOutline(language) {
		symbols := symbolsFromSource(language, content)
		symLocs := locateSymbols(symbols, relPath, mtime)
		mergeLocations(origLocs, symLocs)
		mergeLocations(lowLocs, lowerLocationKeys(symLocs))
	}

	idx.mu.Lock()
	idx.removeFileLocked(relPath)
	idx.files[relPath] = meta
	mergeLocations(idx.tokensOriginal, origLocs)
	mergeLocations(idx.tokensLower, lowLocs)
	if len(imports) > 0 {
		idx.importsOut[relPath] = imports
	}
	idx.importsIn = buildReverseImports(idx.files, idx.importsOut)
	idx.mu.Unlock()

	return nil
}

// OnEvent handles a watcher notification: created/modified files are
// reindexed and a change record appended; deleted files have their
// locations and metadata purged.
func (idx *Index) OnEvent(kind ChangeKind, relPath string) error {
	now := time.Now()
	switch kind {
	case ChangeCreated, ChangeModified:
		if err := idx.ReindexOne(relPath); err != nil {
			return err
		}
	case ChangeDeleted:
		idx.mu.Lock()
		idx.removeFileLocked(relPath)
		idx.importsIn = buildReverseImports(idx.files, idx.importsOut)
		idx.mu.Unlock()
	}

	idx.mu.Lock()
	idx.changes = append(idx.changes, ChangeRecord{Kind: kind, Path: relPath, At: now})
	idx.mu.Unlock()
	return nil
}

// removeFileLocked purges all token locations and metadata for relPath.
// Caller must hold idx.mu for writing.
func (idx *Index) removeFileLocked(relPath string) {
	delete(idx.files, relPath)
	delete(idx.importsOut, relPath)
	for token, locs := range idx.tokensOriginal {
		idx.tokensOriginal[token] = filterLocations(locs, relPath)
	}
	for token, locs := range idx.tokensLower {
		idx.tokensLower[token] = filterLocations(locs, relPath)
	}
}

// Changes returns a snapshot of recorded change events.
func (idx *Index) Changes() []ChangeRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]ChangeRecord, len(idx.changes))
	copy(out, idx.changes)
	return out
}

// FileMeta returns metadata for a file, if indexed.
func (idx *Index) FileMeta(relPath string) (FileMeta, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.files[relPath]
	if !ok {
		return FileMeta{}, false
	}
	return *m, true
}

// ReadFile returns a file's raw content from disk, joined against the
// index root the same way Outline resolves its source.
func (idx *Index) ReadFile(relPath string) ([]byte, error) {
	idx.mu.RLock()
	root := idx.root
	idx.mu.RUnlock()
	return os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
}

func mergeLocations(dst map[string][]Location, src map[string][]Location) {
	for token, locs := range src {
		dst[token] = append(dst[token], locs...)
	}
}

func locate(tokens map[string][]tokenPos, relPath string, mtime time.Time) map[string][]Location {
	out := make(map[string][]Location, len(tokens))
	for token, positions := range tokens {
		locs := make([]Location, len(positions))
		for i, p := range positions {
			locs[i] = Location{File: relPath, Line: p.Line, Column: p.Column, Kind: LocationToken, MTime: mtime}
		}
		out[token] = locs
	}
	return out
}

// lowerLocationKeys rekeys a Location map by the lowercased form of each
// key, for folding case-sensitive symbol names into the same
// case-insensitive lookup plain tokens already get.
func lowerLocationKeys(src map[string][]Location) map[string][]Location {
	out := make(map[string][]Location, len(src))
	for key, locs := range src {
		lower := strings.ToLower(key)
		out[lower] = append(out[lower], locs...)
	}
	return out
}

func filterLocations(locs []Location, relPath string) []Location {
	if len(locs) == 0 {
		return locs
	}
	out := locs[:0:0]
	for _, l := range locs {
		if l.File != relPath {
			out = append(out, l)
		}
	}
	return out
}

func lowerTokens(tokens map[string][]tokenPos) map[string][]tokenPos {
	out := make(map[string][]tokenPos, len(tokens))
	for token, positions := range tokens {
		lower := strings.ToLower(token)
		out[lower] = append(out[lower], positions...)
	}
	return out
}

func tokenizeText(text string) (map[string][]tokenPos, error) {
	tokens := make(map[string][]tokenPos)
	line := 0
	for _, rawLine := range strings.Split(text, "\n") {
		line++
		for _, span := range identifierPattern.FindAllStringIndex(rawLine, -1) {
			match := rawLine[span[0]:span[1]]
			if len(match) < 2 {
				continue
			}
			tokens[match] = append(tokens[match], tokenPos{Line: line, Column: span[0] + 1})
		}
	}
	return tokens, nil
}

func toValidUTF8(content []byte) string {
	return strings.ToValidUTF8(string(content), "�")
}

// buildReverseImports resolves each file's raw import strings against
// known indexed files by best-effort suffix matching, then inverts the
// resulting edge list so /deps can answer both directions.
func buildReverseImports(files map[string]*FileMeta, out map[string][]string) map[string][]string {
	in := make(map[string][]string)
	candidates := make([]string, 0, len(files))
	for relPath := range files {
		candidates = append(candidates, relPath)
	}

	for from, targets := range out {
		for _, target := range targets {
			resolved := resolveImport(target, candidates)
			if resolved == "" || resolved == from {
				continue
			}
			in[resolved] = append(in[resolved], from)
		}
	}
	return in
}

// resolveImport maps a raw import string (a module path, relative import,
// or package alias) to one of the known candidate files by normalizing
// separators and checking suffix containment. Returns "" if no candidate
// plausibly matches.
func resolveImport(target string, candidates []string) string {
	normalized := target
	for strings.HasPrefix(normalized, "./") || strings.HasPrefix(normalized, "../") {
		normalized = strings.TrimPrefix(normalized, "../")
		normalized = strings.TrimPrefix(normalized, "./")
	}
	normalized = strings.NewReplacer(".", "/", "::", "/").Replace(normalized)
	normalized = strings.TrimPrefix(normalized, "/")
	normalized = path.Clean(normalized)

	var best string
	for _, c := range candidates {
		withoutExt := strings.TrimSuffix(c, filepath.Ext(c))
		if strings.HasSuffix(withoutExt, normalized) || strings.HasSuffix(withoutExt, "/"+normalized) {
			if len(c) > len(best) {
				best = c
			}
		}
	}
	return best
}
