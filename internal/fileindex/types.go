// Package fileindex implements the Codebase Index: token search, file
// listing/metadata, a rough import graph, and per-language structural
// outlines, all addressed through one inverted index of Locations keyed
// by token/symbol name. Traversal follows internal/walker's conventions;
// content hashing uses xxhash.
package fileindex

import "time"

// FileMeta is the per-file metadata record kept by the index.
type FileMeta struct {
	Path        string    // relative to project root, forward-slashed
	AbsPath     string    // absolute path on disk
	Size        int64
	Language    string
	ContentHash string
	ModTime     time.Time
	IsTest      bool
}

// LocationKind classifies what a single indexed Location represents: a
// plain identifier occurrence, an outline-tag marker, or one of the
// parsed-symbol kinds Outline reports.
type LocationKind string

const (
	LocationToken    LocationKind = "token"
	LocationTag      LocationKind = "tag"
	LocationFunction LocationKind = "function"
	LocationClass    LocationKind = "class"
	LocationMethod   LocationKind = "method"
	LocationRoute    LocationKind = "route"
	LocationTest     LocationKind = "test"
)

// Location is a single indexed occurrence: a token, tag, or parsed-symbol
// declaration at a specific file/line/column. Symbol and EndLine are set
// only for non-token kinds, naming the enclosing declaration and where it
// closes. MTime is the indexed file's mtime at the time this Location was
// produced, so a caller can check it against FileMeta.ModTime without a
// second lookup — the inverted index's own freshness invariant.
type Location struct {
	File    string
	Line    int
	Column  int
	Kind    LocationKind
	MTime   time.Time
	Symbol  string
	EndLine int
}

// SearchMode selects how Search/ListFiles order their results.
type SearchMode string

const (
	ModeRecent        SearchMode = "recent"
	ModeLexicographic SearchMode = "lexicographic"
)

// Hit is one scored search result. Kind/Column/Symbol/EndLine surface the
// matched Location's richer fields when the hit came from an outline
// symbol rather than a plain token occurrence; Symbol is empty and Kind is
// "token" for plain identifier matches.
type Hit struct {
	File          string       `json:"file"`
	Line          int          `json:"line"`
	Column        int          `json:"column,omitempty"`
	Kind          LocationKind `json:"kind"`
	Symbol        string       `json:"symbol,omitempty"`
	EndLine       int          `json:"end_line,omitempty"`
	FilenameBoost int          `json:"-"`
	MTime         int64        `json:"mtime"`
}

// FileHit is a MultiSearch result aggregated per file.
type FileHit struct {
	File       string `json:"file"`
	MatchCount int    `json:"match_count"`
	MaxMTime   int64  `json:"max_mtime"`
	Hits       []Hit  `json:"hits"`
}

// Symbol is one structural outline entry.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
}

// DirNode is one entry in a bounded directory tree (Structure).
type DirNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"is_dir"`
	Children []*DirNode `json:"children,omitempty"`
}

// ChangeKind identifies the kind of change recorded by OnEvent.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeRecord is appended on every OnEvent call, for observability.
type ChangeRecord struct {
	Kind ChangeKind
	Path string
	At   time.Time
}
