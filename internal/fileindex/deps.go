package fileindex

// DepsDirection selects which edge direction Deps reports.
type DepsDirection string

const (
	DepsOutgoing DepsDirection = "outgoing"
	DepsIncoming DepsDirection = "incoming"
)

// Deps returns the import graph edges for relPath in the requested
// direction: outgoing is the file's own raw import targets, incoming is
// every indexed file whose import was resolved back to relPath.
func (idx *Index) Deps(relPath string, direction DepsDirection) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var edges []string
	if direction == DepsIncoming {
		edges = idx.importsIn[relPath]
	} else {
		edges = idx.importsOut[relPath]
	}

	out := make([]string, len(edges))
	copy(out, edges)
	return out
}
