package fileindex

import (
	"regexp"
	"sort"
	"strings"
)

// filenameBoost scores how strongly query matches relPath's basename vs
// its full path: stripped-basename match > basename match > path match >
// no match.
func filenameBoost(query, relPath string) int {
	q := strings.ToLower(query)
	base := strings.ToLower(basename(relPath))
	stripped := stripSeparators(base)

	switch {
	case strings.Contains(stripped, stripSeparators(q)):
		return 1000
	case strings.Contains(base, q):
		return 500
	case strings.Contains(strings.ToLower(relPath), q):
		return 100
	default:
		return 0
	}
}

func basename(relPath string) string {
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		return relPath[i+1:]
	}
	return relPath
}

func stripSeparators(s string) string {
	return strings.NewReplacer("_", "", "-", "", ".", "", " ", "").Replace(s)
}

// Search merges original-case and lowercase hit lists for token, applies
// an optional [since, before) mtime window, scores and sorts, and
// truncates to limit.
func (idx *Index) Search(token string, mode SearchMode, limit int, since, before int64) []Hit {
	idx.mu.RLock()
	origLocs := idx.tokensOriginal[token]
	lowerLocs := idx.tokensLower[strings.ToLower(token)]
	files := idx.files
	idx.mu.RUnlock()

	// seen maps (file, line) to the index of its hit, or -1 when filtered
	// out. A token and an outline symbol on the same line collapse to one
	// hit, and the symbol's kind wins.
	seen := make(map[[2]any]int)
	var hits []Hit
	add := func(locs []Location) {
		for _, l := range locs {
			key := [2]any{l.File, l.Line}
			if i, dup := seen[key]; dup {
				if i >= 0 && hits[i].Kind == LocationToken && l.Kind != LocationToken {
					hits[i].Kind, hits[i].Symbol, hits[i].EndLine = l.Kind, l.Symbol, l.EndLine
				}
				continue
			}
			seen[key] = -1

			meta, ok := files[l.File]
			var mtime int64
			if ok {
				mtime = meta.ModTime.Unix()
			}
			if since != 0 && mtime < since {
				continue
			}
			if before != 0 && mtime >= before {
				continue
			}
			seen[key] = len(hits)
			hits = append(hits, Hit{
				File:          l.File,
				Line:          l.Line,
				Column:        l.Column,
				Kind:          l.Kind,
				Symbol:        l.Symbol,
				EndLine:       l.EndLine,
				FilenameBoost: filenameBoost(token, l.File),
				MTime:         mtime,
			})
		}
	}
	add(origLocs)
	add(lowerLocs)

	sortHits(hits, mode)

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []Hit, mode SearchMode) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].FilenameBoost != hits[j].FilenameBoost {
			return hits[i].FilenameBoost > hits[j].FilenameBoost
		}
		switch mode {
		case ModeLexicographic:
			return hits[i].File < hits[j].File
		default: // ModeRecent
			return hits[i].MTime > hits[j].MTime
		}
	})
}

// MultiSearch runs Search per term, ranks files by (match_count, max_mtime)
// descending, and keeps the top limitFiles files' hits.
func (idx *Index) MultiSearch(terms []string, mode SearchMode, limitPerTerm, limitFiles int) []FileHit {
	perFile := make(map[string]*FileHit)
	for _, term := range terms {
		hits := idx.Search(term, mode, limitPerTerm, 0, 0)
		for _, h := range hits {
			fh, ok := perFile[h.File]
			if !ok {
				fh = &FileHit{File: h.File}
				perFile[h.File] = fh
			}
			fh.MatchCount++
			if h.MTime > fh.MaxMTime {
				fh.MaxMTime = h.MTime
			}
			fh.Hits = append(fh.Hits, h)
		}
	}

	out := make([]FileHit, 0, len(perFile))
	for _, fh := range perFile {
		out = append(out, *fh)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].MaxMTime > out[j].MaxMTime
	})
	if limitFiles > 0 && len(out) > limitFiles {
		out = out[:limitFiles]
	}
	return out
}

// ListFiles returns indexed files matching an optional pattern: `*` in
// the pattern becomes a `.*` regex matched against the path; otherwise a
// plain substring match. Empty pattern matches everything.
func (idx *Index) ListFiles(pattern string, mode SearchMode, limit int) []FileMeta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var re *regexp.Regexp
	if strings.Contains(pattern, "*") {
		escaped := regexp.QuoteMeta(pattern)
		escaped = strings.ReplaceAll(escaped, `\*`, ".*")
		re = regexp.MustCompile(escaped)
	}

	var out []FileMeta
	for relPath, meta := range idx.files {
		if pattern != "" {
			if re != nil {
				if !re.MatchString(relPath) {
					continue
				}
			} else if !strings.Contains(relPath, pattern) {
				continue
			}
		}
		out = append(out, *meta)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if mode == ModeLexicographic {
			return out[i].Path < out[j].Path
		}
		return out[i].ModTime.After(out[j].ModTime)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
