package predict

import (
	"path/filepath"
	"strings"

	"github.com/predictsh/predictd/internal/fileindex"
)

const (
	maxLineLength  = 200
	fallbackHeader = "(no matching symbol; showing file head)"
)

// extractSnippet attempts a symbol-matched extraction first, falling
// back to a truncated file head. Binary-like extensions are skipped
// entirely (empty snippet, empty symbol name).
func (e *Engine) extractSnippet(relPath string, keywords []string, lineBudget int) (string, string) {
	if binaryExtensions[strings.ToLower(filepath.Ext(relPath))] {
		return "", ""
	}

	content, err := e.index.ReadFile(relPath)
	if err != nil || len(content) == 0 {
		return "", ""
	}
	lines := strings.Split(string(content), "\n")

	if symbols, err := e.index.Outline(relPath); err == nil && len(symbols) > 0 {
		if sym, ok := bestSymbolMatch(symbols, keywords); ok {
			return symbolSnippet(lines, sym, lineBudget), sym.Name
		}
	}

	return headSnippet(lines, lineBudget), ""
}

// bestSymbolMatch ranks symbols against keywords: exact name match beats
// substring beats reverse-substring (keyword contains the symbol name);
// ties break toward functions/classes/methods over other kinds.
func bestSymbolMatch(symbols []fileindex.Symbol, keywords []string) (fileindex.Symbol, bool) {
	if len(keywords) == 0 {
		return fileindex.Symbol{}, false
	}

	type scored struct {
		sym   fileindex.Symbol
		score int
	}
	best := scored{score: 0}

	for _, sym := range symbols {
		name := strings.ToLower(sym.Name)
		for _, kw := range keywords {
			score := 0
			switch {
			case name == kw:
				score = 3
			case strings.Contains(name, kw):
				score = 2
			case strings.Contains(kw, name):
				score = 1
			default:
				continue
			}
			if score > best.score || (score == best.score && score > 0 && isPreferredKind(sym.Kind) && !isPreferredKind(best.sym.Kind)) {
				best = scored{sym: sym, score: score}
			}
		}
	}

	if best.score == 0 {
		return fileindex.Symbol{}, false
	}
	return best.sym, true
}

func isPreferredKind(kind string) bool {
	switch kind {
	case "function", "method", "class":
		return true
	default:
		return false
	}
}

func symbolSnippet(lines []string, sym fileindex.Symbol, lineBudget int) string {
	start := sym.StartLine - 1
	if start < 0 {
		start = 0
	}
	end := sym.EndLine
	if end > len(lines) {
		end = len(lines)
	}
	if end-start > lineBudget {
		end = start + lineBudget
	}
	if start >= end || start >= len(lines) {
		return ""
	}

	header := "// " + sym.Kind + " " + sym.Name + "\n"
	return header + truncateLines(lines[start:end])
}

func headSnippet(lines []string, lineBudget int) string {
	if len(lines) == 0 {
		return ""
	}
	end := lineBudget
	if end > len(lines) {
		end = len(lines)
	}
	return fallbackHeader + "\n" + truncateLines(lines[:end])
}

func truncateLines(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) > maxLineLength {
			l = l[:maxLineLength] + "…"
		}
		out[i] = l
	}
	return strings.Join(out, "\n")
}
