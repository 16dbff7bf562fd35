package fileindex

import (
	"regexp"
	"strings"
)

// identifierPattern is the tokenization rule: identifiers matching
// `[a-zA-Z_][a-zA-Z0-9_]*` of length >= 2.
var identifierPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

// tokenPos is one raw token occurrence before it's turned into a Location:
// a 1-indexed line/column pair within the file being tokenized.
type tokenPos struct {
	Line   int
	Column int
}

// importPatterns extracts import targets per-language via simple regex,
// covering three families: TS/JS import-from/require, Python
// from/import, Rust use/mod.
var (
	reJSImportFrom = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w{}*,\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	reJSRequire    = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	rePyFrom       = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\b`)
	rePyImport     = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	reRustUse      = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([\w:]+)`)
	reRustMod      = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?mod\s+(\w+)`)
)

// extractImports returns the raw import target strings found in content,
// using the regex family appropriate to language.
func extractImports(language, content string) []string {
	var out []string
	add := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
				out = append(out, m[1])
			}
		}
	}
	switch language {
	case "TypeScript", "JavaScript":
		add(reJSImportFrom)
		add(reJSRequire)
	case "Python":
		add(rePyFrom)
		add(rePyImport)
	case "Rust":
		add(reRustUse)
		add(reRustMod)
	}
	return out
}
