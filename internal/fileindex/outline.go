package fileindex

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// parserPool hands out a *sitter.Parser per language lazily, grounded on
// kraklabs-cie's ingestion parsers (one *sitter.Parser per language,
// reused across files rather than rebuilt per call).
type parserPool struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

var pool = &parserPool{parsers: make(map[string]*sitter.Parser)}

func (p *parserPool) get(language string) *sitter.Parser {
	p.mu.Lock()
	defer p.mu.Unlock()

	if parser, ok := p.parsers[language]; ok {
		return parser
	}

	var lang *sitter.Language
	switch language {
	case "Go":
		lang = golang.GetLanguage()
	case "TypeScript":
		lang = typescript.GetLanguage()
	case "JavaScript":
		lang = javascript.GetLanguage()
	case "Python":
		lang = python.GetLanguage()
	case "Rust":
		lang = rust.GetLanguage()
	default:
		return nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	p.parsers[language] = parser
	return parser
}

// Outline returns the flat structural symbol list for relPath: every
// named declaration tree-sitter reports, plus synthetic symbols for a
// fixed set of framework call-site patterns (HTTP route registration,
// test-harness blocks, event listener registration). Files in a
// language with no wired grammar come back empty, not an error.
func (idx *Index) Outline(relPath string) ([]Symbol, error) {
	idx.mu.RLock()
	meta, ok := idx.files[relPath]
	idx.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	content, err := os.ReadFile(filepath.Join(idx.root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}

	return symbolsFromSource(meta.Language, content), nil
}

// symbolsFromSource runs the parser pool and the synthetic pattern set
// over content directly, independent of anything already indexed, so
// buildEntry/ReindexOne can fold the same symbols into the inverted index
// as they're discovered rather than only on a later, separate Outline
// call. Files in a language with no wired grammar get no symbols at all,
// same as Outline.
func symbolsFromSource(language string, content []byte) []Symbol {
	var symbols []Symbol
	if parser := pool.get(language); parser != nil {
		if tree, err := parser.ParseCtx(context.Background(), nil, content); err == nil {
			walkOutline(tree.RootNode(), content, language, &symbols)
			tree.Close()
		}
		symbols = append(symbols, syntheticSymbols(string(content), language)...)
	}
	return symbols
}

// symbolKindToLocationKind folds Outline's open-ended Kind strings (one
// per tree-sitter node type or synthetic pattern, e.g. "struct", "impl",
// "interface", "listener") onto the fixed LocationKind set the inverted
// index uses. Declaration-shaped kinds collapse to LocationClass; a
// listener registration isn't a declaration at all, so it collapses to
// LocationTag instead of inventing an eighth kind.
func symbolKindToLocationKind(kind string) LocationKind {
	switch kind {
	case "function":
		return LocationFunction
	case "method":
		return LocationMethod
	case "class", "type", "struct", "interface", "trait", "impl":
		return LocationClass
	case "route":
		return LocationRoute
	case "test":
		return LocationTest
	default:
		return LocationTag
	}
}

// locateSymbols turns relPath's outline symbols into index Locations,
// keyed by the symbol's full name and, for dotted names like a Go
// method's "Receiver.Method", also by the trailing segment alone, so a
// plain-identifier search still finds the declaration.
func locateSymbols(symbols []Symbol, relPath string, mtime time.Time) map[string][]Location {
	out := make(map[string][]Location, len(symbols))
	for _, sym := range symbols {
		loc := Location{
			File:    relPath,
			Line:    sym.StartLine,
			Column:  0,
			Kind:    symbolKindToLocationKind(sym.Kind),
			MTime:   mtime,
			Symbol:  sym.Name,
			EndLine: sym.EndLine,
		}
		out[sym.Name] = append(out[sym.Name], loc)
		if i := strings.LastIndexByte(sym.Name, '.'); i >= 0 {
			trailing := sym.Name[i+1:]
			out[trailing] = append(out[trailing], loc)
		}
	}
	return out
}

// declarationNodeTypes maps a language to the tree-sitter node types that
// represent a top-level structural declaration worth surfacing, and the
// Symbol.Kind each maps to.
var declarationNodeTypes = map[string]map[string]string{
	"Go": {
		"function_declaration": "function",
		"method_declaration":   "method",
		"type_declaration":     "type",
	},
	"TypeScript": {
		"function_declaration": "function",
		"method_definition":    "method",
		"class_declaration":    "class",
		"interface_declaration": "interface",
	},
	"JavaScript": {
		"function_declaration": "function",
		"method_definition":    "method",
		"class_declaration":    "class",
	},
	"Python": {
		"function_definition": "function",
		"class_definition":    "class",
	},
	"Rust": {
		"function_item": "function",
		"struct_item":   "struct",
		"impl_item":     "impl",
		"trait_item":    "trait",
	},
}

func walkOutline(node *sitter.Node, content []byte, language string, out *[]Symbol) {
	if node == nil {
		return
	}

	kinds := declarationNodeTypes[language]
	if kind, ok := kinds[node.Type()]; ok {
		var sym Symbol
		var found bool
		if language == "Go" && node.Type() == "method_declaration" {
			sym, found = goMethodSymbol(node, content)
		} else {
			sym, found = symbolFromNode(node, content, kind)
		}
		if found {
			*out = append(*out, sym)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkOutline(node.Child(i), content, language, out)
	}
}

func symbolFromNode(node *sitter.Node, content []byte, kind string) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		// Go methods and some struct/impl forms carry the name on a child
		// rather than the "name" field; fall back to the first identifier.
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if strings.HasSuffix(child.Type(), "identifier") {
				nameNode = child
				break
			}
		}
	}
	if nameNode == nil {
		return Symbol{}, false
	}

	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	signature := name
	if sigEnd := firstLineEnd(node); sigEnd > node.StartByte() {
		signature = strings.TrimSpace(string(content[node.StartByte():sigEnd]))
	}

	return Symbol{
		Name:      name,
		Kind:      kind,
		StartLine: startLine,
		EndLine:   endLine,
		Signature: signature,
	}, true
}

// goMethodSymbol names a Go method_declaration as ReceiverType.MethodName,
// the way kraklabs-cie's Go parser resolves call targets, since the bare
// "name" field only carries the method name without its receiver.
func goMethodSymbol(node *sitter.Node, content []byte) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	methodName := string(content[nameNode.StartByte():nameNode.EndByte()])

	receiverType := ""
	if receiverNode := node.ChildByFieldName("receiver"); receiverNode != nil {
		receiverType = goReceiverType(receiverNode, content)
	}

	name := methodName
	if receiverType != "" {
		name = receiverType + "." + methodName
	}

	return Symbol{
		Name:      name,
		Kind:      "method",
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: strings.TrimSpace(string(content[node.StartByte():firstLineEnd(node)])),
	}, true
}

func goReceiverType(receiverNode *sitter.Node, content []byte) string {
	for i := 0; i < int(receiverNode.ChildCount()); i++ {
		child := receiverNode.Child(i)
		if child.Type() != "parameter_declaration" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		name := string(content[typeNode.StartByte():typeNode.EndByte()])
		name = strings.TrimPrefix(name, "*")
		if idx := strings.Index(name, "["); idx > 0 {
			name = name[:idx]
		}
		return name
	}
	return ""
}

func firstLineEnd(node *sitter.Node) uint32 {
	start := node.StartPoint().Row
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "block" || child.Type() == "statement_block" || child.Type() == "field_declaration_list" {
			return child.StartByte()
		}
		if child.StartPoint().Row > start {
			return child.StartByte()
		}
	}
	return node.EndByte()
}

// routeCallPattern matches framework route registration calls across the
// common router APIs in the pack (chi, express, flask-style decorators
// are handled separately since they aren't call expressions).
var routeCallPattern = regexp.MustCompile(`(?i)\b(?:router|r|app|mux)\.(Get|Post|Put|Patch|Delete|Head|Options)\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)

var pyRouteDecoratorPattern = regexp.MustCompile(`(?m)^\s*@\w+\.route\(\s*["']([^"']+)["'](?:.*methods\s*=\s*\[([^\]]*)\])?`)

var testCallPattern = regexp.MustCompile(`\b(it|test|describe)\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)

var eventListenerPattern = regexp.MustCompile(`\.(?:on|addEventListener)\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)

// syntheticSymbols runs the fixed pattern set over raw source text: these
// are call sites, not declarations, so tree-sitter's grammar alone can't
// surface them as named symbols the way it does functions and types.
func syntheticSymbols(content, language string) []Symbol {
	var out []Symbol
	lineOf := func(offset int) int {
		return strings.Count(content[:offset], "\n") + 1
	}

	for _, m := range routeCallPattern.FindAllStringSubmatchIndex(content, -1) {
		method := strings.ToUpper(content[m[2]:m[3]])
		path := content[m[4]:m[5]]
		line := lineOf(m[0])
		out = append(out, Symbol{Name: method + " " + path, Kind: "route", StartLine: line, EndLine: line})
	}

	if language == "Python" {
		for _, m := range pyRouteDecoratorPattern.FindAllStringSubmatchIndex(content, -1) {
			path := content[m[2]:m[3]]
			method := "GET"
			if m[4] >= 0 {
				if methods := strings.FieldsFunc(content[m[4]:m[5]], func(r rune) bool { return r == ',' || r == '\'' || r == '"' || r == ' ' }); len(methods) > 0 {
					method = strings.ToUpper(methods[0])
				}
			}
			line := lineOf(m[0])
			out = append(out, Symbol{Name: method + " " + path, Kind: "route", StartLine: line, EndLine: line})
		}
	}

	for _, m := range testCallPattern.FindAllStringSubmatchIndex(content, -1) {
		kind := content[m[2]:m[3]]
		name := content[m[4]:m[5]]
		line := lineOf(m[0])
		out = append(out, Symbol{Name: kind + ": " + name, Kind: "test", StartLine: line, EndLine: line})
	}

	for _, m := range eventListenerPattern.FindAllStringSubmatchIndex(content, -1) {
		event := content[m[2]:m[3]]
		line := lineOf(m[0])
		out = append(out, Symbol{Name: "on: " + event, Kind: "listener", StartLine: line, EndLine: line})
	}

	return out
}
