// Package validate implements the hallucination detector's script
// validation: enumerate a script's external symbol uses, check each one
// against the knowledge graph (structural) and the code-example vector
// index (semantic), and fuse the two into a confidence score per spec.md
// §4.8.
package validate

import (
	"context"
	"strings"

	"github.com/Aman-CERP/ragcrawl/internal/chunk"
)

// SymbolKind classifies how a symbol is used at a given line.
type SymbolKind string

const (
	KindImport           SymbolKind = "import"
	KindClassConstruct   SymbolKind = "class-construct"
	KindMethodCall       SymbolKind = "method-call"
	KindFunctionCall     SymbolKind = "function-call"
	KindAttributeAccess  SymbolKind = "attribute-access"
	KindParameterName    SymbolKind = "parameter-name"
)

// SymbolUse is one external-symbol use found in the script under
// validation.
type SymbolUse struct {
	Kind          SymbolKind
	QualifiedName string
	Line          int
	Context       string // the surrounding line's text, for the semantic check
}

// callNodeTypes and related tree-sitter node type names are shared across
// the go/typescript/javascript/python grammars the chunker already
// registers (internal/chunk/languages.go); this enumerator walks the
// generic chunk.Node tree those grammars produce rather than re-implementing
// per-language parsing.
var (
	callNodeTypes = map[string]bool{
		"call_expression": true, // go, js, ts
		"call":            true, // python
	}
	selectorNodeTypes = map[string]bool{
		"selector_expression": true, // go
		"member_expression":   true, // js, ts
		"attribute":           true, // python
	}
	importNodeTypes = map[string]bool{
		"import_spec":        true, // go
		"import_declaration": true, // js, ts, java-like
		"import_statement":   true, // python, js
		"import_from_statement": true, // python
	}
	constructNodeTypes = map[string]bool{
		"composite_literal": true, // go struct literal
		"new_expression":    true, // js, ts
	}
	keywordArgNodeTypes = map[string]bool{
		"keyword_argument": true, // python
	}
)

// Enumerate parses source with the given language and walks the AST,
// returning every external symbol use in source order.
func Enumerate(ctx context.Context, parser *chunk.Parser, source []byte, language string) ([]SymbolUse, error) {
	tree, err := parser.Parse(ctx, source, language)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(source), "\n")
	lineOf := func(n *chunk.Node) int { return int(n.StartPoint.Row) + 1 }
	contextOf := func(line int) string {
		if line-1 >= 0 && line-1 < len(lines) {
			return strings.TrimSpace(lines[line-1])
		}
		return ""
	}

	var uses []SymbolUse
	tree.Root.Walk(func(n *chunk.Node) bool {
		switch {
		case importNodeTypes[n.Type]:
			name := n.GetContent(source)
			line := lineOf(n)
			uses = append(uses, SymbolUse{Kind: KindImport, QualifiedName: cleanImport(name), Line: line, Context: contextOf(line)})

		case callNodeTypes[n.Type]:
			callee := firstChild(n)
			if callee == nil {
				return true
			}
			name := callee.GetContent(source)
			line := lineOf(n)
			kind := KindFunctionCall
			if selectorNodeTypes[callee.Type] {
				kind = KindMethodCall
			}
			uses = append(uses, SymbolUse{Kind: kind, QualifiedName: name, Line: line, Context: contextOf(line)})

		case constructNodeTypes[n.Type]:
			callee := firstChild(n)
			name := n.Type
			if callee != nil {
				name = callee.GetContent(source)
			}
			line := lineOf(n)
			uses = append(uses, SymbolUse{Kind: KindClassConstruct, QualifiedName: name, Line: line, Context: contextOf(line)})

		case selectorNodeTypes[n.Type]:
			// Only count standalone attribute access, not the callee of a
			// call (already recorded as a method-call above).
			line := lineOf(n)
			uses = append(uses, SymbolUse{Kind: KindAttributeAccess, QualifiedName: n.GetContent(source), Line: line, Context: contextOf(line)})

		case keywordArgNodeTypes[n.Type]:
			nameNode := n.FindChildByType("identifier")
			if nameNode == nil {
				return true
			}
			line := lineOf(n)
			uses = append(uses, SymbolUse{Kind: KindParameterName, QualifiedName: nameNode.GetContent(source), Line: line, Context: contextOf(line)})
		}
		return true
	})

	return dedupeAttributeAccessUnderCalls(uses), nil
}

func firstChild(n *chunk.Node) *chunk.Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

func cleanImport(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"'`)
	return raw
}

// dedupeAttributeAccessUnderCalls drops an attribute-access entry that sits
// on the exact same line and name as a method-call entry, since the walk
// visits the call's callee selector twice (once as the call's child, once
// as a standalone selector node).
func dedupeAttributeAccessUnderCalls(uses []SymbolUse) []SymbolUse {
	callNames := make(map[string]bool, len(uses))
	for _, u := range uses {
		if u.Kind == KindMethodCall {
			callNames[key(u)] = true
		}
	}
	out := make([]SymbolUse, 0, len(uses))
	for _, u := range uses {
		if u.Kind == KindAttributeAccess && callNames[key(u)] {
			continue
		}
		out = append(out, u)
	}
	return out
}

func key(u SymbolUse) string {
	return u.QualifiedName + "@" + strings.TrimSpace(u.Context)
}
