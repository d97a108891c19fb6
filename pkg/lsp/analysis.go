package lsp

import (
	"errors"
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/compiler/lexer"
	"github.com/zurustar/palscript/pkg/compiler/token"
	"github.com/zurustar/palscript/pkg/opcode"
	"github.com/zurustar/palscript/pkg/unit"
)

// label is a jump target declared in a document.
type label struct {
	Name   string
	Line   int // 1-indexed
	Column int // 1-indexed
}

// scanLabels returns the labels declared in text in source order. It only
// tokenizes, so it still works on documents that do not compile.
func scanLabels(text string) []label {
	var (
		out  []label
		prev token.Token
	)
	l := lexer.New(text)
	for l.More() {
		tok := l.NextToken(token.COLON)
		switch tok.Type {
		case token.NONE:
			// ';' is only consumed on request
			l.NextToken(token.SEMICOLON)
		case token.COLON:
			if prev.Type == token.SYMBOL {
				out = append(out, label{Name: prev.Literal, Line: prev.Line, Column: prev.Column})
			}
		}
		prev = tok
	}
	return out
}

// diagnose compiles text and converts a failure into a diagnostic.
func diagnose(p *compiler.Parser[*unit.Unit], name, text string) []protocol.Diagnostic {
	_, err := p.CompileNamed(name, text)
	if err == nil || errors.Is(err, compiler.ErrEmptySource) {
		return []protocol.Diagnostic{}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
	if ce, ok := compiler.IsCompileError(err); ok {
		d.Message = ce.Message
		d.Range = wordRange(text, ce.Line-1, ce.Column-1)
		code := protocol.IntegerOrString{Value: kindCode(ce.Kind)}
		d.Code = &code
	}
	return []protocol.Diagnostic{d}
}

// kindCode names an error kind for the diagnostic code field.
func kindCode(kind error) string {
	if kind == nil {
		return "error"
	}
	return strings.ReplaceAll(kind.Error(), " ", "-")
}

// wordRange covers the identifier starting at line/col (0-indexed), or a
// single character when there is none.
func wordRange(text string, line, col int) protocol.Range {
	line, col = max(line, 0), max(col, 0)
	start := protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
	end := start
	end.Character++

	lines := strings.Split(text, "\n")
	if line < len(lines) {
		s := lines[line]
		i := col
		for i < len(s) && isWordChar(s[i]) {
			i++
		}
		if i > col {
			end.Character = protocol.UInteger(i)
		}
	}
	return protocol.Range{Start: start, End: end}
}

func isWordChar(ch byte) bool {
	return ch == '_' || ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := strings.TrimRight(lines[pos.Line], "\r")
	return line, min(int(pos.Character), len(line)), true
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start, end := col, col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return line[start:end]
}

// atStatementStart reports whether the cursor is on the first word of a
// statement, where only operations and label declarations may appear.
func atStatementStart(text string, pos protocol.Position) bool {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return false
	}
	before := line[:col]
	if i := strings.LastIndexAny(before, ";:"); i >= 0 {
		before = before[i+1:]
	}
	return !strings.ContainsAny(strings.TrimSpace(before), " \t")
}

func completionItem(label, detail string, kind protocol.CompletionItemKind) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:      label,
		Kind:       &kind,
		Detail:     &detail,
		InsertText: &label,
	}
}

// complete returns completion items for the identifier before the cursor.
func complete(p *compiler.Parser[*unit.Unit], text string, pos protocol.Position) []protocol.CompletionItem {
	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil
	}
	match := func(name string) bool { return strings.HasPrefix(name, prefix) }

	var items []protocol.CompletionItem
	if atStatementStart(text, pos) {
		for _, d := range opcode.All() {
			if match(d.Name) {
				items = append(items, completionItem(d.Name, d.Signature(), protocol.CompletionItemKindFunction))
			}
		}
		return items
	}

	for _, r := range opcode.RegisterNames() {
		if match(r) {
			items = append(items, completionItem(r, "register", protocol.CompletionItemKindVariable))
		}
	}
	for _, n := range p.Names() {
		if !match(n.Name) {
			continue
		}
		switch n.Kind {
		case compiler.KindFunction:
			items = append(items, completionItem(n.Name, "data", protocol.CompletionItemKindField))
		case compiler.KindConst:
			items = append(items, completionItem(n.Name, fmt.Sprintf("const = %d", n.Value), protocol.CompletionItemKindConstant))
		case compiler.KindCustom:
			items = append(items, completionItem(n.Name, fmt.Sprintf("custom register %d", n.Value), protocol.CompletionItemKindVariable))
		}
	}
	seen := make(map[string]bool)
	for _, lb := range scanLabels(text) {
		if match(lb.Name) && !seen[lb.Name] {
			seen[lb.Name] = true
			items = append(items, completionItem(lb.Name, fmt.Sprintf("label (line %d)", lb.Line), protocol.CompletionItemKindReference))
		}
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// hover describes the word under the cursor in markdown.
func hover(p *compiler.Parser[*unit.Unit], text string, pos protocol.Position) *protocol.Hover {
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}

	var b strings.Builder
	if d, ok := opcode.Lookup(word); ok {
		fmt.Fprintf(&b, "**%s**\n\n`%s`", d.Name, d.Signature())
		if implicit := implicitArgs(d); implicit != "" {
			fmt.Fprintf(&b, "\n\nimplicit: %s", implicit)
		}
	} else if slot, ok := opcode.RegisterByName(word); ok {
		fmt.Fprintf(&b, "**%s**\n\nregister (slot %d)", word, slot)
	} else if n, ok := p.Lookup(word); ok {
		switch n.Kind {
		case compiler.KindFunction:
			fmt.Fprintf(&b, "**%s**\n\nunit data", word)
		case compiler.KindConst:
			fmt.Fprintf(&b, "**%s**\n\nconstant = %d (0x%X)", word, n.Value, n.Value)
		default:
			fmt.Fprintf(&b, "**%s**\n\ncustom register %d", word, n.Value)
		}
	} else {
		for _, lb := range scanLabels(text) {
			if lb.Name == word {
				fmt.Fprintf(&b, "**%s**\n\nlabel declared on line %d", word, lb.Line)
				break
			}
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func implicitArgs(d *opcode.Descriptor) string {
	var kinds []string
	for _, k := range d.Args {
		if k != opcode.ArgNone && k.Implicit() {
			kinds = append(kinds, k.String())
		}
	}
	return strings.Join(kinds, ", ")
}

func labelRange(lb label) protocol.Range {
	start := protocol.Position{Line: protocol.UInteger(lb.Line - 1), Character: protocol.UInteger(lb.Column - 1)}
	end := start
	end.Character += protocol.UInteger(len(lb.Name))
	return protocol.Range{Start: start, End: end}
}

// definition finds the declaration of the label under the cursor.
func definition(uri protocol.DocumentUri, text string, pos protocol.Position) []protocol.Location {
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}
	for _, lb := range scanLabels(text) {
		if lb.Name == word {
			return []protocol.Location{{URI: uri, Range: labelRange(lb)}}
		}
	}
	return nil
}

// symbols lists the labels of a document.
func symbols(text string) []protocol.DocumentSymbol {
	labels := scanLabels(text)
	out := make([]protocol.DocumentSymbol, 0, len(labels))
	for _, lb := range labels {
		r := labelRange(lb)
		out = append(out, protocol.DocumentSymbol{
			Name:           lb.Name,
			Kind:           protocol.SymbolKindKey,
			Range:          r,
			SelectionRange: r,
		})
	}
	return out
}
