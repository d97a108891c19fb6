package lsp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/unit"
)

const doc = `# armor recolor
test blit_part blit_legs;
skip_eq legs;
ret in;
legs:
  add_shade in 2; ret in;
`

func newParser(t *testing.T) *compiler.Parser[*unit.Unit] {
	t.Helper()
	p, err := unit.NewParser("test")
	require.NoError(t, err)
	return p
}

func pos(line, char int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestScanLabels(t *testing.T) {
	got := scanLabels(doc)
	assert.Equal(t, []label{{Name: "legs", Line: 5, Column: 1}}, got)

	got = scanLabels("a: exit; b : exit; # c: no\n  d:")
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, label{Name: "d", Line: 2, Column: 3}, got[2])

	// broken documents still yield their labels
	assert.Len(t, scanLabels("paint in; x: ret 1;"), 1)
}

func TestDiagnose(t *testing.T) {
	p := newParser(t)

	assert.Empty(t, diagnose(p, "ok", doc))
	assert.Empty(t, diagnose(p, "empty", ""))

	diags := diagnose(p, "bad", "ret in;\nadd r0 mana;\n")
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, pos(1, 7), d.Range.Start)
	assert.Equal(t, pos(1, 11), d.Range.End)
	require.NotNil(t, d.Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
	require.NotNil(t, d.Source)
	assert.Equal(t, lspName, *d.Source)
	require.NotNil(t, d.Code)
	assert.NotEmpty(t, d.Code.Value)
	assert.NotEmpty(t, d.Message)
}

func TestComplete(t *testing.T) {
	p := newParser(t)

	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want []string
	}{
		{"operation at line start", "ad", pos(0, 2), []string{"add", "add_shade"}},
		{"operation after semicolon", "ret in; skip_n", pos(0, 14), []string{"skip_neq"}},
		{"operation after label", "x: ret", pos(0, 6), []string{"ret", "ret_eq", "ret_neq", "ret_gt", "ret_lt"}},
		{"registers and data", "set r", pos(0, 5), []string{"r0", "r1", "r2", "r3", "result", "rank"}},
		{"unit data", "set r0 max_", pos(0, 11), []string{"max_health"}},
		{"constant", "test faction faction_h", pos(0, 22), []string{"faction_hostile"}},
		{"custom register", "test blit_p", pos(0, 11), []string{"blit_part"}},
		{"label", "skip loo; loop: ret in;", pos(0, 8), []string{"loop"}},
		{"no prefix", "set r0 ", pos(0, 7), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labels(complete(p, tt.text, tt.pos))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestHover(t *testing.T) {
	p := newParser(t)

	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"operation", "add_shade in 1;", pos(0, 3), "**add_shade**\n\n`add_shade Reg Data`"},
		{"register", "set r2 1;", pos(0, 5), "**r2**\n\nregister (slot 4)"},
		{"data", "ret health;", pos(0, 6), "**health**\n\nunit data"},
		{"constant", "ret faction_neutral;", pos(0, 6), "**faction_neutral**\n\nconstant = 2 (0x2)"},
		{"custom", "ret blit_part;", pos(0, 6), "**blit_part**\n\ncustom register 0"},
		{"label", "skip end;\nend: ret in;", pos(0, 6), "**end**\n\nlabel declared on line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hover(p, tt.text, tt.pos)
			require.NotNil(t, h)
			content, ok := h.Contents.(protocol.MarkupContent)
			require.True(t, ok)
			assert.Equal(t, protocol.MarkupKindMarkdown, content.Kind)
			assert.Equal(t, tt.want, content.Value)
		})
	}

	assert.Nil(t, hover(p, "ret mystery;", pos(0, 6)))
	assert.Nil(t, hover(p, "ret in;", pos(3, 0)))
}

func TestHover_ImplicitArguments(t *testing.T) {
	h := hover(newParser(t), "skip_eq x;", pos(0, 1))
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.(protocol.MarkupContent).Value, "implicit: Prog, Test")
}

func TestDefinitionAndSymbols(t *testing.T) {
	uri := protocol.DocumentUri("file:///mod/armor.pal")

	locs := definition(uri, doc, pos(2, 10))
	require.Len(t, locs, 1)
	assert.Equal(t, uri, locs[0].URI)
	assert.Equal(t, protocol.Range{Start: pos(4, 0), End: pos(4, 4)}, locs[0].Range)

	assert.Nil(t, definition(uri, doc, pos(1, 2)))

	syms := symbols(doc)
	require.Len(t, syms, 1)
	assert.Equal(t, "legs", syms[0].Name)
	assert.Equal(t, protocol.SymbolKindKey, syms[0].Kind)
}

func TestExtractHelpers(t *testing.T) {
	assert.Equal(t, "add_sh", extractPrefix("add_shade", pos(0, 6)))
	assert.Equal(t, "", extractPrefix("add", pos(0, 0)))
	assert.Equal(t, "", extractPrefix("add", pos(4, 0)))
	assert.Equal(t, "add_shade", extractWord("add_shade in", pos(0, 2)))
	assert.Equal(t, "in", extractWord("add_shade in;", pos(0, 12)))
	assert.Equal(t, "ret", extractWord("a\r\nret\r\n", pos(1, 1)))
	assert.Equal(t, "armor", scriptName("file:///mod/scripts/armor.pal"))
}

// notifications collects what the server publishes.
type notifications struct {
	mu   sync.Mutex
	sent []protocol.PublishDiagnosticsParams
}

func (n *notifications) notify(method string, params any) {
	if method != protocol.ServerTextDocumentPublishDiagnostics {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, params.(protocol.PublishDiagnosticsParams))
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *notifications) last() protocol.PublishDiagnosticsParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

func TestServer_DocumentLifecycle(t *testing.T) {
	s := New(newParser(t), "test")
	n := &notifications{}
	ctx := &glsp.Context{Notify: n.notify}
	uri := protocol.DocumentUri("file:///armor.pal")

	result, err := s.initialize(ctx, &protocol.InitializeParams{})
	require.NoError(t, err)
	init := result.(protocol.InitializeResult)
	assert.Equal(t, lspName, init.ServerInfo.Name)
	assert.Equal(t, true, init.Capabilities.HoverProvider)

	require.NoError(t, s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Text: "set r0 mana;"},
	}))
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, n.last().Diagnostics, 1)

	require.NoError(t, s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: doc}},
	}))
	require.Eventually(t, func() bool { return n.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, n.last().Diagnostics)

	h, err := s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos(2, 2),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	require.Eventually(t, func() bool { return n.count() == 3 }, time.Second, 5*time.Millisecond)

	_, ok := s.text(uri)
	assert.False(t, ok)
	h, err = s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     pos(2, 2),
		},
	})
	require.NoError(t, err)
	assert.Nil(t, h)
}
