package parser

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/zurustar/palscript/pkg/compiler/lexer"
	"github.com/zurustar/palscript/pkg/compiler/token"
	"github.com/zurustar/palscript/pkg/opcode"
)

// SymbolKind says what a host-registered name stands for.
type SymbolKind int

const (
	SymbolFunction SymbolKind = iota
	SymbolConst
	SymbolCustom
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolConst:
		return "const"
	case SymbolCustom:
		return "custom register"
	}
	return "unknown"
}

// Symbol is a host-registered name. Value is the function index for
// SymbolFunction, the value for SymbolConst and the register index for
// SymbolCustom.
type Symbol struct {
	Kind  SymbolKind
	Value int
}

// Resolver looks up names the host registered before compiling.
type Resolver interface {
	Resolve(name string) (Symbol, bool)
}

// RefKind is the kind of a program reference.
type RefKind int

const (
	RefReg RefKind = iota
	RefConst
	RefLabel
	RefData
)

func (k RefKind) String() string {
	switch k {
	case RefReg:
		return "reg"
	case RefConst:
		return "const"
	case RefLabel:
		return "label"
	case RefData:
		return "data"
	}
	return "unknown"
}

// Ref is one entry of a compiled program's reference table. Value holds the
// constant value, the label's code offset, the custom register index or the
// host function index depending on Kind.
type Ref struct {
	Name  string
	Kind  RefKind
	Slot  int
	Value int
}

// Output is the result of a successful parse.
type Output struct {
	Code []byte
	Refs []Ref // sorted by slot
}

type entry struct {
	Ref
	resolved bool
}

// Parser compiles palette script source into bytecode.
type Parser struct {
	l        *lexer.Lexer
	source   []string // Source code lines for error reporting
	resolver Resolver

	code     []byte
	refs     map[string]*entry
	pending  map[string]token.Token // forward label references, first use
	nextSlot int
}

// New creates a new Parser. r may be nil when no host names exist.
func New(l *lexer.Lexer, r Resolver) *Parser {
	return &Parser{
		l:        l,
		source:   strings.Split(l.GetSource(), "\n"),
		resolver: r,
		refs:     make(map[string]*entry),
		pending:  make(map[string]token.Token),
		nextSlot: opcode.RegFixed,
	}
}

// Parse consumes the whole input. It returns either a complete program or
// the first error; there is no partial output.
func (p *Parser) Parse() (*Output, error) {
	if p.l.GetSource() == "" {
		return nil, &ParserError{Kind: ErrEmptySource, Message: "script is empty", Line: 1, Column: 1}
	}

	for p.l.More() {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}

	if len(p.pending) > 0 {
		var first token.Token
		for _, tok := range p.pending {
			if first.Line == 0 || tok.Line < first.Line || (tok.Line == first.Line && tok.Column < first.Column) {
				first = tok
			}
		}
		return nil, p.errorAt(ErrUndeclaredLabel, first, "label '%s' is used but never declared", first.Literal)
	}

	p.code = append(p.code, byte(opcode.Exit))

	refs := make([]Ref, 0, len(p.refs))
	for _, e := range p.refs {
		refs = append(refs, e.Ref)
	}
	slices.SortFunc(refs, func(a, b Ref) int {
		if a.Slot != b.Slot {
			return a.Slot - b.Slot
		}
		return strings.Compare(a.Name, b.Name)
	})
	return &Output{Code: p.code, Refs: refs}, nil
}

func (p *Parser) parseStatement() error {
	var label token.Token

	op := p.l.NextToken(token.NONE)
	var args [opcode.MaxArgs]token.Token
	args[0] = p.l.NextToken(token.COLON)
	if args[0].Type == token.COLON {
		label = op
		op = p.l.NextToken(token.NONE)
		args[0] = p.l.NextToken(token.NONE)
	}
	for i := 1; i < opcode.MaxArgs; i++ {
		args[i] = p.l.NextToken(token.NONE)
	}
	end := p.l.NextToken(token.SEMICOLON)

	if label.Type != "" && label.Type != token.SYMBOL {
		return p.errorAt(ErrSyntax, label, "unexpected %s before ':'", label)
	}
	if op.Type != token.SYMBOL {
		return p.errorAt(ErrSyntax, op, "expected operation, got %s", op)
	}
	supplied := 0
	for _, a := range args {
		if a.Type == token.NONE {
			break
		}
		if !a.IsArgument() {
			return p.errorAt(ErrSyntax, a, "unexpected %s", a)
		}
		supplied++
	}
	switch {
	case end.Type == token.SEMICOLON:
	case end.Type == token.NONE:
		return p.errorAt(ErrSyntax, end, "missing ';' after '%s'", op.Literal)
	case end.IsArgument():
		return p.errorAt(ErrArgumentCount, end, "too many arguments for '%s'", op.Literal)
	default:
		return p.errorAt(ErrSyntax, end, "unexpected %s", end)
	}

	desc, ok := opcode.Lookup(op.Literal)
	if !ok {
		return p.errorAt(ErrUnknownOperation, op, "unknown operation '%s'", op.Literal)
	}

	if label.Type == token.SYMBOL {
		if err := p.declareLabel(label); err != nil {
			return err
		}
	}

	p.code = append(p.code, byte(desc.ID))

	explicit := len(desc.Explicit())
	j := 0
	// "ret result x;" spells out the implicit result register.
	if desc.Args[0] == opcode.ArgResult && supplied == explicit+1 &&
		args[0].Type == token.SYMBOL && args[0].Literal == "result" {
		j = 1
	}
	for _, kind := range desc.Args {
		if kind.Implicit() {
			continue
		}
		if j >= supplied {
			return p.errorAt(ErrArgumentCount, op, "'%s' expects %d argument(s): %s", op.Literal, explicit, desc.Signature())
		}
		slot, err := p.resolve(kind, args[j])
		if err != nil {
			return err
		}
		p.code = append(p.code, byte(slot))
		j++
	}
	if j < supplied {
		return p.errorAt(ErrArgumentCount, args[j], "'%s' expects %d argument(s): %s", op.Literal, explicit, desc.Signature())
	}
	return nil
}

func (p *Parser) resolve(kind opcode.ArgKind, tok token.Token) (int, error) {
	switch kind {
	case opcode.ArgReg:
		if tok.Type == token.SYMBOL {
			if slot, ok := opcode.RegisterByName(tok.Literal); ok {
				return slot, nil
			}
		}
		return 0, p.errorAt(ErrInvalidArgument, tok, "'%s' is not a register", tok.Literal)

	case opcode.ArgConst:
		if tok.Type != token.NUMBER {
			return 0, p.errorAt(ErrInvalidArgument, tok, "'%s' is not a number", tok.Literal)
		}
		return p.constRef(tok)

	case opcode.ArgLabel:
		if tok.Type != token.SYMBOL {
			return 0, p.errorAt(ErrInvalidArgument, tok, "'%s' is not a label", tok.Literal)
		}
		return p.labelRef(tok)

	case opcode.ArgData:
		return p.dataRef(tok)
	}
	return 0, p.errorAt(ErrInvalidArgument, tok, "unsupported argument kind %s", kind)
}

func (p *Parser) dataRef(tok token.Token) (int, error) {
	if tok.Type == token.NUMBER {
		return p.constRef(tok)
	}
	name := tok.Literal
	if slot, ok := opcode.RegisterByName(name); ok {
		return slot, nil
	}
	if e, ok := p.refs[name]; ok {
		if e.Kind == RefLabel {
			return 0, p.errorAt(ErrInvalidArgument, tok, "label '%s' cannot be used as data", name)
		}
		return e.Slot, nil
	}
	if p.resolver != nil {
		if sym, ok := p.resolver.Resolve(name); ok {
			switch sym.Kind {
			case SymbolFunction:
				return p.newRef(tok, RefData, sym.Value)
			case SymbolConst:
				return p.newRef(tok, RefConst, sym.Value)
			case SymbolCustom:
				e := &entry{Ref: Ref{Name: name, Kind: RefReg, Slot: opcode.RegCustom0 + sym.Value, Value: sym.Value}, resolved: true}
				p.refs[name] = e
				return e.Slot, nil
			}
		}
	}
	return 0, p.errorAt(ErrInvalidArgument, tok, "unknown name '%s'", name)
}

func (p *Parser) constRef(tok token.Token) (int, error) {
	v, err := ParseNumber(tok.Literal)
	if err != nil {
		return 0, p.errorAt(ErrInvalidArgument, tok, "invalid number '%s'", tok.Literal)
	}
	key := strconv.Itoa(v)
	if e, ok := p.refs[key]; ok {
		return e.Slot, nil
	}
	return p.newRef(token.Token{Type: tok.Type, Literal: key, Line: tok.Line, Column: tok.Column}, RefConst, v)
}

func (p *Parser) labelRef(tok token.Token) (int, error) {
	if e, ok := p.refs[tok.Literal]; ok {
		if e.Kind != RefLabel {
			return 0, p.errorAt(ErrInvalidArgument, tok, "'%s' is not a label", tok.Literal)
		}
		return e.Slot, nil
	}
	if err := p.checkLabelName(tok); err != nil {
		return 0, err
	}
	slot, err := p.newRef(tok, RefLabel, 0)
	if err != nil {
		return 0, err
	}
	p.refs[tok.Literal].resolved = false
	p.pending[tok.Literal] = tok
	return slot, nil
}

func (p *Parser) declareLabel(tok token.Token) error {
	offset := len(p.code)
	if e, ok := p.refs[tok.Literal]; ok {
		if e.Kind != RefLabel {
			return p.errorAt(ErrInvalidLabel, tok, "'%s' is already used as %s", tok.Literal, e.Kind)
		}
		if e.resolved {
			return p.errorAt(ErrDuplicateLabel, tok, "label '%s' declared twice", tok.Literal)
		}
		e.Value = offset
		e.resolved = true
		delete(p.pending, tok.Literal)
		return nil
	}
	if err := p.checkLabelName(tok); err != nil {
		return err
	}
	_, err := p.newRef(tok, RefLabel, offset)
	return err
}

func (p *Parser) checkLabelName(tok token.Token) error {
	if _, ok := opcode.RegisterByName(tok.Literal); ok {
		return p.errorAt(ErrInvalidLabel, tok, "register '%s' cannot be a label", tok.Literal)
	}
	if p.resolver != nil {
		if sym, ok := p.resolver.Resolve(tok.Literal); ok {
			return p.errorAt(ErrInvalidLabel, tok, "'%s' is already a registered %s", tok.Literal, sym.Kind)
		}
	}
	return nil
}

func (p *Parser) newRef(tok token.Token, kind RefKind, value int) (int, error) {
	if p.nextSlot-opcode.RegFixed >= opcode.MaxReferences {
		return 0, p.errorAt(ErrTooManyReferences, tok, "more than %d constants, labels and data references", opcode.MaxReferences)
	}
	e := &entry{Ref: Ref{Name: tok.Literal, Kind: kind, Slot: p.nextSlot, Value: value}, resolved: true}
	p.nextSlot++
	p.refs[tok.Literal] = e
	return e.Slot, nil
}

func (p *Parser) errorAt(kind error, tok token.Token, format string, args ...any) *ParserError {
	err := &ParserError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    tok.Line,
		Column:  tok.Column,
	}
	if tok.Line > 0 && tok.Line <= len(p.source) {
		err.LineText = strings.TrimSpace(p.source[tok.Line-1])
	}
	return err
}

// ParseNumber parses a decimal or 0x-prefixed hexadecimal literal with an
// optional sign. Decimal values must fit in an int32; hexadecimal values are
// any 32-bit pattern. No other prefixes or digit separators are accepted.
func ParseNumber(lit string) (int, error) {
	s := lit
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", lit, err)
	}
	// hex literals are 32-bit patterns, negated in two's complement
	if base == 16 {
		h := uint32(u)
		if neg {
			h = -h
		}
		return int(int32(h)), nil
	}
	v := int64(u)
	if neg {
		v = -v
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("parse %q: value out of range", lit)
	}
	return int(v), nil
}
