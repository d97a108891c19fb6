// Package compiler provides the compilation pipeline for palette scripts.
//
// A Parser is the host's registry of names scripts may use (subject fields,
// constants and custom registers) plus the entry point that turns source
// text into a program.Program:
//   - AddFunction, AddConst, AddCustom: register names before compiling
//   - Compile, CompileNamed: compile source, returning *CompileError on failure
//   - Parse: compile and log failures instead of returning them
//   - CompileFile: load a script through script.Loader and compile it
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/zurustar/palscript/pkg/compiler/lexer"
	"github.com/zurustar/palscript/pkg/compiler/parser"
	"github.com/zurustar/palscript/pkg/compiler/token"
	"github.com/zurustar/palscript/pkg/logger"
	"github.com/zurustar/palscript/pkg/opcode"
	"github.com/zurustar/palscript/pkg/program"
	"github.com/zurustar/palscript/pkg/script"
)

// NameKind is the kind of a registered name.
type NameKind = parser.SymbolKind

const (
	KindFunction = parser.SymbolFunction
	KindConst    = parser.SymbolConst
	KindCustom   = parser.SymbolCustom
)

// NameInfo describes one registered name.
type NameInfo struct {
	Name  string
	Kind  NameKind
	Value int // constant value or custom register index
}

// cacheEntry is the last program compiled under one name.
type cacheEntry[S any] struct {
	hash   uint64
	source string
	prog   *program.Program[S]
}

// Parser compiles scripts for subjects of type S.
// It is safe for concurrent use.
type Parser[S any] struct {
	name string
	log  *slog.Logger

	mu     sync.RWMutex
	names  *orderedmap.OrderedMap[string, parser.Symbol]
	funcs  []program.Accessor[S]
	custom [opcode.CustomRegisters]string
	cache  map[string]cacheEntry[S] // one entry per script name
	gen    uint64 // bumped on every registration
}

// NewParser creates a Parser. name is used for programs compiled with Compile
// and in log output.
func NewParser[S any](name string) *Parser[S] {
	return &Parser[S]{
		name:  name,
		log:   logger.GetLogger().With("parser", name),
		names: orderedmap.NewOrderedMap[string, parser.Symbol](),
		cache: make(map[string]cacheEntry[S]),
	}
}

// SetLogger replaces the logger.
func (p *Parser[S]) SetLogger(l *slog.Logger) {
	p.log = l.With("parser", p.name)
}

// Name returns the parser name.
func (p *Parser[S]) Name() string {
	return p.name
}

// AddFunction registers a subject field readable from scripts.
func (p *Parser[S]) AddFunction(name string, get program.Accessor[S]) error {
	if get == nil {
		return fmt.Errorf("%w: %q has no accessor", ErrInvalidName, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkName(name); err != nil {
		return err
	}
	p.names.Set(name, parser.Symbol{Kind: parser.SymbolFunction, Value: len(p.funcs)})
	p.funcs = append(p.funcs, get)
	p.invalidate()
	return nil
}

// AddConst registers a named constant.
func (p *Parser[S]) AddConst(name string, value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkName(name); err != nil {
		return err
	}
	p.names.Set(name, parser.Symbol{Kind: parser.SymbolConst, Value: value})
	p.invalidate()
	return nil
}

// AddCustom names custom register index. Workers set its value with SetCustom.
func (p *Parser[S]) AddCustom(index int, name string) error {
	if index < 0 || index >= opcode.CustomRegisters {
		return fmt.Errorf("%w: %d (have %d)", ErrCustomIndex, index, opcode.CustomRegisters)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.custom[index] != "" {
		return fmt.Errorf("%w: custom register %d is already %q", ErrNameTaken, index, p.custom[index])
	}
	if err := p.checkName(name); err != nil {
		return err
	}
	p.names.Set(name, parser.Symbol{Kind: parser.SymbolCustom, Value: index})
	p.custom[index] = name
	p.invalidate()
	return nil
}

// checkName requires the name to lex as a single symbol that is not a register.
func (p *Parser[S]) checkName(name string) error {
	tok := lexer.New(name).NextToken(token.NONE)
	if tok.Type != token.SYMBOL || tok.Literal != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := opcode.RegisterByName(name); ok {
		return fmt.Errorf("%w: %q is a register", ErrInvalidName, name)
	}
	if p.names.Has(name) {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	return nil
}

func (p *Parser[S]) invalidate() {
	p.gen++
	clear(p.cache)
}

// Names returns every registered name in registration order.
func (p *Parser[S]) Names() []NameInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]NameInfo, 0, p.names.Len())
	for el := p.names.Front(); el != nil; el = el.Next() {
		info := NameInfo{Name: el.Key, Kind: el.Value.Kind}
		if el.Value.Kind != parser.SymbolFunction {
			info.Value = el.Value.Value
		}
		out = append(out, info)
	}
	return out
}

// Lookup returns a registered name.
func (p *Parser[S]) Lookup(name string) (NameInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sym, ok := p.names.Get(name)
	if !ok {
		return NameInfo{}, false
	}
	info := NameInfo{Name: name, Kind: sym.Kind}
	if sym.Kind != parser.SymbolFunction {
		info.Value = sym.Value
	}
	return info, true
}

// CustomIndex returns the register index of a named custom register.
func (p *Parser[S]) CustomIndex(name string) (int, bool) {
	info, ok := p.Lookup(name)
	if !ok || info.Kind != KindCustom {
		return 0, false
	}
	return info.Value, true
}

// resolver adapts the registry for the parser; the caller holds p.mu.
type resolver[S any] struct{ p *Parser[S] }

func (r resolver[S]) Resolve(name string) (parser.Symbol, bool) {
	return r.p.names.Get(name)
}

// Compile compiles source under the parser's name.
func (p *Parser[S]) Compile(source string) (*program.Program[S], error) {
	return p.CompileNamed(p.name, source)
}

// CompileNamed compiles source into a program called name. The cache keeps
// the latest program per name, so recompiling an unchanged script is free
// and an edited script replaces its previous entry.
func (p *Parser[S]) CompileNamed(name, source string) (*program.Program[S], error) {
	key := xxhash.Sum64String(source)

	p.mu.RLock()
	if e, ok := p.cache[name]; ok && e.hash == key && e.source == source {
		p.mu.RUnlock()
		p.log.Debug("script cache hit", "script", name)
		return e.prog, nil
	}
	out, err := parser.New(lexer.New(source), resolver[S]{p}).Parse()
	if err != nil {
		p.mu.RUnlock()
		if pe, ok := err.(*parser.ParserError); ok {
			return nil, newCompileError(name, source, pe)
		}
		return nil, fmt.Errorf("script %q: %w", name, err)
	}
	gen := p.gen
	refs := make([]program.Reference, 0, len(out.Refs))
	for _, r := range out.Refs {
		switch r.Kind {
		case parser.RefReg:
			refs = append(refs, program.RegRef{Name: r.Name, Slot: r.Slot, Index: r.Value})
		case parser.RefConst:
			refs = append(refs, program.ConstRef{Name: r.Name, Slot: r.Slot, Value: r.Value})
		case parser.RefLabel:
			refs = append(refs, program.LabelRef{Name: r.Name, Slot: r.Slot, Offset: r.Value})
		case parser.RefData:
			refs = append(refs, program.DataRef[S]{Name: r.Name, Slot: r.Slot, Get: p.funcs[r.Value]})
		}
	}
	p.mu.RUnlock()

	prog, err := program.New[S](name, out.Code, refs)
	if err != nil {
		return nil, fmt.Errorf("script %q: %w", name, err)
	}

	p.mu.Lock()
	if p.gen == gen {
		p.cache[name] = cacheEntry[S]{hash: key, source: source, prog: prog}
	}
	p.mu.Unlock()

	p.log.Debug("compiled script", "script", name, "bytes", len(out.Code), "refs", len(refs))
	return prog, nil
}

// Parse compiles source and logs the error instead of returning it.
// It returns nil when the script is rejected.
func (p *Parser[S]) Parse(name, source string) *program.Program[S] {
	prog, err := p.CompileNamed(name, source)
	if err != nil {
		p.log.Error("failed to compile script", "script", name, "error", err)
		return nil
	}
	return prog
}

// CompileFile loads a script through loader and compiles it under the
// file's base name.
func (p *Parser[S]) CompileFile(loader *script.Loader, path string) (*program.Program[S], error) {
	s, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return p.CompileNamed(s.Name(), s.Content)
}

// LogMetadata logs every operation and registered name at debug level.
func (p *Parser[S]) LogMetadata() {
	if !p.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, d := range opcode.All() {
		p.log.Debug("script operation", "name", d.Name, "signature", d.Signature())
	}
	for _, n := range p.Names() {
		switch n.Kind {
		case KindFunction:
			p.log.Debug("script name", "name", n.Name, "kind", n.Kind.String())
		default:
			p.log.Debug("script name", "name", n.Name, "kind", n.Kind.String(), "value", n.Value)
		}
	}
}
