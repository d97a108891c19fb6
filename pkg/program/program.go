// Package program holds compiled palette scripts.
//
// A Program is immutable once built and may be shared by any number of
// workers. Its references describe how a worker fills the per-program
// register slots when it binds a subject.
package program

import (
	"fmt"
	"strings"

	"github.com/zurustar/palscript/pkg/opcode"
)

// Accessor reads one integer field of a subject.
type Accessor[S any] func(S) int

// Reference is a named entry of a program's reference table.
// The concrete types are RegRef, ConstRef, LabelRef and DataRef.
type Reference interface {
	RefName() string
	RefSlot() int
	isReference()
}

// RegRef names a host custom register. It does not use a program slot.
type RegRef struct {
	Name  string
	Slot  int
	Index int
}

// ConstRef is a literal or a host constant.
type ConstRef struct {
	Name  string
	Slot  int
	Value int
}

// LabelRef is a jump target; Offset indexes the program code.
type LabelRef struct {
	Name   string
	Slot   int
	Offset int
}

// DataRef reads a subject field when a worker binds.
type DataRef[S any] struct {
	Name string
	Slot int
	Get  Accessor[S]
}

func (r RegRef) RefName() string { return r.Name }
func (r RegRef) RefSlot() int { return r.Slot }
func (RegRef) isReference() {}
func (r ConstRef) RefName() string { return r.Name }
func (r ConstRef) RefSlot() int { return r.Slot }
func (ConstRef) isReference() {}
func (r LabelRef) RefName() string { return r.Name }
func (r LabelRef) RefSlot() int { return r.Slot }
func (LabelRef) isReference() {}
func (r DataRef[S]) RefName() string { return r.Name }
func (r DataRef[S]) RefSlot() int { return r.Slot }
func (DataRef[S]) isReference() {}

// Program is compiled bytecode plus its reference table.
type Program[S any] struct {
	name string
	code []byte
	refs []Reference
}

// New validates code and refs and builds a Program. code must end with exit
// and only contain defined operations whose operands address the register file.
func New[S any](name string, code []byte, refs []Reference) (*Program[S], error) {
	if len(code) == 0 || code[len(code)-1] != byte(opcode.Exit) {
		return nil, fmt.Errorf("program %q: code must end with exit", name)
	}
	for pc := 0; pc < len(code); {
		if !opcode.Valid(code[pc]) {
			return nil, fmt.Errorf("program %q: invalid opcode %d at offset %d", name, code[pc], pc)
		}
		d := opcode.Get(opcode.Op(code[pc]))
		if pc+1+d.Size > len(code) {
			return nil, fmt.Errorf("program %q: truncated %s at offset %d", name, d.Name, pc)
		}
		for _, b := range code[pc+1 : pc+1+d.Size] {
			if int(b) >= opcode.RegisterFileSize {
				return nil, fmt.Errorf("program %q: operand %d out of range at offset %d", name, b, pc)
			}
		}
		pc += 1 + d.Size
	}
	for _, r := range refs {
		if r.RefSlot() < 0 || r.RefSlot() >= opcode.RegisterFileSize {
			return nil, fmt.Errorf("program %q: reference %q has slot %d", name, r.RefName(), r.RefSlot())
		}
		if l, ok := r.(LabelRef); ok && (l.Offset < 0 || l.Offset >= len(code)) {
			return nil, fmt.Errorf("program %q: label %q points outside the code", name, l.Name)
		}
	}
	return &Program[S]{name: name, code: code, refs: refs}, nil
}

// Name returns the name given at compile time.
func (p *Program[S]) Name() string { return p.name }

// Code returns the bytecode. Callers must not modify it.
func (p *Program[S]) Code() []byte { return p.code }

// Refs returns the reference table ordered by slot. Callers must not modify it.
func (p *Program[S]) Refs() []Reference { return p.refs }

// Lookup finds a reference by name.
func (p *Program[S]) Lookup(name string) (Reference, bool) {
	for _, r := range p.refs {
		if r.RefName() == name {
			return r, true
		}
	}
	return nil, false
}

// Disassemble renders the program one instruction per line.
func (p *Program[S]) Disassemble() string {
	names := make(map[int]string, len(p.refs))
	labels := make(map[int]string)
	for _, r := range p.refs {
		names[r.RefSlot()] = r.RefName()
		if l, ok := r.(LabelRef); ok {
			labels[l.Offset] = l.Name
		}
	}

	var sb strings.Builder
	for pc := 0; pc < len(p.code); {
		d := opcode.Get(opcode.Op(p.code[pc]))
		if l, ok := labels[pc]; ok {
			fmt.Fprintf(&sb, "%s:\n", l)
		}
		fmt.Fprintf(&sb, "%4d: %s", pc, d.Name)
		for i, k := range d.Args {
			if k.Implicit() {
				continue
			}
			slot := int(p.code[pc+1+d.Offsets[i]])
			name, ok := names[slot]
			if !ok {
				name = opcode.SlotName(slot)
			}
			fmt.Fprintf(&sb, " %s", name)
		}
		sb.WriteByte('\n')
		pc += 1 + d.Size
	}
	return sb.String()
}
