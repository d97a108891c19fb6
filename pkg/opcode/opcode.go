// Package opcode defines the instruction set for the palette script virtual machine.
// This package is the foundation that both the compiler and VM depend on.
// The compiler emits opcode ids and operand slots described here, and the VM
// dispatches on the same table, so the two can never disagree about an
// operation's shape.
package opcode

import (
	"fmt"
	"strings"
)

// ArgKind describes how an operation argument is supplied.
type ArgKind uint8

const (
	// ArgNone marks an unused argument position.
	ArgNone ArgKind = iota
	// ArgProg is the program counter. Implicit.
	ArgProg
	// ArgTest is the condition register. Implicit.
	ArgTest
	// ArgResult is the result register (aliases in). Implicit.
	ArgResult

	// ArgReg is a writable register named in source (in, r0..r3).
	ArgReg
	// ArgData is any readable value: register, literal, host data, constant or custom register.
	ArgData
	// ArgConst is a numeric literal.
	ArgConst
	// ArgLabel is a jump target declared with "name:".
	ArgLabel
)

var argKindNames = [...]string{
	ArgNone:   "None",
	ArgProg:   "Prog",
	ArgTest:   "Test",
	ArgResult: "Result",
	ArgReg:    "Reg",
	ArgData:   "Data",
	ArgConst:  "Const",
	ArgLabel:  "Label",
}

func (k ArgKind) String() string {
	if int(k) < len(argKindNames) {
		return argKindNames[k]
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// Implicit reports whether the argument is supplied by the interpreter
// instead of the source text.
func (k ArgKind) Implicit() bool {
	return k <= ArgResult
}

// Size returns the number of operand bytes the argument occupies in a program.
func (k ArgKind) Size() int {
	if k.Implicit() {
		return 0
	}
	return 1
}

// Op is an operation id, stored as one byte in compiled programs.
type Op uint8

// Operation ids. The order is part of the bytecode format.
const (
	Exit Op = iota

	Ret
	RetGt
	RetLt
	RetEq
	RetNeq

	Skip
	SkipGt
	SkipLt
	SkipEq
	SkipNeq

	Set
	SetGt
	SetLt
	SetEq
	SetNeq

	Test

	Swap
	Add
	Sub
	Mul
	MulAdd
	MulAddMod
	Div
	Mod
	Shl
	Shr
	Abs
	Min
	Max

	WavegenRect
	WavegenSaw
	WavegenTri

	GetColor
	SetColor
	GetShade
	SetShade
	AddShade

	opCount
)

// MaxArgs is the number of argument positions every operation has.
const MaxArgs = 4

// Handler executes one operation. Arguments are pointers into the worker's
// register file (or its program counter); unused positions point at a
// scratch cell. A true result ends execution.
type Handler func(a0, a1, a2, a3 *int) bool

// Descriptor is the static description of one operation.
type Descriptor struct {
	ID   Op
	Name string
	Args [MaxArgs]ArgKind
	// Offsets holds the operand byte offset of each argument relative to the
	// first byte after the opcode. Implicit arguments carry the offset they
	// would have, which is never read.
	Offsets [MaxArgs]int
	// Size is the number of operand bytes following the opcode.
	Size    int
	Handler Handler
}

// Signature renders the operation as "name Kind Kind", listing explicit arguments only.
func (d *Descriptor) Signature() string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	for _, k := range d.Args {
		if k.Implicit() {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(k.String())
	}
	return sb.String()
}

// Explicit returns the kinds the source text must supply, in order.
func (d *Descriptor) Explicit() []ArgKind {
	out := make([]ArgKind, 0, MaxArgs)
	for _, k := range d.Args {
		if !k.Implicit() {
			out = append(out, k)
		}
	}
	return out
}

type definition struct {
	name string
	args [MaxArgs]ArgKind
	fn   Handler
}

func args(kinds ...ArgKind) [MaxArgs]ArgKind {
	var a [MaxArgs]ArgKind
	copy(a[:], kinds)
	return a
}

var definitions = [opCount]definition{
	Exit: {"exit", args(), opExit},

	Ret:    {"ret", args(ArgResult, ArgData), opRet},
	RetGt:  {"ret_gt", args(ArgResult, ArgData, ArgTest), opRetGt},
	RetLt:  {"ret_lt", args(ArgResult, ArgData, ArgTest), opRetLt},
	RetEq:  {"ret_eq", args(ArgResult, ArgData, ArgTest), opRetEq},
	RetNeq: {"ret_neq", args(ArgResult, ArgData, ArgTest), opRetNeq},

	Skip:    {"skip", args(ArgProg, ArgLabel), opSkip},
	SkipGt:  {"skip_gt", args(ArgProg, ArgLabel, ArgTest), opSkipGt},
	SkipLt:  {"skip_lt", args(ArgProg, ArgLabel, ArgTest), opSkipLt},
	SkipEq:  {"skip_eq", args(ArgProg, ArgLabel, ArgTest), opSkipEq},
	SkipNeq: {"skip_neq", args(ArgProg, ArgLabel, ArgTest), opSkipNeq},

	Set:    {"set", args(ArgReg, ArgData), opSet},
	SetGt:  {"set_gt", args(ArgReg, ArgData, ArgTest), opSetGt},
	SetLt:  {"set_lt", args(ArgReg, ArgData, ArgTest), opSetLt},
	SetEq:  {"set_eq", args(ArgReg, ArgData, ArgTest), opSetEq},
	SetNeq: {"set_neq", args(ArgReg, ArgData, ArgTest), opSetNeq},

	Test: {"test", args(ArgTest, ArgData, ArgData), opTest},

	Swap:      {"swap", args(ArgReg, ArgReg), opSwap},
	Add:       {"add", args(ArgReg, ArgData), opAdd},
	Sub:       {"sub", args(ArgReg, ArgData), opSub},
	Mul:       {"mul", args(ArgReg, ArgData), opMul},
	MulAdd:    {"muladd", args(ArgReg, ArgData, ArgData), opMulAdd},
	MulAddMod: {"muladdmod", args(ArgReg, ArgData, ArgData, ArgData), opMulAddMod},
	Div:       {"div", args(ArgReg, ArgData), opDiv},
	Mod:       {"mod", args(ArgReg, ArgData), opMod},
	Shl:       {"shl", args(ArgReg, ArgData), opShl},
	Shr:       {"shr", args(ArgReg, ArgData), opShr},
	Abs:       {"abs", args(ArgReg), opAbs},
	Min:       {"min", args(ArgReg, ArgData), opMin},
	Max:       {"max", args(ArgReg, ArgData), opMax},

	WavegenRect: {"wavegen_rect", args(ArgReg, ArgData, ArgData, ArgData), opWavegenRect},
	WavegenSaw:  {"wavegen_saw", args(ArgReg, ArgData, ArgData, ArgData), opWavegenSaw},
	WavegenTri:  {"wavegen_tri", args(ArgReg, ArgData, ArgData, ArgData), opWavegenTri},

	GetColor: {"get_color", args(ArgReg, ArgData), opGetColor},
	SetColor: {"set_color", args(ArgReg, ArgData), opSetColor},
	GetShade: {"get_shade", args(ArgReg, ArgData), opGetShade},
	SetShade: {"set_shade", args(ArgReg, ArgData), opSetShade},
	AddShade: {"add_shade", args(ArgReg, ArgData), opAddShade},
}

var (
	table  = buildTable()
	byName = buildIndex()
)

func buildTable() [opCount]Descriptor {
	var t [opCount]Descriptor
	for i, def := range definitions {
		d := Descriptor{ID: Op(i), Name: def.name, Args: def.args, Handler: def.fn}
		off := 0
		for j, k := range def.args {
			d.Offsets[j] = off
			off += k.Size()
		}
		d.Size = off
		t[i] = d
	}
	return t
}

func buildIndex() map[string]Op {
	m := make(map[string]Op, len(definitions))
	for i, def := range definitions {
		m[def.name] = Op(i)
	}
	return m
}

// Count returns the number of defined operations.
func Count() int {
	return int(opCount)
}

// Lookup finds an operation by mnemonic.
func Lookup(name string) (*Descriptor, bool) {
	op, ok := byName[name]
	if !ok {
		return nil, false
	}
	return &table[op], true
}

// Get returns the descriptor for id. It panics on an id outside the table;
// programs produced by the compiler only contain valid ids.
func Get(id Op) *Descriptor {
	return &table[id]
}

// Valid reports whether b is a defined operation id.
func Valid(b byte) bool {
	return b < byte(opCount)
}

// All returns every descriptor in id order.
func All() []*Descriptor {
	out := make([]*Descriptor, len(table))
	for i := range table {
		out[i] = &table[i]
	}
	return out
}

func (op Op) String() string {
	if op < opCount {
		return table[op].Name
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}
