// Package vm runs compiled palette scripts.
//
// A Worker owns one register file. It is bound to a program and a subject
// once per draw and then evaluated once per pixel:
//   - Bind fills the program's constant, label and data slots
//   - SetCustom sets a host-named custom register
//   - Evaluate runs the program for one palette index
//
// A Worker is not safe for concurrent use; give each goroutine its own.
package vm

import (
	"errors"
	"fmt"

	"github.com/zurustar/palscript/pkg/opcode"
	"github.com/zurustar/palscript/pkg/program"
)

// ErrStepLimit is returned by EvaluateBounded when the program did not end
// within the allowed number of instructions.
var ErrStepLimit = errors.New("step limit exceeded")

// Worker evaluates a program for subjects of type S.
type Worker[S any] struct {
	prog *program.Program[S]
	code []byte

	// bound is the register file as left by Bind and SetCustom.
	// Every evaluation starts from a copy of it.
	bound  [opcode.RegisterFileSize]int
	regs   [opcode.RegisterFileSize]int
	custom [opcode.CustomRegisters]int

	pc      int
	scratch int
}

// NewWorker creates an unbound Worker. Evaluate on an unbound Worker returns
// the pixel unchanged.
func NewWorker[S any]() *Worker[S] {
	return &Worker[S]{}
}

// Bind attaches prog and reads every data field it uses from subject.
// Custom register values set earlier are kept.
func (w *Worker[S]) Bind(prog *program.Program[S], subject S) {
	w.prog = prog
	w.code = nil
	clear(w.bound[:])
	for i, v := range w.custom {
		w.bound[opcode.RegCustom0+i] = v
	}
	if prog == nil {
		return
	}
	w.code = prog.Code()
	for _, r := range prog.Refs() {
		switch ref := r.(type) {
		case program.ConstRef:
			w.bound[ref.Slot] = ref.Value
		case program.LabelRef:
			w.bound[ref.Slot] = ref.Offset
		case program.DataRef[S]:
			w.bound[ref.Slot] = ref.Get(subject)
		case program.RegRef:
			// custom registers are filled above
		}
	}
}

// Program returns the bound program, or nil.
func (w *Worker[S]) Program() *program.Program[S] {
	return w.prog
}

// SetCustom sets custom register index. It panics when index is out of range.
func (w *Worker[S]) SetCustom(index, value int) {
	if index < 0 || index >= opcode.CustomRegisters {
		panic(fmt.Sprintf("vm: custom register %d out of range", index))
	}
	w.custom[index] = value
	w.bound[opcode.RegCustom0+index] = value
}

// Custom returns the value of custom register index.
func (w *Worker[S]) Custom(index int) int {
	return w.custom[index]
}

// Evaluate runs the bound program with in set to pixel and returns the low
// byte of the result register.
func (w *Worker[S]) Evaluate(pixel uint8) uint8 {
	if w.code == nil {
		return pixel
	}
	w.reset(pixel)
	w.exec(-1)
	return uint8(w.regs[opcode.RegResult])
}

// EvaluateBounded is Evaluate with a cap on executed instructions. Programs
// that jump backwards can loop forever; tools and tests use this to stop them.
func (w *Worker[S]) EvaluateBounded(pixel uint8, maxSteps int) (uint8, error) {
	if w.code == nil {
		return pixel, nil
	}
	w.reset(pixel)
	if !w.exec(maxSteps) {
		return uint8(w.regs[opcode.RegResult]), fmt.Errorf("%w: %d instructions in %q", ErrStepLimit, maxSteps, w.prog.Name())
	}
	return uint8(w.regs[opcode.RegResult]), nil
}

func (w *Worker[S]) reset(pixel uint8) {
	w.regs = w.bound
	w.regs[opcode.RegIn] = int(pixel)
	w.pc = 0
}

// Evaluate binds a fresh worker and evaluates one pixel.
// Use a Worker directly when evaluating many pixels.
func Evaluate[S any](prog *program.Program[S], subject S, pixel uint8) uint8 {
	var w Worker[S]
	w.Bind(prog, subject)
	return w.Evaluate(pixel)
}
