package vm

import "github.com/zurustar/palscript/pkg/opcode"

// exec runs from w.pc until a handler ends execution. limit < 0 means no
// limit. It reports whether the program ended.
func (w *Worker[S]) exec(limit int) bool {
	code := w.code
	var a [opcode.MaxArgs]*int
	for steps := 0; limit < 0 || steps < limit; steps++ {
		d := opcode.Get(opcode.Op(code[w.pc]))
		operands := w.pc + 1
		w.pc = operands + d.Size

		for i, kind := range d.Args {
			switch kind {
			case opcode.ArgNone:
				a[i] = &w.scratch
			case opcode.ArgProg:
				a[i] = &w.pc
			case opcode.ArgTest:
				a[i] = &w.regs[opcode.RegCond]
			case opcode.ArgResult:
				a[i] = &w.regs[opcode.RegResult]
			default:
				a[i] = &w.regs[code[operands+d.Offsets[i]]]
			}
		}

		if d.Handler(a[0], a[1], a[2], a[3]) {
			return true
		}
	}
	return false
}
