package opcode

// Register file layout shared by the compiler and the VM.
const (
	RegIn     = 0
	RegResult = RegIn
	RegCond   = 1
	RegR0     = 2
	RegR1     = 3
	RegR2     = 4
	RegR3     = 5
	// RegCustom0 is the first host-nameable custom register.
	RegCustom0 = 6

	// CustomRegisters is the number of host-nameable registers.
	CustomRegisters = 2

	// RegFixed is the first slot available to program references.
	RegFixed = RegCustom0 + CustomRegisters

	// MaxReferences caps the constants, labels and data fields one program may use.
	MaxReferences = 32

	// RegisterFileSize is the length of a worker's register file.
	RegisterFileSize = RegFixed + MaxReferences
)

var registerNames = map[string]int{
	"in":     RegIn,
	"result": RegResult,
	"r0":     RegR0,
	"r1":     RegR1,
	"r2":     RegR2,
	"r3":     RegR3,
}

// RegisterByName resolves a writable register name to its slot.
func RegisterByName(name string) (int, bool) {
	slot, ok := registerNames[name]
	return slot, ok
}

// RegisterNames returns the writable register names in slot order.
// "result" is an alias of "in".
func RegisterNames() []string {
	return []string{"in", "result", "r0", "r1", "r2", "r3"}
}

// SlotName returns the source name of a fixed slot, or "" for program slots.
func SlotName(slot int) string {
	switch {
	case slot == RegIn:
		return "in"
	case slot == RegCond:
		return "cond"
	case slot >= RegR0 && slot <= RegR3:
		return "r" + string(rune('0'+slot-RegR0))
	case slot >= RegCustom0 && slot < RegFixed:
		return "custom" + string(rune('0'+slot-RegCustom0))
	}
	return ""
}
