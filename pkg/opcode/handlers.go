package opcode

// Operation implementations. Each receives pointers resolved by the
// interpreter in descriptor argument order.

func opExit(_, _, _, _ *int) bool { return true }

func opRet(res, d, _, _ *int) bool {
	*res = *d
	return true
}

func opRetGt(res, d, test, _ *int) bool {
	if *test > 0 {
		*res = *d
	}
	return true
}

func opRetLt(res, d, test, _ *int) bool {
	if *test < 0 {
		*res = *d
	}
	return true
}

func opRetEq(res, d, test, _ *int) bool {
	if *test == 0 {
		*res = *d
	}
	return true
}

func opRetNeq(res, d, test, _ *int) bool {
	if *test != 0 {
		*res = *d
	}
	return true
}

func opSkip(prog, label, _, _ *int) bool {
	*prog = *label
	return false
}

func opSkipGt(prog, label, test, _ *int) bool {
	if *test > 0 {
		*prog = *label
	}
	return false
}

func opSkipLt(prog, label, test, _ *int) bool {
	if *test < 0 {
		*prog = *label
	}
	return false
}

func opSkipEq(prog, label, test, _ *int) bool {
	if *test == 0 {
		*prog = *label
	}
	return false
}

func opSkipNeq(prog, label, test, _ *int) bool {
	if *test != 0 {
		*prog = *label
	}
	return false
}

func opSet(reg, d, _, _ *int) bool {
	*reg = *d
	return false
}

func opSetGt(reg, d, test, _ *int) bool {
	if *test > 0 {
		*reg = *d
	}
	return false
}

func opSetLt(reg, d, test, _ *int) bool {
	if *test < 0 {
		*reg = *d
	}
	return false
}

func opSetEq(reg, d, test, _ *int) bool {
	if *test == 0 {
		*reg = *d
	}
	return false
}

func opSetNeq(reg, d, test, _ *int) bool {
	if *test != 0 {
		*reg = *d
	}
	return false
}

func opTest(test, a, b, _ *int) bool {
	*test = *a - *b
	return false
}

func opSwap(a, b, _, _ *int) bool {
	*a, *b = *b, *a
	return false
}

func opAdd(reg, d, _, _ *int) bool {
	*reg += *d
	return false
}

func opSub(reg, d, _, _ *int) bool {
	*reg -= *d
	return false
}

func opMul(reg, d, _, _ *int) bool {
	*reg *= *d
	return false
}

func opMulAdd(reg, m, a, _ *int) bool {
	*reg = *reg**m + *a
	return false
}

// opMulAddMod leaves the result in [0, |mod|).
func opMulAddMod(reg, m, a, mod *int) bool {
	if *mod == 0 {
		return true
	}
	r := (*reg**m + *a) % *mod
	if r < 0 {
		r += abs(*mod)
	}
	*reg = r
	return false
}

func opDiv(reg, d, _, _ *int) bool {
	if *d == 0 {
		return true
	}
	*reg /= *d
	return false
}

func opMod(reg, d, _, _ *int) bool {
	if *d == 0 {
		return true
	}
	*reg %= *d
	return false
}

// Shift counts use the low six bits so a negative count cannot panic.
func opShl(reg, d, _, _ *int) bool {
	*reg <<= uint(*d) & 63
	return false
}

func opShr(reg, d, _, _ *int) bool {
	*reg >>= uint(*d) & 63
	return false
}

func opAbs(reg, _, _, _ *int) bool {
	*reg = abs(*reg)
	return false
}

func opMin(reg, d, _, _ *int) bool {
	*reg = min(*reg, *d)
	return false
}

func opMax(reg, d, _, _ *int) bool {
	*reg = max(*reg, *d)
	return false
}

// wavePhase reduces v into [0, period).
func wavePhase(v, period int) int {
	v %= period
	if v < 0 {
		v += period
	}
	return v
}

func opWavegenRect(reg, period, size, peak *int) bool {
	if *period <= 0 {
		return true
	}
	if wavePhase(*reg, *period) > *size {
		*reg = 0
	} else {
		*reg = *peak
	}
	return false
}

func opWavegenSaw(reg, period, size, peak *int) bool {
	if *period <= 0 {
		return true
	}
	v := wavePhase(*reg, *period)
	if v > *size {
		v = 0
	} else if v > *peak {
		v = *peak
	}
	*reg = v
	return false
}

func opWavegenTri(reg, period, size, peak *int) bool {
	if *period <= 0 {
		return true
	}
	v := wavePhase(*reg, *period)
	if v > *size {
		v = 0
	} else {
		if v > *size/2 {
			v = *size - v
		}
		if v > *peak {
			v = *peak
		}
	}
	*reg = v
	return false
}

func opGetColor(reg, d, _, _ *int) bool {
	*reg = *d >> 4
	return false
}

func opSetColor(reg, d, _, _ *int) bool {
	*reg = (*reg & 0xF) | (*d << 4)
	return false
}

func opGetShade(reg, d, _, _ *int) bool {
	*reg = *d & 0xF
	return false
}

func opSetShade(reg, d, _, _ *int) bool {
	*reg = (*reg & 0xF0) | (*d & 0xF)
	return false
}

// opAddShade saturates: past the darkest shade the pixel becomes black
// (0x0F), below the lightest it stays on shade 1 of its group and never
// reaches the transparent index.
func opAddShade(reg, d, _, _ *int) bool {
	shade := (*reg & 0xF) + *d
	switch {
	case shade > 0xF:
		*reg = 0xF
	case shade > 0:
		*reg = (*reg & 0xF0) | shade
	default:
		*reg = (*reg & 0xF0) | 0x1
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
