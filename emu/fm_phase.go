package emu

// detuneTable holds phase increment deltas indexed by [keyCode][DT&3].
// DT bit 2 selects subtraction.
var detuneTable = [32][4]uint32{
	{0, 0, 1, 2}, {0, 0, 1, 2}, {0, 0, 1, 2}, {0, 0, 1, 2},
	{0, 1, 2, 2}, {0, 1, 2, 3}, {0, 1, 2, 3}, {0, 1, 2, 3},
	{0, 1, 2, 4}, {0, 1, 3, 4}, {0, 1, 3, 4}, {0, 1, 3, 5},
	{0, 2, 4, 5}, {0, 2, 4, 6}, {0, 2, 4, 6}, {0, 2, 5, 7},
	{0, 2, 5, 8}, {0, 3, 6, 8}, {0, 3, 6, 9}, {0, 3, 7, 10},
	{0, 4, 8, 11}, {0, 4, 8, 12}, {0, 4, 9, 13}, {0, 5, 10, 14},
	{0, 5, 11, 16}, {0, 6, 12, 17}, {0, 6, 13, 19}, {0, 7, 14, 20},
	{0, 8, 16, 22}, {0, 8, 16, 22}, {0, 8, 16, 22}, {0, 8, 16, 22},
}

// computePhaseIncrement calculates the 20-bit phase increment for an operator.
// fNum: 11-bit F-number, block: 3-bit octave, dt: 3-bit detune, mul: 4-bit multiplier.
func computePhaseIncrement(fNum uint16, block, keyCode, dt, mul uint8) uint32 {
	return detuneAndMultiply((uint32(fNum)<<uint(block))>>1, keyCode, dt, mul)
}

// computePMPhaseIncrement computes the increment from a PM-modulated 12-bit
// F-number ((fNum << 1) + pmDelta) & 0xFFF.
func computePMPhaseIncrement(modFnum12 uint32, block, keyCode, dt, mul uint8) uint32 {
	return detuneAndMultiply((modFnum12<<uint(block))>>2, keyCode, dt, mul)
}

func detuneAndMultiply(base uint32, keyCode, dt, mul uint8) uint32 {
	delta := detuneTable[keyCode&0x1F][dt&0x03]
	if dt&0x04 != 0 {
		// underflow wraps, as on hardware
		base -= delta
	} else {
		base += delta
	}
	base &= 0x1FFFF

	var result uint32
	if mul == 0 {
		result = base >> 1
	} else {
		result = base * uint32(mul)
	}
	return result & 0xFFFFF
}

// stepPhase advances an operator's phase accumulator by its increment.
func stepPhase(op *fmOperator) {
	op.phaseCounter = (op.phaseCounter + op.phaseInc) & 0xFFFFF
}
