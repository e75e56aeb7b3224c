package emu

// lfoPeriodTable maps the 3-bit LFO frequency to the number of samples
// between LFO steps.
var lfoPeriodTable = [8]uint16{108, 77, 71, 67, 62, 44, 8, 5}

// lfoAMShift maps AMS to a right shift of the 7-bit triangle. 8 disables AM.
var lfoAMShift = [4]uint8{8, 3, 1, 0}

// pmBaseTable is the PM increment for F-number bit 10, indexed by
// [FMS][quarter-wave step]. Lower F-number bits contribute proportionally less.
var pmBaseTable = [8][8]int32{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 4, 4, 4, 4},
	{0, 0, 0, 4, 4, 4, 8, 8},
	{0, 0, 4, 4, 8, 8, 12, 12},
	{0, 0, 4, 8, 8, 8, 12, 16},
	{0, 0, 8, 12, 16, 16, 20, 24},
	{0, 0, 16, 24, 32, 32, 40, 48},
	{0, 0, 32, 48, 64, 64, 80, 96},
}

// stepLFO advances the LFO counter and updates the AM triangle output.
func (c *fmChip) stepLFO() {
	if !c.lfoEnable {
		c.lfoAMOut = 0
		return
	}

	c.lfoCnt++
	if c.lfoCnt >= lfoPeriodTable[c.lfoFreq] {
		c.lfoCnt = 0
		c.lfoStep = (c.lfoStep + 1) & 0x7F
	}

	// 126, 124 .. 0 over the first half, then back up to 126
	if c.lfoStep < 64 {
		c.lfoAMOut = (63 - c.lfoStep) * 2
	} else {
		c.lfoAMOut = (c.lfoStep - 64) * 2
	}
}

func (c *fmChip) lfoAMAttenuation(ams uint8) uint16 {
	shift := lfoAMShift[ams&3]
	if shift >= 8 {
		return 0
	}
	return uint16(c.lfoAMOut) >> shift
}

// lfoPMFnumDelta returns a signed delta to add to (fNum << 1). The delta is
// proportional to F-number bits 4-10.
func (c *fmChip) lfoPMFnumDelta(fms uint8, fNum uint16) int32 {
	if fms == 0 || !c.lfoEnable {
		return 0
	}

	pmStep := c.lfoStep >> 2
	lfoIdx := pmStep & 0x07
	if pmStep&0x08 != 0 {
		lfoIdx = 7 - lfoIdx
	}
	baseValue := pmBaseTable[fms][lfoIdx]

	var delta int32
	for bit := uint(4); bit <= 10; bit++ {
		if fNum&(1<<bit) != 0 {
			delta += baseValue >> (10 - bit)
		}
	}
	if pmStep&0x10 != 0 {
		delta = -delta
	}
	return delta
}
