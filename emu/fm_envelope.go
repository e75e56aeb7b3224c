package emu

// envSilent is the first combined attenuation that produces no output.
const envSilent = 832

// egIncrementTable defines the attenuation increment patterns for rates 4-47.
// rate&3 selects one of 4 base patterns; the shift (11 - rate>>2) controls
// how often an update happens. Row 0 is unused (rate 0 is frozen).
var egIncrementTable = [5][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{0, 1, 0, 1, 0, 1, 0, 1}, // rate&3 == 0
	{0, 1, 0, 1, 1, 1, 0, 1}, // rate&3 == 1
	{0, 1, 1, 1, 0, 1, 1, 1}, // rate&3 == 2
	{0, 1, 1, 1, 1, 1, 1, 1}, // rate&3 == 3
}

// egHighRateTable holds per-rate patterns for rates 48-63, which update on
// every envelope clock.
var egHighRateTable = [16][8]uint8{
	{1, 1, 1, 1, 1, 1, 1, 1}, // rate 48
	{1, 1, 1, 2, 1, 1, 1, 2},
	{1, 2, 1, 2, 1, 2, 1, 2},
	{1, 2, 2, 2, 1, 2, 2, 2},
	{2, 2, 2, 2, 2, 2, 2, 2}, // rate 52
	{2, 2, 2, 4, 2, 2, 2, 4},
	{2, 4, 2, 4, 2, 4, 2, 4},
	{2, 4, 4, 4, 2, 4, 4, 4},
	{4, 4, 4, 4, 4, 4, 4, 4}, // rate 56
	{4, 4, 4, 8, 4, 4, 4, 8},
	{4, 8, 4, 8, 4, 8, 4, 8},
	{4, 8, 8, 8, 4, 8, 8, 8},
	{8, 8, 8, 8, 8, 8, 8, 8}, // rate 60
	{8, 8, 8, 8, 8, 8, 8, 8},
	{8, 8, 8, 8, 8, 8, 8, 8},
	{8, 8, 8, 8, 8, 8, 8, 8},
}

// attackDecayTable is the flattened increment table: eight entries per
// effective rate, indexed by rate*8 + ((counter>>shift)&7).
var attackDecayTable [64 * 8]uint8

// egShiftTable holds the update shift for each effective rate.
var egShiftTable [64]uint8

func init() {
	for rate := 1; rate < 64; rate++ {
		var row [8]uint8
		if rate >= 48 {
			row = egHighRateTable[rate-48]
		} else {
			row = egIncrementTable[(rate&3)+1]
			egShiftTable[rate] = uint8(11 - rate>>2)
		}
		copy(attackDecayTable[rate*8:], row[:])
	}
	egShiftTable[0] = 11
}

// egRate is the cached key-scaled rate of one envelope state.
type egRate struct {
	rate  uint8
	shift uint8
}

func newEGRate(rate uint8) egRate {
	return egRate{rate: rate, shift: egShiftTable[rate]}
}

// effectiveRate computes 2*rate + key-scale, clamped to 63. Rate 0 stays 0.
func effectiveRate(rate, keyCode, ks uint8) uint8 {
	if rate == 0 {
		return 0
	}
	r := int(2*rate) + int(keyCode>>(3-ks))
	if r > 63 {
		r = 63
	}
	return uint8(r)
}

// refreshRates recomputes the cached (rate, shift) pairs. Called whenever
// a rate register or the key code changes.
func (op *fmOperator) refreshRates() {
	op.egRates[egAttack] = newEGRate(effectiveRate(op.ar, op.keyCode, op.ks))
	op.egRates[egDecay] = newEGRate(effectiveRate(op.dr, op.keyCode, op.ks))
	op.egRates[egSustain] = newEGRate(effectiveRate(op.sr, op.keyCode, op.ks))
	// Release rate: 2*RR + 1
	op.egRates[egRelease] = newEGRate(effectiveRate(op.rr*2+1, op.keyCode, op.ks))
}

// startAttack enters the attack phase. Rates 62-63 complete it instantly.
func (op *fmOperator) startAttack() {
	op.egState = egAttack
	if op.egRates[egAttack].rate >= 62 {
		op.egLevel = 0
		op.egState = op.postAttackState()
	}
}

func (op *fmOperator) postAttackState() uint8 {
	if op.sl != 0 {
		return egDecay
	}
	return egSustain
}

// stepEnvelopes advances the envelope for all operators.
func (c *fmChip) stepEnvelopes() {
	counter := c.egCounter
	for ch := 0; ch < 6; ch++ {
		for op := 0; op < 4; op++ {
			c.ch[ch].op[op].stepEnvelope(counter)
		}
	}
}

// stepEnvelope advances one operator's envelope by one EG step.
func (op *fmOperator) stepEnvelope(counter uint16) {
	if op.egState == egReady {
		return
	}
	// The sustain level check comes before the increment so a decay never
	// overshoots the target.
	if op.egState == egDecay && op.egLevel >= sustainLevel(op.sl) {
		op.egState = egSustain
	}

	r := op.egRates[op.egState]
	if r.rate == 0 {
		return
	}
	if r.shift > 0 && counter&((1<<r.shift)-1) != 0 {
		return
	}
	incr := attackDecayTable[int(r.rate)*8+int((counter>>r.shift)&7)]
	if incr == 0 {
		return
	}

	switch op.egState {
	case egAttack:
		if r.rate >= 62 {
			op.egLevel = 0
		} else {
			// ^level is negative for a positive level, so the step shrinks
			// as the level approaches 0.
			step := (^int32(op.egLevel) * int32(incr)) >> 4
			newLevel := int32(op.egLevel) + step
			if newLevel <= 0 {
				op.egLevel = 0
			} else {
				op.egLevel = uint16(newLevel)
			}
		}
		if op.egLevel == 0 {
			op.egState = op.postAttackState()
		}

	case egDecay:
		op.egLevel += uint16(incr)
		if sl := sustainLevel(op.sl); op.egLevel >= sl {
			op.egState = egSustain
		}
		if op.egLevel > 0x3FF {
			op.egLevel = 0x3FF
		}

	case egSustain:
		op.egLevel += uint16(incr)
		if op.egLevel > 0x3FF {
			op.egLevel = 0x3FF
		}

	case egRelease:
		op.egLevel += uint16(incr)
		if op.egLevel >= 0x3FF {
			op.egLevel = 0x3FF
			op.egState = egReady
		}
	}
}

// sustainLevel converts the 4-bit SL field to a 10-bit attenuation level.
// SL 0-14 = level << 5, SL 15 = 0x3E0.
func sustainLevel(sl uint8) uint16 {
	if sl >= 15 {
		return 0x3E0
	}
	return uint16(sl) << 5
}

// totalLevel returns the combined envelope + TL attenuation, capped at 0x3FF.
func totalLevel(egLevel uint16, tl uint8) uint16 {
	total := egLevel + uint16(tl)<<3
	if total > 0x3FF {
		return 0x3FF
	}
	return total
}
