package emu

import "math"

// sineTable is a quarter-sine log table: 256 entries of -log2(sin((2i+1)/512 * pi/2))
// in 4.8 fixed-point.
var sineTable [256]uint16

// pow2Table holds 2^(1-(i+1)/256) scaled to 11 bits, converting log-domain
// attenuation back to linear amplitude.
var pow2Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		angle := float64(2*i+1) / 512.0 * math.Pi / 2.0
		sineTable[i] = uint16(math.Round(-math.Log2(math.Sin(angle)) * 256.0))
	}
	for i := 0; i < 256; i++ {
		val := math.Pow(2.0, 1.0-float64(i+1)/256.0) * 1024.0
		pow2Table[i] = uint16(math.Round(val))
	}
}

// computeOperatorOutput computes the signed 14-bit output of an operator
// given its phase (with modulation) and envelope attenuation.
func computeOperatorOutput(phase uint32, atten uint16) int16 {
	if atten >= envSilent {
		return 0
	}

	// Top 10 bits of the 20-bit phase
	phaseIdx := (phase >> 10) & 0x3FF
	sign := phaseIdx & 0x200
	mirror := phaseIdx & 0x100
	idx := phaseIdx & 0xFF
	if mirror != 0 {
		idx = 0xFF - idx
	}

	// 4.8 fixed point: sine attenuation plus envelope << 2
	total := uint32(sineTable[idx]) + (uint32(atten) << 2)

	linear := uint32(pow2Table[total&0xFF]) << 2
	linear >>= total >> 8

	if sign != 0 {
		return -int16(linear)
	}
	return int16(linear)
}

// evaluateChannel computes one stereo sample for a channel.
func (c *fmChip) evaluateChannel(chIdx int) (int16, int16) {
	ch := &c.ch[chIdx]

	// PM modifies the F-number proportionally, then the increment is
	// recomputed with the original block, key code, detune and multiplier.
	if ch.fms != 0 && c.lfoEnable {
		for i := range ch.op {
			op := &ch.op[i]
			pmDelta := c.lfoPMFnumDelta(ch.fms, ch.fNum)
			modFnum12 := uint32(int32(ch.fNum)<<1+pmDelta) & 0xFFF
			inc := computePMPhaseIncrement(modFnum12, ch.block, op.keyCode, op.dt, op.mul)
			op.phaseCounter = (op.phaseCounter + inc) & 0xFFFFF
		}
	} else {
		for i := range ch.op {
			stepPhase(&ch.op[i])
		}
	}

	amAtten := c.lfoAMAttenuation(ch.ams)

	var out int16
	switch ch.algorithm {
	case 0:
		out = evalAlgo0(ch, amAtten)
	case 1:
		out = evalAlgo1(ch, amAtten)
	case 2:
		out = evalAlgo2(ch, amAtten)
	case 3:
		out = evalAlgo3(ch, amAtten)
	case 4:
		out = evalAlgo4(ch, amAtten)
	case 5:
		out = evalAlgo5(ch, amAtten)
	case 6:
		out = evalAlgo6(ch, amAtten)
	case 7:
		out = evalAlgo7(ch, amAtten)
	}

	var l, r int16
	if ch.panL {
		l = out
	}
	if ch.panR {
		r = out
	}
	return l, r
}

// feedback computes the self-feedback modulation for operator 1.
func feedback(op *fmOperator, fbLevel uint8) int32 {
	if fbLevel == 0 {
		return 0
	}
	return (int32(op.prevOut[0]) + int32(op.prevOut[1])) >> (10 - uint(fbLevel))
}

// opOut computes an operator's output with optional phase modulation and
// stores the history used for feedback. modulation is in the 10-bit phase
// index domain.
func opOut(op *fmOperator, modulation int32, amAtten uint16) int16 {
	phase := op.phaseCounter + uint32(modulation<<10)
	atten := totalLevel(op.egLevel, op.tl)
	if op.am {
		atten += amAtten
		if atten > 0x3FF {
			atten = 0x3FF
		}
	}
	out := computeOperatorOutput(phase, atten)

	op.prevOut[1] = op.prevOut[0]
	op.prevOut[0] = out
	return out
}

// clampAccum clamps a carrier sum to the signed 14-bit output range.
func clampAccum(v int32) int32 {
	if v > 0x1FFF {
		return 0x1FFF
	}
	if v < -0x2000 {
		return -0x2000
	}
	return v
}

// Algorithm 0: OP1->OP2->OP3->OP4
func evalAlgo0(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s2 := opOut(&ch.op[1], int32(s1)>>1, amAtten)
	s3 := opOut(&ch.op[2], int32(s2)>>1, amAtten)
	return opOut(&ch.op[3], int32(s3)>>1, amAtten)
}

// Algorithm 1: (OP1+OP2)->OP3->OP4
func evalAlgo1(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s2 := opOut(&ch.op[1], 0, amAtten)
	s3 := opOut(&ch.op[2], (int32(s1)+int32(s2))>>1, amAtten)
	return opOut(&ch.op[3], int32(s3)>>1, amAtten)
}

// Algorithm 2: OP1+(OP2->OP3)->OP4
func evalAlgo2(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s2 := opOut(&ch.op[1], 0, amAtten)
	s3 := opOut(&ch.op[2], int32(s2)>>1, amAtten)
	return opOut(&ch.op[3], (int32(s1)+int32(s3))>>1, amAtten)
}

// Algorithm 3: (OP1->OP2)+OP3->OP4
func evalAlgo3(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s2 := opOut(&ch.op[1], int32(s1)>>1, amAtten)
	s3 := opOut(&ch.op[2], 0, amAtten)
	return opOut(&ch.op[3], (int32(s2)+int32(s3))>>1, amAtten)
}

// Algorithm 4: (OP1->OP2) + (OP3->OP4)
func evalAlgo4(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s3 := opOut(&ch.op[2], 0, amAtten)
	s2 := opOut(&ch.op[1], int32(s1)>>1, amAtten)
	s4 := opOut(&ch.op[3], int32(s3)>>1, amAtten)
	return int16(clampAccum(int32(s2) + int32(s4)))
}

// Algorithm 5: OP1->OP2+OP3+OP4
func evalAlgo5(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	mod := int32(s1) >> 1
	s3 := opOut(&ch.op[2], mod, amAtten)
	s2 := opOut(&ch.op[1], mod, amAtten)
	s4 := opOut(&ch.op[3], mod, amAtten)
	out := clampAccum(int32(s2) + int32(s3))
	return int16(clampAccum(out + int32(s4)))
}

// Algorithm 6: OP1->OP2 + OP3 + OP4
func evalAlgo6(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s3 := opOut(&ch.op[2], 0, amAtten)
	s2 := opOut(&ch.op[1], int32(s1)>>1, amAtten)
	s4 := opOut(&ch.op[3], 0, amAtten)
	out := clampAccum(int32(s2) + int32(s3))
	return int16(clampAccum(out + int32(s4)))
}

// Algorithm 7: OP1 + OP2 + OP3 + OP4
func evalAlgo7(ch *fmChannel, amAtten uint16) int16 {
	s1 := opOut(&ch.op[0], feedback(&ch.op[0], ch.feedback), amAtten)
	s3 := opOut(&ch.op[2], 0, amAtten)
	s2 := opOut(&ch.op[1], 0, amAtten)
	s4 := opOut(&ch.op[3], 0, amAtten)
	out := clampAccum(int32(s1) + int32(s2))
	out = clampAccum(out + int32(s3))
	return int16(clampAccum(out + int32(s4)))
}
