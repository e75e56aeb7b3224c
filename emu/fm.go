package emu

// Envelope states. An operator only leaves egReady on key-on and returns
// to it once a release has fully decayed.
const (
	egReady   = 0
	egAttack  = 1
	egDecay   = 2
	egSustain = 3
	egRelease = 4
)

// fmOperator holds decoded register state for one of four operators in a channel.
type fmOperator struct {
	// Register fields
	dt  uint8 // Detune (3-bit: bit2=sign, bits1-0=value)
	mul uint8 // Frequency multiplier (4-bit, 0=x0.5, 1-15=x1..x15)
	tl  uint8 // Total level / attenuation (7-bit, 0=max vol, 127=min)
	ks  uint8 // Key scale (2-bit)
	ar  uint8 // Attack rate (5-bit)
	dr  uint8 // Decay rate (5-bit)
	sr  uint8 // Sustain rate (5-bit)
	sl  uint8 // Sustain level (4-bit)
	rr  uint8 // Release rate (4-bit)
	am  bool  // AM enable (amplitude modulation from LFO)

	// Phase generator state
	phaseCounter uint32 // 20-bit phase accumulator
	phaseInc     uint32 // 20-bit phase increment (recomputed on freq change)

	// Envelope generator state
	egState uint8  // egReady .. egRelease
	egLevel uint16 // 10-bit attenuation (0=full vol, 0x3FF=silent)
	keyOn   bool   // Current key-on state

	// egRates caches the key-scaled (rate, shift) pair for each
	// non-ready state, indexed by egState.
	egRates [5]egRate

	prevOut [2]int16 // Previous two outputs (for feedback)
	keyCode uint8    // 5-bit key code for rate scaling
}

// fmChannel holds decoded register state for one of six FM channels.
type fmChannel struct {
	op [4]fmOperator

	fNum  uint16 // 11-bit F-number
	block uint8  // 3-bit block (octave)

	algorithm uint8
	feedback  uint8
	panL      bool
	panR      bool
	ams       uint8 // 2-bit AM sensitivity
	fms       uint8 // 3-bit FM sensitivity
}

// fmChip is the FM half of the sound chip: six 4-operator channels split
// over two register parts, the LFO, and the two interval timers.
type fmChip struct {
	ch [6]fmChannel

	lfoEnable bool
	lfoFreq   uint8
	lfoCnt    uint16
	lfoStep   uint8
	lfoAMOut  uint8

	timerA       timer
	timerB       timer
	timerALoad   bool
	timerBLoad   bool
	timerAEnable bool
	timerBEnable bool
	timerAOver   bool
	timerBOver   bool

	// Timer B sub-counter (ticks every 16 sample clocks)
	timerBSubCount uint8

	// Envelope generator global counter
	egCounter uint16 // 12-bit global envelope counter
	egClock   uint8  // Divider: counts 0,1,2 then wraps (step every 3 samples)
}

func newFMChip() *fmChip {
	c := &fmChip{}
	c.reset()
	return c
}

// reset returns every operator to the ready state at full attenuation
// with both pan outputs enabled.
func (c *fmChip) reset() {
	*c = fmChip{}
	for ch := range c.ch {
		c.ch[ch].panL = true
		c.ch[ch].panR = true
		for op := range c.ch[ch].op {
			o := &c.ch[ch].op[op]
			o.egState = egReady
			o.egLevel = 0x3FF
			o.refreshRates()
		}
	}
}

// writeRegister dispatches a register write to the appropriate handler.
// part: 0 = channels 0-2, 1 = channels 3-5. Registers below 0x20 belong
// to the SSG and rhythm units and are routed before reaching here.
func (c *fmChip) writeRegister(part int, addr, val uint8) {
	switch {
	case addr < 0x20:
		return
	case addr < 0x30:
		if part == 0 {
			c.writeGlobalRegister(addr, val)
		}
	case addr < 0xA0:
		c.writeOperatorRegister(part, addr, val)
	case addr <= 0xB6:
		c.writeChannelRegister(part, addr, val)
	}
}

func (c *fmChip) writeGlobalRegister(addr, val uint8) {
	switch addr {
	case 0x22:
		c.lfoEnable = val&0x08 != 0
		c.lfoFreq = val & 0x07
		if !c.lfoEnable {
			c.lfoStep = 0
			c.lfoCnt = 0
		}
	case 0x24:
		// Timer A MSB (high 8 bits of 10-bit period)
		c.timerA.period = (c.timerA.period & 0x003) | (uint16(val) << 2)
	case 0x25:
		// Timer A LSB (low 2 bits of 10-bit period)
		c.timerA.period = (c.timerA.period & 0x3FC) | uint16(val&0x03)
	case 0x26:
		c.timerB.period = uint16(val)
	case 0x27:
		c.writeTimerControl(val)
	case 0x28:
		c.writeKeyOnOff(val)
	}
}

// operatorOrder maps register slot bits to operator index.
// Register order is S1(0), S3(1), S2(2), S4(3); operators are stored S1..S4.
var operatorOrder = [4]int{0, 2, 1, 3}

func (c *fmChip) writeOperatorRegister(part int, addr, val uint8) {
	chSlot := int(addr & 0x03)
	if chSlot == 3 {
		return
	}
	opIdx := operatorOrder[(addr>>2)&0x03]
	chIdx := chSlot + part*3

	op := &c.ch[chIdx].op[opIdx]

	switch addr & 0xF0 {
	case 0x30:
		op.dt = (val >> 4) & 0x07
		op.mul = val & 0x0F
		c.updatePhaseIncrement(chIdx, opIdx)
	case 0x40:
		op.tl = val & 0x7F
	case 0x50:
		op.ks = (val >> 6) & 0x03
		op.ar = val & 0x1F
		op.refreshRates()
	case 0x60:
		op.am = val&0x80 != 0
		op.dr = val & 0x1F
		op.refreshRates()
	case 0x70:
		op.sr = val & 0x1F
		op.refreshRates()
	case 0x80:
		op.sl = (val >> 4) & 0x0F
		op.rr = val & 0x0F
		op.refreshRates()
	}
}

func (c *fmChip) writeChannelRegister(part int, addr, val uint8) {
	chSlot := int(addr & 0x03)
	if chSlot == 3 {
		return
	}
	ch := &c.ch[chSlot+part*3]

	switch {
	case addr >= 0xA0 && addr <= 0xA2:
		ch.fNum = (ch.fNum & 0x700) | uint16(val)
		c.updateChannelFrequency(chSlot + part*3)
	case addr >= 0xA4 && addr <= 0xA6:
		// Latched until the LSB write
		ch.block = (val >> 3) & 0x07
		ch.fNum = (ch.fNum & 0x0FF) | (uint16(val&0x07) << 8)
	case addr >= 0xB0 && addr <= 0xB2:
		ch.algorithm = val & 0x07
		ch.feedback = (val >> 3) & 0x07
	case addr >= 0xB4 && addr <= 0xB6:
		ch.panL = val&0x80 != 0
		ch.panR = val&0x40 != 0
		ch.ams = (val >> 4) & 0x03
		ch.fms = val & 0x07
	}
}

// writeKeyOnOff handles the key register (0x28).
// val bits 0-1: channel within part, bit 2: part, bits 4-7: operator mask.
func (c *fmChip) writeKeyOnOff(val uint8) {
	chLow := int(val & 0x03)
	if chLow >= 3 {
		return
	}
	chIdx := chLow
	if val&0x04 != 0 {
		chIdx += 3
	}

	ch := &c.ch[chIdx]
	for i := 0; i < 4; i++ {
		on := val&(0x10<<uint(i)) != 0
		op := &ch.op[i]
		if on && !op.keyOn {
			op.keyOn = true
			op.phaseCounter = 0
			op.startAttack()
		} else if !on && op.keyOn {
			op.keyOn = false
			if op.egState != egReady {
				op.egState = egRelease
			}
		}
	}
}

// updatePhaseIncrement recomputes an operator's phase increment.
func (c *fmChip) updatePhaseIncrement(chIdx, opIdx int) {
	ch := &c.ch[chIdx]
	op := &ch.op[opIdx]
	op.phaseInc = computePhaseIncrement(ch.fNum, ch.block, op.keyCode, op.dt, op.mul)
}

// updateChannelFrequency recomputes phase increments for all operators in a
// channel. A changed key code also refreshes the key-scaled envelope rates.
func (c *fmChip) updateChannelFrequency(chIdx int) {
	ch := &c.ch[chIdx]
	kc := computeKeyCode(ch.fNum, ch.block)
	for i := range ch.op {
		if ch.op[i].keyCode != kc {
			ch.op[i].keyCode = kc
			ch.op[i].refreshRates()
		}
		c.updatePhaseIncrement(chIdx, i)
	}
}

// computeKeyCode computes the 5-bit key code from F-number and block.
// keyCode = [block(3), F11, (F11&(F10|F9|F8)) | (!F11&F10&F9&F8)]
func computeKeyCode(fNum uint16, block uint8) uint8 {
	f11 := (fNum >> 10) & 1
	f10 := (fNum >> 9) & 1
	f9 := (fNum >> 8) & 1
	f8 := (fNum >> 7) & 1

	bit1 := f11
	bit0 := (f11 & (f10 | f9 | f8)) | ((1 ^ f11) & f10 & f9 & f8)

	return (block << 2) | uint8(bit1<<1) | uint8(bit0)
}

// tick advances the FM unit by one native sample and returns its stereo
// output. Timers are stepped separately by the synth so that their
// callbacks run before the channels are evaluated.
func (c *fmChip) tick(out *[6][2]int32) {
	c.stepLFO()

	// The envelope generator runs on a 3-sample sub-cycle.
	c.egClock++
	if c.egClock >= 3 {
		c.egClock = 0
		c.egCounter++
		if c.egCounter >= 4096 {
			c.egCounter = 1 // 12-bit counter wraps to 1 (skips 0)
		}
		c.stepEnvelopes()
	}

	for ch := 0; ch < 6; ch++ {
		l, r := c.evaluateChannel(ch)
		out[ch][0] = int32(l)
		out[ch][1] = int32(r)
	}
}
