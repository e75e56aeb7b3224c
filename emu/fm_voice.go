package emu

import (
	"github.com/user-none/emtowns/emu/log"
)

const (
	numFMChannels    = 6
	numFMInstruments = 128
	fmInstrumentSize = 48

	fmFreqFloor = 616
	fmFreqCeil  = 1232

	// Shadow bytes above the chip's register map, per part.
	auxCarrierTL = 0xC0 // original TL, 4 per channel
	auxLevel     = 0xD0 // channel level, 1 per channel
	auxVelocity  = 0xE0 // scaled key velocity, 1 per channel
)

// fmFreqTable holds the F-numbers for the twelve semitones above the
// block's base C (616).
var fmFreqTable = [12]int{0x28C, 0x2B4, 0x2DC, 0x30A, 0x338, 0x368, 0x39C, 0x3D4, 0x40E, 0x44A, 0x48C, 0x4D0}

// carrierTable marks the carrier slots of each algorithm. Shifting left
// once per register slot carries bit 8 out for every carrier.
var carrierTable = [8]uint16{0x10, 0x10, 0x10, 0x10, 0x30, 0x70, 0x70, 0xF0}

// DefaultFMInstrument is loaded into every program on reset: a single
// sine carrier on slot 4.
var DefaultFMInstrument = [fmInstrumentSize]byte{
	'd', 'e', 'f', 'a', 'u', 'l', 't', 0,
	0x01, 0x01, 0x01, 0x01, // DT/MUL
	0x7F, 0x7F, 0x7F, 0x00, // TL
	0x1F, 0x1F, 0x1F, 0x1F, // KS/AR
	0x00, 0x00, 0x00, 0x00, // AM/DR
	0x00, 0x00, 0x00, 0x00, // SR
	0x0F, 0x0F, 0x0F, 0x0F, // SL/RR
	0x07, // FB/ALG
	0x00, // AMS/PMS
}

func isCarrier(alg uint8, slot int) bool {
	c := carrierTable[alg&7]
	for i := 0; i <= slot; i++ {
		c += c
	}
	return c&0x100 != 0
}

// scaleTL folds key velocity and channel level into a carrier's total level.
func scaleTL(orig, velo, level uint8) uint8 {
	vol := ((int(orig^0x7F) * int(velo)) >> 7) + 1
	vol = (vol * int(level)) >> 7
	return uint8(vol&0x7F) ^ 0x7F
}

// fmNoteFreq converts a stored note (0 = lowest C) and pitch bend to an
// F-number and block, octave shifting at the table edges.
func fmNoteFreq(note uint8, pitch int16) (int, int) {
	frq, block := fmFreqFloor, 0
	if note > 0 {
		frq = fmFreqTable[(note-1)%12]
		block = int(note-1) / 12
	}
	if pitch == 0 {
		return frq, block
	}

	p := int(pitch)
	if p < 0 {
		frq -= (-p * frq) >> 16
		if frq < fmFreqFloor {
			if block == 0 {
				frq = fmFreqFloor
			} else {
				frq += fmFreqFloor
				block--
			}
		}
	} else {
		frq += (p * frq) >> 16
		if frq > fmFreqCeil {
			if block == 7 {
				frq = fmFreqCeil
			} else {
				frq -= fmFreqFloor
				block++
			}
		}
	}
	return frq, block
}

// fmVoices is the FM voice layer: it turns note, level, pan and program
// commands into register writes and keeps the register shadow.
type fmVoices struct {
	shadow      [2][256]uint8
	instruments [numFMInstruments][fmInstrumentSize]byte
	playing     uint8
	note        [numFMChannels]uint8
	pitch       [numFMChannels]int16
	program     [numFMChannels]uint8

	bus *chipBus
}

func newFMVoices(bus *chipBus) *fmVoices {
	v := &fmVoices{bus: bus}
	v.reset()
	return v
}

func fmPart(ch int) (int, uint8) {
	return ch / 3, uint8(ch % 3)
}

func (v *fmVoices) writeRaw(part int, reg, val uint8) {
	v.bus.writeRaw(part, reg, val)
}

func (v *fmVoices) writeShadowed(part int, reg, val uint8) {
	v.shadow[part][reg] = val
	v.bus.writeRaw(part, reg, val)
}

func (v *fmVoices) readShadowed(part int, reg uint8) uint8 {
	return v.shadow[part][reg]
}

// reset silences every channel and rewrites the whole register file.
func (v *fmVoices) reset() {
	v.playing = 0
	for i := range v.instruments {
		v.instruments[i] = DefaultFMInstrument
	}
	v.shadow = [2][256]uint8{}

	for reg := 0; reg < ssgNumRegs; reg++ {
		v.writeShadowed(0, uint8(reg), 0)
	}
	v.writeShadowed(0, 0x07, 0x3F)
	v.writeShadowed(0, 0x22, 0)
	v.writeShadowed(0, 0x27, 0)
	v.writeRaw(0, 0x27, 0x30)

	for part := 0; part < 2; part++ {
		for reg := 0x30; reg <= 0xB6; reg++ {
			v.writeShadowed(part, uint8(reg), 0)
		}
		for c := uint8(0); c < 3; c++ {
			v.writeShadowed(part, 0xB4+c, 0xC0)
			v.writeRaw(0, 0x28, c|uint8(part)<<2)
		}
	}

	for ch := 0; ch < numFMChannels; ch++ {
		part, c := fmPart(ch)
		v.note[ch] = 0
		v.pitch[ch] = 0
		v.shadow[part][auxVelocity+c] = 127
		v.shadow[part][auxLevel+c] = 127
		v.setInstrument(ch, 0)
	}
}

func (v *fmVoices) loadInstrument(program int, data []byte) Result {
	if program < 0 || program >= numFMInstruments {
		return ResultInvalidParam
	}
	if len(data) < fmInstrumentSize {
		return ResultNoData
	}
	copy(v.instruments[program][:], data)
	return ResultOK
}

func (v *fmVoices) setInstrument(ch, program int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	if program < 0 || program >= numFMInstruments {
		return ResultInvalidParam
	}
	v.program[ch] = uint8(program)
	part, c := fmPart(ch)
	ins := &v.instruments[program]

	for slot := uint8(0); slot < 4; slot++ {
		off := slot*4 + c
		v.writeShadowed(part, 0x30+off, ins[8+slot])
		v.shadow[part][auxCarrierTL+c*4+slot] = ins[12+slot] & 0x7F
		v.writeShadowed(part, 0x50+off, ins[16+slot])
		v.writeShadowed(part, 0x60+off, ins[20+slot])
		v.writeShadowed(part, 0x70+off, ins[24+slot])
		v.writeShadowed(part, 0x80+off, ins[28+slot])
	}
	v.writeShadowed(part, 0xB0+c, ins[32])
	v.writeShadowed(part, 0xB4+c, v.shadow[part][0xB4+c]&0xC0|ins[33]&0x37)
	v.updateLevels(ch)
	return ResultOK
}

// updateLevels rewrites the four TL registers of a channel, scaling the
// carriers by velocity and channel level.
func (v *fmVoices) updateLevels(ch int) {
	part, c := fmPart(ch)
	alg := v.shadow[part][0xB0+c] & 7
	velo := v.shadow[part][auxVelocity+c]
	level := v.shadow[part][auxLevel+c]
	for slot := 0; slot < 4; slot++ {
		tl := v.shadow[part][auxCarrierTL+c*4+uint8(slot)]
		if isCarrier(alg, slot) {
			tl = scaleTL(tl, velo, level)
		}
		v.writeShadowed(part, 0x40+uint8(slot)*4+c, tl)
	}
}

func (v *fmVoices) writeFreq(ch int) {
	part, c := fmPart(ch)
	frq, block := fmNoteFreq(v.note[ch], v.pitch[ch])
	v.writeShadowed(part, 0xA4+c, uint8(block<<3)|uint8(frq>>8))
	v.writeShadowed(part, 0xA0+c, uint8(frq))
}

func keyRegister(ch int) uint8 {
	part, c := fmPart(ch)
	return c | uint8(part)<<2
}

func (v *fmVoices) keyOn(ch, note, velo int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	if note < 12 || note > 107 || velo&^0x7F != 0 {
		return ResultInvalidParam
	}
	if v.playing&(1<<ch) != 0 {
		return ResultBusy
	}
	v.playing |= 1 << ch
	v.note[ch] = uint8(note - 12)
	v.writeFreq(ch)

	part, c := fmPart(ch)
	v.shadow[part][auxVelocity+c] = uint8(velo>>2) + 96
	v.updateLevels(ch)
	for slot := uint8(0); slot < 4; slot++ {
		reg := 0x80 + slot*4 + c
		v.writeRaw(part, reg, v.shadow[part][reg])
	}

	key := keyRegister(ch)
	v.writeRaw(0, 0x28, key)
	v.writeRaw(0, 0x28, key|0xF0)
	log.ModFM.Debugf("key on ch=%d note=%d velo=%d", ch, note, velo)
	return ResultOK
}

func (v *fmVoices) keyOff(ch int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	v.playing &^= 1 << ch
	v.writeRaw(0, 0x28, keyRegister(ch))
	return ResultOK
}

// channelOff forces the fastest release and keys the channel off. The
// shadow keeps the instrument's own release rate for the next key-on.
func (v *fmVoices) channelOff(ch int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	part, c := fmPart(ch)
	for slot := uint8(0); slot < 4; slot++ {
		reg := 0x80 + slot*4 + c
		v.writeRaw(part, reg, v.shadow[part][reg]|0x0F)
	}
	return v.keyOff(ch)
}

func (v *fmVoices) setPitch(ch, pitch int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	v.pitch[ch] = int16(clampPitch(pitch))
	v.writeFreq(ch)
	return ResultOK
}

func (v *fmVoices) setLevel(ch, level int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	if level < 0 || level > 127 {
		return ResultInvalidParam
	}
	part, c := fmPart(ch)
	v.shadow[part][auxLevel+c] = uint8(level)
	v.updateLevels(ch)
	return ResultOK
}

func (v *fmVoices) setPan(ch, pan int) Result {
	if ch < 0 || ch >= numFMChannels {
		return ResultInvalidChannel
	}
	if pan < 0 || pan > 127 {
		return ResultInvalidParam
	}
	var bits uint8
	switch {
	case pan < 0x40:
		bits = 0x80
	case pan > 0x40:
		bits = 0x40
	default:
		bits = 0xC0
	}
	part, c := fmPart(ch)
	v.writeShadowed(part, 0xB4+c, v.shadow[part][0xB4+c]&0x3F|bits)
	return ResultOK
}

// setTimer loads a timer period and starts it, or stops it.
func (v *fmVoices) setTimer(b, enable bool, tempo int) Result {
	ctl := v.shadow[0][0x27]
	switch {
	case !b && enable:
		if tempo < 0 || tempo > 0x3FF {
			return ResultInvalidParam
		}
		v.writeShadowed(0, 0x25, uint8(tempo&3))
		v.writeShadowed(0, 0x24, uint8(tempo>>2))
		v.writeShadowed(0, 0x27, ctl|0x05)
	case !b:
		v.writeShadowed(0, 0x27, ctl&0xFA|0x10)
	case enable:
		if tempo < 0 || tempo > 0xFF {
			return ResultInvalidParam
		}
		v.writeShadowed(0, 0x26, uint8(tempo))
		v.writeShadowed(0, 0x27, ctl|0x0A)
	default:
		v.writeShadowed(0, 0x27, ctl&0xF5|0x20)
	}
	return ResultOK
}

// enableTimer starts a timer with its current period and clears its flag.
func (v *fmVoices) enableTimer(b bool) {
	if b {
		v.writeShadowed(0, 0x27, v.shadow[0][0x27]|0x2A)
	} else {
		v.writeShadowed(0, 0x27, v.shadow[0][0x27]|0x15)
	}
}
