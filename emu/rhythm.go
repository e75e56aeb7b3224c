package emu

import (
	"encoding/binary"
	"fmt"
)

const (
	numRhythmChannels = 6
	rhythmHeaderSize  = numRhythmChannels * 4

	// One decoder step per 432 chip clocks, three native samples.
	rhythmClockDen = 432
)

// rhythmStepTable is the ADPCM step size for each decoder state.
var rhythmStepTable = [49]int32{
	16, 17, 19, 21, 23, 25, 28, 31, 34, 37, 41, 45, 50, 55, 60, 66,
	73, 80, 88, 97, 107, 118, 130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796, 876, 963, 1060, 1166, 1282, 1411,
	1552,
}

// rhythmIndexAdjust moves the decoder state by nibble magnitude.
var rhythmIndexAdjust = [8]int32{-1, -1, -1, -1, 2, 5, 7, 9}

// RhythmNames are the six instruments in ROM order.
var RhythmNames = [numRhythmChannels]string{"bd", "sd", "top", "hh", "tom", "rim"}

type rhythmChannel struct {
	data  []byte
	pos   int // nibble position
	end   int // nibble end
	state int32
	cur   int32
	prev  int32
	level int32 // 5-bit attenuation
	panL  bool
	panR  bool
	on    bool
}

// rhythmEngine plays the six fixed drum samples from the rhythm ROM.
type rhythmEngine struct {
	rom        []byte
	ch         [numRhythmChannels]rhythmChannel
	totalLevel int32 // 6-bit attenuation
	clockAccum int
}

func newRhythmEngine() *rhythmEngine {
	r := &rhythmEngine{}
	r.reset()
	return r
}

func (r *rhythmEngine) reset() {
	r.totalLevel = 0x3F
	r.clockAccum = 0
	for i := range r.ch {
		c := &r.ch[i]
		*c = rhythmChannel{level: 0x1F, panL: true, panR: true}
		r.bind(i)
	}
}

// loadROM validates and installs a rhythm ROM image: six big-endian
// (offset, size) pairs followed by packed 4-bit sample data.
func (r *rhythmEngine) loadROM(image []byte) error {
	if len(image) < rhythmHeaderSize {
		return fmt.Errorf("rhythm rom: %d bytes is shorter than the header", len(image))
	}
	for i := 0; i < numRhythmChannels; i++ {
		off := int(binary.BigEndian.Uint16(image[i*4:]))
		size := int(binary.BigEndian.Uint16(image[i*4+2:]))
		if off+size > len(image) {
			return fmt.Errorf("rhythm rom: %s sample [%d,%d) beyond image size %d",
				RhythmNames[i], off, off+size, len(image))
		}
	}
	r.rom = append([]byte(nil), image...)
	for i := range r.ch {
		r.ch[i].on = false
		r.bind(i)
	}
	return nil
}

// bind points a channel at its ROM sample.
func (r *rhythmEngine) bind(i int) {
	c := &r.ch[i]
	if len(r.rom) < rhythmHeaderSize {
		c.data = nil
		return
	}
	off := int(binary.BigEndian.Uint16(r.rom[i*4:]))
	size := int(binary.BigEndian.Uint16(r.rom[i*4+2:]))
	c.data = r.rom[off : off+size]
}

// writeRegister handles part 0 registers 0x10-0x1D.
func (r *rhythmEngine) writeRegister(addr, val uint8) {
	switch {
	case addr == 0x10:
		for i := range r.ch {
			if val&(1<<i) == 0 {
				continue
			}
			if val&0x80 != 0 {
				r.ch[i].on = false
			} else {
				r.ch[i].keyOn()
			}
		}
	case addr == 0x11:
		r.totalLevel = int32(val&0x3F) ^ 0x3F
	case addr >= 0x18 && addr <= 0x1D:
		c := &r.ch[addr-0x18]
		c.panL = val&0x80 != 0
		c.panR = val&0x40 != 0
		c.level = int32(val&0x1F) ^ 0x1F
	}
}

func (c *rhythmChannel) keyOn() {
	if len(c.data) == 0 {
		return
	}
	c.pos = 0
	c.end = len(c.data) * 2
	c.state = 0
	c.cur = 0
	c.prev = 0
	c.on = true
}

// decode consumes one nibble.
func (c *rhythmChannel) decode() {
	if c.pos >= c.end {
		c.on = false
		return
	}
	b := c.data[c.pos>>1]
	var n byte
	if c.pos&1 == 0 {
		n = b >> 4
	} else {
		n = b & 0x0F
	}
	c.pos++

	mag := int32(n & 7)
	delta := rhythmStepTable[c.state] * (2*mag + 1) / 8
	if n&8 != 0 {
		delta = -delta
	}
	c.prev = c.cur
	c.cur = min(max(c.cur+delta, -2048), 2047)

	c.state = min(max(c.state+rhythmIndexAdjust[mag], 0), 48)
}

// output rescales the last two decoded samples by the combined level.
func (r *rhythmEngine) output(c *rhythmChannel) int32 {
	s := r.totalLevel + c.level
	if s > 62 {
		return 0
	}
	x := 1 + (s >> 3)
	y := 15 - (s & 7)
	return (((c.cur + c.prev) >> 1) * y >> x) &^ 3
}

// tick advances the decoders and reports each channel's stereo output.
func (r *rhythmEngine) tick(out *[numRhythmChannels][2]int32) {
	r.clockAccum += 144
	for r.clockAccum >= rhythmClockDen {
		r.clockAccum -= rhythmClockDen
		for i := range r.ch {
			if r.ch[i].on {
				r.ch[i].decode()
			}
		}
	}
	for i := range r.ch {
		c := &r.ch[i]
		if !c.on {
			out[i] = [2]int32{}
			continue
		}
		v := r.output(c)
		out[i][0], out[i][1] = 0, 0
		if c.panL {
			out[i][0] = v
		}
		if c.panR {
			out[i][1] = v
		}
	}
}
