package emu

import (
	"errors"
	"math"
)

// ErrSSGQueueFull is returned when more register writes arrive between two
// register-recompute boundaries than the SSG write queue can hold.
var ErrSSGQueueFull = errors.New("emu: ssg write queue full")

const (
	ssgQueueSize = 64
	ssgNumRegs   = 14

	// SSG clocks per native sample are 144/64: the tone counters run at
	// the chip clock divided by 64, the sample clock divides by 144.
	ssgClockNum = 144
	ssgClockDen = 64

	ssgMaxAmplitude = 0x1000
)

// ssgVolumeTable is the 32-step (1.5 dB) envelope attenuation curve. Fixed
// volumes use the odd entries, giving the 16-step (3 dB) curve.
var ssgVolumeTable [32]int32

func init() {
	for i := 1; i < 32; i++ {
		ssgVolumeTable[i] = int32(math.Round(ssgMaxAmplitude * math.Pow(10, float64(i-31)*1.5/20)))
	}
}

type ssgWrite struct {
	reg uint8
	val uint8
}

type ssgTone struct {
	period  uint16 // 12-bit divider
	counter uint16
	out     uint8
	volume  uint8 // low 4 bits fixed volume, bit 4 envelope select
}

// ssgEngine is the square/noise generator: three tone channels, one noise
// LFSR and one shared envelope.
type ssgEngine struct {
	regs [16]uint8
	tone [3]ssgTone

	noisePeriod   uint8
	noiseCounter  uint8
	noisePrescale uint8
	rand          uint32
	noiseOut      uint8

	toneDisable  [3]uint8
	noiseDisable [3]uint8

	envPeriod    uint16
	envCounter   uint32
	envStep      int8
	envAttack    int8
	envHold      bool
	envAlternate bool
	envHolding   bool

	clockAccum int

	queue     [ssgQueueSize]ssgWrite
	queueHead int
	queueLen  int
}

func newSSGEngine() *ssgEngine {
	s := &ssgEngine{}
	s.reset()
	return s
}

func (s *ssgEngine) reset() {
	*s = ssgEngine{rand: 1}
	for i := 0; i < ssgNumRegs; i++ {
		s.applyWrite(uint8(i), 0)
	}
	s.applyWrite(7, 0x3F)
}

// queueFree returns the number of writes that can still be queued.
func (s *ssgEngine) queueFree() int {
	return ssgQueueSize - s.queueLen
}

// write queues a register write for the next register-recompute boundary:
// the clock on which the tone A divider reloads.
func (s *ssgEngine) write(reg, val uint8) error {
	if s.queueLen == ssgQueueSize {
		return ErrSSGQueueFull
	}
	s.queue[(s.queueHead+s.queueLen)%ssgQueueSize] = ssgWrite{reg: reg, val: val}
	s.queueLen++
	return nil
}

// flush replays every queued write in arrival order.
func (s *ssgEngine) flush() {
	for s.queueLen > 0 {
		w := s.queue[s.queueHead]
		s.queueHead = (s.queueHead + 1) % ssgQueueSize
		s.queueLen--
		s.applyWrite(w.reg, w.val)
	}
}

func (s *ssgEngine) applyWrite(reg, val uint8) {
	if reg >= ssgNumRegs {
		return
	}
	s.regs[reg] = val
	switch reg {
	case 0, 1, 2, 3, 4, 5:
		ch := reg >> 1
		s.tone[ch].period = uint16(s.regs[ch*2]) | uint16(s.regs[ch*2+1]&0x0F)<<8
	case 6:
		s.noisePeriod = val & 0x1F
	case 7:
		for ch := 0; ch < 3; ch++ {
			s.toneDisable[ch] = (val >> ch) & 1
			s.noiseDisable[ch] = (val >> (ch + 3)) & 1
		}
	case 8, 9, 10:
		s.tone[reg-8].volume = val & 0x1F
	case 11, 12:
		s.envPeriod = uint16(s.regs[11]) | uint16(s.regs[12])<<8
	case 13:
		s.writeEnvelopeShape(val)
	}
}

// writeEnvelopeShape restarts the envelope with a new continue/attack/
// alternate/hold shape.
func (s *ssgEngine) writeEnvelopeShape(val uint8) {
	if val&0x04 != 0 {
		s.envAttack = 0x1F
	} else {
		s.envAttack = 0
	}
	if val&0x08 == 0 {
		// without continue the envelope ends at 0 after one ramp
		s.envHold = true
		s.envAlternate = s.envAttack != 0
	} else {
		s.envHold = val&0x01 != 0
		s.envAlternate = val&0x02 != 0
	}
	s.envStep = 0x1F
	s.envCounter = 0
	s.envHolding = false
}

func (s *ssgEngine) lfsr() {
	if (s.rand+1)&2 != 0 {
		s.noiseOut ^= 1
	}
	s.rand = (((s.rand & 1) ^ ((s.rand >> 3) & 1)) << 16) | (s.rand >> 1)
}

// clock runs one SSG input clock. Queued writes are replayed after a
// clock that reloaded the tone A divider, so they take effect with the
// next tone period.
func (s *ssgEngine) clock() {
	recompute := false
	for i := range s.tone {
		t := &s.tone[i]
		t.counter++
		if t.counter >= max(t.period, 1) {
			t.counter = 0
			t.out ^= 1
			recompute = recompute || i == 0
		}
	}
	if recompute {
		defer s.flush()
	}

	// Noise runs at half the tone clock.
	s.noisePrescale ^= 1
	if s.noisePrescale == 0 {
		s.noiseCounter++
		if s.noiseCounter >= max(s.noisePeriod, 1) {
			s.noiseCounter = 0
			s.lfsr()
		}
	}

	if s.envHolding {
		return
	}
	s.envCounter++
	if s.envCounter >= uint32(max(s.envPeriod, 1)) {
		s.envCounter = 0
		s.envStep--
		if s.envStep < 0 {
			if s.envHold {
				if s.envAlternate {
					s.envAttack ^= 0x1F
				}
				s.envHolding = true
				s.envStep = 0
			} else {
				if s.envAlternate {
					s.envAttack ^= 0x1F
				}
				s.envStep &= 0x1F
			}
		}
	}
}

// level returns the current amplitude of a channel's volume setting.
func (s *ssgEngine) level(ch int) int32 {
	v := s.tone[ch].volume
	if v&0x10 != 0 {
		return ssgVolumeTable[s.envStep^s.envAttack]
	}
	if v&0x0F == 0 {
		return 0
	}
	return ssgVolumeTable[(v&0x0F)*2+1]
}

// tick advances the generator by one native sample and reports each
// channel's output.
func (s *ssgEngine) tick(out *[3]int32) {
	s.clockAccum += ssgClockNum
	for s.clockAccum >= ssgClockDen {
		s.clockAccum -= ssgClockDen
		s.clock()
	}
	for ch := 0; ch < 3; ch++ {
		gate := (s.tone[ch].out | s.toneDisable[ch]) & (s.noiseOut | s.noiseDisable[ch])
		if gate != 0 {
			out[ch] = s.level(ch)
		} else {
			out[ch] = 0
		}
	}
}
