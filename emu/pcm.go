package emu

import (
	"encoding/binary"
	"math"

	"github.com/user-none/emtowns/emu/log"
)

const (
	numPCMChannels    = 8
	numPCMInstruments = 32
	pcmInstrumentSize = 128
	pcmChannelBase    = 0x40

	// Playback positions carry 11 fractional bits.
	pcmFracBits = 11
	pcmMaxStep  = 1 << pcmFracBits

	pcmPitchNeutral = 0x4000
)

// pcmPhaseUp[i] is (2^(i/12) - 1) in 16.16 and pcmPhaseDown[i] is 2^(-i/12)
// in 16.16, for semitone distances 0-127.
var (
	pcmPhaseUp   [128]int64
	pcmPhaseDown [128]int64
)

func init() {
	for i := range pcmPhaseUp {
		pcmPhaseUp[i] = int64(math.Round((math.Pow(2, float64(i)/12) - 1) * 65536))
		pcmPhaseDown[i] = int64(math.Round(math.Pow(2, -float64(i)/12) * 65536))
	}
}

// silenceInstrument is the pattern every PCM program is reset to: all
// breakpoints at 127 and everything else zero.
var silenceInstrument = func() [pcmInstrumentSize]byte {
	var ins [pcmInstrumentSize]byte
	for i := 0; i < 8; i++ {
		ins[16+2*i] = 127
	}
	return ins
}()

// pcmChannel is one sample-playback voice.
type pcmChannel struct {
	program uint8
	level   uint8 // 0-127
	panL    uint8 // 0-15
	panR    uint8 // 0-15
	pitch   int16

	note uint8
	velo uint8

	data      []byte
	pos       uint32
	stepNote  uint32
	step      uint32
	loopStart uint32
	loopEnd   uint32
	loopLen   uint32
	waveID    int32

	env pcmEnvelope

	reserved     bool
	keyPressed   bool
	activeKey    bool
	activeEffect bool
	activeOutput bool

	effect [effectBufferLen]byte
}

// pcmEngine drives the eight PCM channels from the shared wave-table
// store and the PCM instrument bank.
type pcmEngine struct {
	ch          [numPCMChannels]pcmChannel
	instruments [numPCMInstruments][pcmInstrumentSize]byte
	numReserved int
	waves       *WaveTableStore
	outRate     int64
}

func newPCMEngine(waves *WaveTableStore, outRate int) *pcmEngine {
	e := &pcmEngine{waves: waves, outRate: int64(outRate)}
	e.reset()
	return e
}

func (e *pcmEngine) reset() {
	e.numReserved = 0
	for i := range e.instruments {
		e.instruments[i] = silenceInstrument
	}
	e.waves.Clear()
	for i := range e.ch {
		c := &e.ch[i]
		c.stop()
		c.reserved = false
		c.program = 0
		c.level = 127
		c.pitch = 0
		c.panL, c.panR = 15, 15
	}
}

// pcmIndex converts a 0x40-based channel id to a channel index.
func pcmIndex(chn int) (int, Result) {
	if chn < pcmChannelBase || chn >= pcmChannelBase+numPCMChannels {
		return 0, ResultInvalidChannel
	}
	return chn - pcmChannelBase, ResultOK
}

func (c *pcmChannel) stop() {
	c.keyPressed = false
	c.activeKey = false
	c.activeEffect = false
	c.activeOutput = false
	c.env.state = pcmEnvReady
	c.env.level = 0
	c.data = nil
}

// lookup resolves the envelope set and wave table for a note.
func (e *pcmEngine) lookup(program, note uint8) (envelopeParams, *WaveTable, Result) {
	ins := &e.instruments[program]
	for i := 0; i < 8; i++ {
		bp := binary.LittleEndian.Uint16(ins[16+2*i:])
		if uint16(note) > bp {
			continue
		}
		id := int32(binary.LittleEndian.Uint32(ins[32+4*i:]))
		w, ok := e.waves.Lookup(id)
		if !ok {
			return envelopeParams{}, nil, ResultNoWaveTable
		}
		return parseEnvelopeParams(ins[64+8*i:]), w, ResultOK
	}
	return envelopeParams{}, nil, ResultNoInstrument
}

func (e *pcmEngine) keyOn(chn int, note, velo int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	if note&^0x7F != 0 || velo&^0x7F != 0 {
		return ResultInvalidParam
	}
	c := &e.ch[idx]
	if c.reserved && c.keyPressed {
		return ResultBusy
	}
	params, w, res := e.lookup(c.program, uint8(note))
	if res != ResultOK {
		return res
	}

	c.waveID = w.ID
	c.start(e.waves.samples(w), w.WaveHeader, uint8(note), uint8(velo), params, e.outRate)
	log.ModPCM.Debugf("key on ch=%d note=%d velo=%d wave=%d", idx, note, velo, w.ID)
	return ResultOK
}

func (e *pcmEngine) keyOff(chn int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	c := &e.ch[idx]
	c.keyPressed = false
	c.env.release()
	if c.env.state == pcmEnvReady {
		c.activeOutput = false
		c.activeKey = false
	}
	return ResultOK
}

func (e *pcmEngine) channelOff(chn int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	e.ch[idx].stop()
	return ResultOK
}

func (e *pcmEngine) setInstrument(chn, program int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	if program < 0 || program >= numPCMInstruments {
		return ResultInvalidParam
	}
	e.ch[idx].program = uint8(program)
	return ResultOK
}

func (e *pcmEngine) loadInstrument(program int, data []byte) Result {
	if program < 0 || program >= numPCMInstruments {
		return ResultInvalidParam
	}
	if len(data) < pcmInstrumentSize {
		return ResultNoData
	}
	copy(e.instruments[program][:], data)
	return ResultOK
}

func (e *pcmEngine) setLevel(chn, level int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	if level < 0 || level > 127 {
		return ResultInvalidParam
	}
	e.ch[idx].level = uint8(level)
	return ResultOK
}

func (e *pcmEngine) setPan(chn, pan int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	if pan < 0 || pan > 127 {
		return ResultInvalidParam
	}
	c := &e.ch[idx]
	switch {
	case pan < 0x40:
		c.panL, c.panR = 15, uint8(pan>>2)
	case pan > 0x40:
		c.panL, c.panR = uint8((127-pan)>>2), 15
	default:
		c.panL, c.panR = 15, 15
	}
	return ResultOK
}

func (e *pcmEngine) setPitch(chn, pitch int) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	c := &e.ch[idx]
	c.pitch = int16(clampPitch(pitch))
	c.updateStep()
	return ResultOK
}

// reserve marks the top n channels as effect channels. Channels whose
// reservation changes are stopped.
func (e *pcmEngine) reserve(n int) Result {
	if n < 0 || n > numPCMChannels {
		return ResultInvalidParam
	}
	if (n<<13)+e.waves.Total() > waveArenaSize {
		return ResultOutOfResources
	}
	for i := range e.ch {
		want := i >= numPCMChannels-n
		if e.ch[i].reserved != want {
			e.ch[i].stop()
			e.ch[i].reserved = want
		}
	}
	e.numReserved = n
	return ResultOK
}

// playEffect copies a header + sample block into the channel's private
// effect buffer and starts it.
func (e *pcmEngine) playEffect(chn, note, velo int, data []byte) Result {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return res
	}
	if note&^0x7F != 0 || velo&^0x7F != 0 {
		return ResultInvalidParam
	}
	c := &e.ch[idx]
	if !c.reserved {
		return ResultNotReserved
	}
	if c.activeEffect {
		return ResultBusy
	}
	h, res := ParseWaveHeader(data)
	if res != ResultOK {
		return res
	}
	if h.Size <= 0 || len(data)-waveHeaderSize < int(h.Size) {
		return ResultNoData
	}
	if !h.checkLoop() {
		return ResultLoopOutOfRange
	}
	if h.Size > effectBufferLen {
		return ResultOutOfResources
	}

	n := copy(c.effect[:], data[waveHeaderSize:waveHeaderSize+int(h.Size)])
	c.waveID = h.ID
	c.start(c.effect[:n], h, uint8(note), uint8(velo), effectEnvelope, e.outRate)
	c.activeEffect = true
	return ResultOK
}

func (e *pcmEngine) effectPlaying(chn int) (bool, Result) {
	idx, res := pcmIndex(chn)
	if res != ResultOK {
		return false, res
	}
	return e.ch[idx].activeEffect, ResultOK
}

// stopWave silences every non-effect channel playing from a wave table
// that is about to be moved or removed. id -1 matches all of them.
func (e *pcmEngine) stopWave(id int32) {
	for i := range e.ch {
		c := &e.ch[i]
		if c.activeOutput && !c.activeEffect && (id == -1 || c.waveID == id) {
			c.stop()
		}
	}
}

// rebindWaves re-points playing channels at their tables after the arena
// has been compacted.
func (e *pcmEngine) rebindWaves() {
	for i := range e.ch {
		c := &e.ch[i]
		if !c.activeOutput || c.activeEffect {
			continue
		}
		w, ok := e.waves.Lookup(c.waveID)
		if !ok {
			c.stop()
			continue
		}
		c.data = e.waves.samples(w)
	}
}

// updateEnvelopes advances every channel's envelope by one step.
func (e *pcmEngine) updateEnvelopes() {
	for i := range e.ch {
		c := &e.ch[i]
		if !c.activeOutput {
			continue
		}
		if !c.env.advance() {
			c.activeOutput = false
			c.activeKey = false
			c.activeEffect = false
		}
	}
}

func (c *pcmChannel) start(data []byte, h WaveHeader, note, velo uint8, p envelopeParams, outRate int64) {
	c.data = data
	c.note = note
	c.velo = velo
	c.pos = 0
	c.loopLen = h.LoopLen << pcmFracBits
	if h.LoopLen > 0 {
		c.loopStart = h.LoopStart << pcmFracBits
		c.loopEnd = (h.LoopStart + h.LoopLen) << pcmFracBits
	} else {
		c.loopStart = 0
		c.loopEnd = uint32(h.Size) << pcmFracBits
	}

	target := int(note) + int(p.noteOffset) - int(h.BaseNote&0x7F)
	rate := int64(h.Rate) + int64(h.RateOffset)
	var hz int64
	if target >= 0 {
		hz = rate + (rate*pcmPhaseUp[min(target, 127)])>>16
	} else {
		hz = (rate * pcmPhaseDown[min(-target, 127)]) >> 16
	}
	c.stepNote = uint32((hz << pcmFracBits) / outRate)
	c.updateStep()

	c.env.load(p)
	c.env.attack()

	c.keyPressed = true
	c.activeKey = true
	c.activeEffect = false
	c.activeOutput = true
}

func (c *pcmChannel) updateStep() {
	pitchStep := int64(pcmPitchNeutral + int(c.pitch)/4)
	step := (int64(c.stepNote) * pitchStep) >> 14
	if c.reserved && step > pcmMaxStep {
		step = pcmMaxStep
	}
	c.step = uint32(step)
}

// tick produces one stereo sample and advances the playback cursor.
func (c *pcmChannel) tick() (int32, int32) {
	if !c.activeOutput || c.data == nil {
		return 0, 0
	}
	idx := int(c.pos >> pcmFracBits)
	if idx >= len(c.data) {
		c.stop()
		return 0, 0
	}
	raw := int32(int8(c.data[idx]))
	vol := (c.env.volume() * int32(c.velo) >> 7) * int32(c.level) >> 7
	s := raw * vol
	l := (s * int32(c.panL)) >> 5
	r := (s * int32(c.panR)) >> 5

	c.pos += c.step
	if c.pos >= c.loopEnd {
		if c.loopLen == 0 {
			c.stop()
			return l, r
		}
		for c.pos >= c.loopEnd {
			c.pos -= c.loopLen
		}
	}
	return l, r
}

func (e *pcmEngine) tick(out *[numPCMChannels][2]int32) {
	for i := range e.ch {
		out[i][0], out[i][1] = e.ch[i].tick()
	}
}

// clampPitch limits a pitch-bend value to the signed 14-bit range.
func clampPitch(p int) int {
	if p < -8192 {
		return -8192
	}
	if p > 8191 {
		return 8191
	}
	return p
}
