package emu

// PCM envelope states. Levels are 7-bit values held with 8 fractional bits.
const (
	pcmEnvReady = iota
	pcmEnvAttack
	pcmEnvDecay
	pcmEnvSustain
	pcmEnvRelease
)

// pcmEnvelope is the instrument-driven ADSR of one PCM channel. Unlike the
// FM envelope it is advanced externally, once per Timer B overflow or
// explicit update command, not once per sample.
type pcmEnvelope struct {
	state uint8

	totalLevel   int32
	attackRate   int32
	decayRate    int32
	sustainLevel int32
	sustainRate  int32
	releaseRate  int32

	level int32
	step  int32
}

// envelopeParams is one of the eight parameter sets in a PCM instrument.
type envelopeParams struct {
	totalLevel   uint8
	attackRate   uint8
	decayRate    uint8
	sustainLevel uint8
	sustainRate  uint8
	releaseRate  uint8
	noteOffset   int8
}

func parseEnvelopeParams(b []byte) envelopeParams {
	return envelopeParams{
		totalLevel:   b[0] & 0x7F,
		attackRate:   b[1] & 0x7F,
		decayRate:    b[2] & 0x7F,
		sustainLevel: b[3] & 0x7F,
		sustainRate:  b[4] & 0x7F,
		releaseRate:  b[5] & 0x7F,
		noteOffset:   int8(b[6]),
	}
}

// effectEnvelope holds an effect at full level until stopped.
var effectEnvelope = envelopeParams{totalLevel: 127, sustainLevel: 127}

func (e *pcmEnvelope) load(p envelopeParams) {
	e.totalLevel = int32(p.totalLevel)
	e.attackRate = int32(p.attackRate)
	e.decayRate = int32(p.decayRate)
	e.sustainLevel = min(int32(p.sustainLevel), e.totalLevel)
	e.sustainRate = int32(p.sustainRate)
	e.releaseRate = int32(p.releaseRate)
	e.level = 0
	e.step = 0
}

// attack enters the attack phase. Rate 127 starts silent and rate 0 starts
// at full level; both fall straight through to decay.
func (e *pcmEnvelope) attack() {
	e.state = pcmEnvAttack
	switch e.attackRate {
	case 127:
		e.level = 0
		e.decay()
	case 0:
		e.level = e.totalLevel << 8
		e.decay()
	default:
		e.level = 0
		e.step = (e.totalLevel << 8) / e.attackRate
	}
}

func (e *pcmEnvelope) decay() {
	e.state = pcmEnvDecay
	switch e.decayRate {
	case 0:
		e.level = e.sustainLevel << 8
		e.sustain()
	case 127:
		e.step = 0
	default:
		e.step = ((e.totalLevel - e.sustainLevel) << 8) / e.decayRate
	}
}

func (e *pcmEnvelope) sustain() {
	e.state = pcmEnvSustain
	if e.sustainRate == 0 {
		e.step = 0
		return
	}
	e.step = max((e.level/e.sustainRate)>>1, 1)
}

func (e *pcmEnvelope) release() {
	if e.state == pcmEnvReady {
		return
	}
	e.state = pcmEnvRelease
	if e.releaseRate == 0 {
		e.level = 0
		e.state = pcmEnvReady
		return
	}
	e.step = max(e.level/e.releaseRate, 1)
}

// advance performs one envelope update and reports whether the envelope
// is still producing output.
func (e *pcmEnvelope) advance() bool {
	switch e.state {
	case pcmEnvReady:
		return false
	case pcmEnvAttack:
		e.level += e.step
		if e.level >= e.totalLevel<<8 {
			e.level = e.totalLevel << 8
			e.decay()
		}
	case pcmEnvDecay:
		e.level -= e.step
		if e.level <= e.sustainLevel<<8 {
			e.level = e.sustainLevel << 8
			e.sustain()
		}
	case pcmEnvSustain, pcmEnvRelease:
		e.level -= e.step
	}

	if e.level <= 0 && e.state != pcmEnvAttack {
		e.level = 0
		e.state = pcmEnvReady
		return false
	}
	return true
}

// volume returns the current 7-bit envelope level.
func (e *pcmEnvelope) volume() int32 {
	return e.level >> 8
}
