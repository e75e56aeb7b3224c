package emu

import (
	"encoding/binary"
	"testing"
)

// makePCMInstrument returns an instrument whose first breakpoint covers
// every note and plays wave id with the given envelope.
func makePCMInstrument(id int32, p envelopeParams) []byte {
	ins := silenceInstrument
	binary.LittleEndian.PutUint32(ins[32:], uint32(id))
	env := ins[64:72]
	env[0] = p.totalLevel
	env[1] = p.attackRate
	env[2] = p.decayRate
	env[3] = p.sustainLevel
	env[4] = p.sustainRate
	env[5] = p.releaseRate
	env[6] = byte(p.noteOffset)
	return ins[:]
}

var holdEnvelope = envelopeParams{totalLevel: 127, sustainLevel: 127}

func setupPCMVoice(t *testing.T) *Synth {
	t.Helper()
	s := New(Options{})
	if res := s.ProcessRaw(OpLoadWaveTable, Data(makeWave(5, 1000, 0, 1000, 0x40))); res != ResultOK {
		t.Fatalf("load-wave-table: %v", res)
	}
	if res := s.ProcessRaw(OpLoadInstrument, Int(0x40), Int(2), Data(makePCMInstrument(5, holdEnvelope))); res != ResultOK {
		t.Fatalf("load-instrument: %v", res)
	}
	if res := s.ProcessRaw(OpSetInstrument, Int(0x40), Int(2)); res != ResultOK {
		t.Fatalf("set-instrument: %v", res)
	}
	return s
}

// --- Envelope ---

func TestPCMEnvelope_InstantAttack(t *testing.T) {
	var e pcmEnvelope
	e.load(envelopeParams{totalLevel: 100, sustainLevel: 80})
	e.attack()

	if e.state != pcmEnvSustain {
		t.Errorf("state = %d, want sustain", e.state)
	}
	if e.volume() != 80 {
		t.Errorf("volume = %d, want 80", e.volume())
	}
	for i := 0; i < 10; i++ {
		if !e.advance() {
			t.Fatal("zero sustain rate should hold")
		}
	}
	if e.volume() != 80 {
		t.Errorf("volume drifted to %d", e.volume())
	}
}

func TestPCMEnvelope_AttackRamp(t *testing.T) {
	var e pcmEnvelope
	e.load(envelopeParams{totalLevel: 100, attackRate: 4, decayRate: 127, sustainLevel: 50})
	e.attack()

	for i := 0; i < 3; i++ {
		e.advance()
		if e.state != pcmEnvAttack {
			t.Fatalf("left attack after %d steps", i+1)
		}
	}
	e.advance()
	if e.state != pcmEnvDecay || e.volume() != 100 {
		t.Errorf("after 4 steps: state %d volume %d, want decay at 100", e.state, e.volume())
	}
	e.advance()
	if e.volume() != 100 {
		t.Errorf("decay rate 127 should hold, got %d", e.volume())
	}
}

func TestPCMEnvelope_Release(t *testing.T) {
	var e pcmEnvelope
	e.load(envelopeParams{totalLevel: 100, sustainLevel: 100, releaseRate: 10})
	e.attack()
	e.release()

	steps := 0
	for e.advance() {
		steps++
		if steps > 100 {
			t.Fatal("release never finished")
		}
	}
	if steps != 9 {
		t.Errorf("release took %d active steps, want 9", steps)
	}
	if e.state != pcmEnvReady {
		t.Errorf("state = %d, want ready", e.state)
	}
}

func TestPCMEnvelope_ZeroReleaseStops(t *testing.T) {
	var e pcmEnvelope
	e.load(envelopeParams{totalLevel: 100, sustainLevel: 100})
	e.attack()
	e.release()
	if e.state != pcmEnvReady || e.volume() != 0 {
		t.Errorf("release rate 0: state %d volume %d", e.state, e.volume())
	}
}

// --- Channels ---

func TestPCMKeyOnPlays(t *testing.T) {
	s := setupPCMVoice(t)
	if res := s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127)); res != ResultOK {
		t.Fatalf("key-on: %v", res)
	}

	buf := make([]int32, 2*256)
	s.Produce(buf, 0, 256)
	if buf[0] == 0 && buf[1] == 0 {
		t.Error("first sample silent after PCM key-on")
	}
	if !s.Snapshot().PCM[0].Active {
		t.Error("channel not active")
	}
}

func TestPCMKeyOnErrors(t *testing.T) {
	s := New(Options{})
	if res := s.ProcessRaw(OpKeyOn, Int(0x48), Int(60), Int(127)); res != ResultInvalidChannel {
		t.Errorf("channel 0x48 = %v, want %v", res, ResultInvalidChannel)
	}
	if res := s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127)); res != ResultNoWaveTable {
		t.Errorf("no wave = %v, want %v", res, ResultNoWaveTable)
	}

	ins := makePCMInstrument(5, holdEnvelope)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(ins[16+2*i:], 10)
	}
	s.ProcessRaw(OpLoadInstrument, Int(0x40), Int(0), Data(ins))
	if res := s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127)); res != ResultNoInstrument {
		t.Errorf("note above every breakpoint = %v, want %v", res, ResultNoInstrument)
	}
	if res := s.ProcessRaw(OpLoadInstrument, Int(0x40), Int(32), Data(ins)); res != ResultInvalidParam {
		t.Errorf("program 32 = %v, want %v", res, ResultInvalidParam)
	}
	if res := s.ProcessRaw(OpLoadInstrument, Int(0x41), Int(0), Data(ins)); res != ResultInvalidParam {
		t.Errorf("bank 0x41 = %v, want %v", res, ResultInvalidParam)
	}
}

func TestPCMUnloadStopsChannel(t *testing.T) {
	s := setupPCMVoice(t)
	s.ProcessRaw(OpKeyOn, Int(0x41), Int(60), Int(127))
	s.ProcessRaw(OpSetInstrument, Int(0x41), Int(2))
	s.ProcessRaw(OpKeyOn, Int(0x41), Int(60), Int(127))

	if res := s.ProcessRaw(OpUnloadWaveTable, Int(5)); res != ResultOK {
		t.Fatalf("unload: %v", res)
	}
	if s.Snapshot().PCM[1].Active {
		t.Error("channel still active after its wave table was unloaded")
	}
	if res := s.ProcessRaw(OpUnloadWaveTable, Int(5)); res != ResultNoWaveTable {
		t.Errorf("unload missing = %v, want %v", res, ResultNoWaveTable)
	}
}

func TestPCMCompactionRebindsChannel(t *testing.T) {
	s := New(Options{})
	s.ProcessRaw(OpLoadWaveTable, Data(makeWave(1, 500, 0, 500, 0x10)))
	s.ProcessRaw(OpLoadWaveTable, Data(makeWave(2, 500, 0, 500, 0x70)))
	s.ProcessRaw(OpLoadInstrument, Int(0x40), Int(0), Data(makePCMInstrument(2, holdEnvelope)))
	if res := s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127)); res != ResultOK {
		t.Fatalf("key-on: %v", res)
	}

	s.ProcessRaw(OpUnloadWaveTable, Int(1))

	st := s.Snapshot()
	if !st.PCM[0].Active || st.PCM[0].WaveID != 2 {
		t.Fatalf("channel lost its table: %+v", st.PCM[0])
	}
	if got := s.pcm.ch[0].data[0]; got != 0x70 {
		t.Errorf("channel reads 0x%02X after compaction, want 0x70", got)
	}
}

func TestPCMEffects(t *testing.T) {
	s := New(Options{})
	effect := makeWave(9, 400, 0, 0, 0x20)

	if res := s.ProcessRaw(OpPcmPlayEffect, Int(0x47), Int(60), Int(127), Data(effect)); res != ResultNotReserved {
		t.Errorf("unreserved = %v, want %v", res, ResultNotReserved)
	}
	if res := s.ProcessRaw(OpReserveEffectChannels, Int(2)); res != ResultOK {
		t.Fatalf("reserve: %v", res)
	}
	if res := s.ProcessRaw(OpPcmPlayEffect, Int(0x45), Int(60), Int(127), Data(effect)); res != ResultNotReserved {
		t.Errorf("channel below reservation = %v, want %v", res, ResultNotReserved)
	}
	if res := s.ProcessRaw(OpPcmPlayEffect, Int(0x47), Int(60), Int(127), Data(effect)); res != ResultOK {
		t.Fatalf("play-effect: %v", res)
	}
	if res := s.ProcessRaw(OpPcmPlayEffect, Int(0x47), Int(60), Int(127), Data(effect)); res != ResultBusy {
		t.Errorf("second effect = %v, want %v", res, ResultBusy)
	}

	var playing int
	if res := s.ProcessRaw(OpPcmEffectPlaying, Int(0x47), Out(&playing)); res != ResultOK || playing != 1 {
		t.Errorf("effect-playing = %v, %d; want ok, 1", res, playing)
	}
	s.ProcessRaw(OpPcmChannelOff, Int(0x47))
	if s.ProcessRaw(OpPcmEffectPlaying, Int(0x47), Out(&playing)); playing != 0 {
		t.Errorf("effect still playing after channel-off")
	}

	big := makeWave(10, effectBufferLen+1, 0, 0, 0)
	if res := s.ProcessRaw(OpPcmPlayEffect, Int(0x46), Int(60), Int(127), Data(big)); res != ResultOutOfResources {
		t.Errorf("oversized effect = %v, want %v", res, ResultOutOfResources)
	}
}

func TestPCMReserveBudget(t *testing.T) {
	s := New(Options{})
	s.ProcessRaw(OpLoadWaveTable, Data(makeWave(1, 60000, 0, 0, 0)))
	if res := s.ProcessRaw(OpReserveEffectChannels, Int(1)); res != ResultOutOfResources {
		t.Errorf("reserve over arena = %v, want %v", res, ResultOutOfResources)
	}
	if res := s.ProcessRaw(OpReserveEffectChannels, Int(9)); res != ResultInvalidParam {
		t.Errorf("reserve 9 = %v, want %v", res, ResultInvalidParam)
	}
	if res := s.ProcessRaw(OpReserveEffectChannels, Int(0)); res != ResultOK {
		t.Errorf("reserve 0 = %v", res)
	}
}

func TestPCMPitchChangesStep(t *testing.T) {
	s := setupPCMVoice(t)
	s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127))
	base := s.pcm.ch[0].step

	s.ProcessRaw(OpSetPitch, Int(0x40), Int(8191))
	up := s.pcm.ch[0].step
	s.ProcessRaw(OpSetPitch, Int(0x40), Int(-8192))
	down := s.pcm.ch[0].step

	if !(down < base && base < up) {
		t.Errorf("steps down=%d base=%d up=%d not ordered", down, base, up)
	}
}

func TestPCMResetSilencesInstruments(t *testing.T) {
	s := setupPCMVoice(t)
	s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127))
	if res := s.ProcessRaw(OpReset); res != ResultOK {
		t.Fatal(res)
	}
	st := s.Snapshot()
	if st.PCM[0].Active || st.PCM[0].Level != 127 || len(st.WaveTables) != 0 {
		t.Errorf("after reset: %+v, %d tables", st.PCM[0], len(st.WaveTables))
	}
	if s.pcm.instruments[2] != silenceInstrument {
		t.Error("instrument 2 not reset to the silence pattern")
	}
}
