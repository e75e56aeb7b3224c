package emu

import "fmt"

// Opcode is a numeric command code.
type Opcode int

const (
	OpReset                 Opcode = 0
	OpKeyOn                 Opcode = 1
	OpKeyOff                Opcode = 2
	OpSetPan                Opcode = 3
	OpSetInstrument         Opcode = 4
	OpLoadInstrument        Opcode = 5
	OpSetPitch              Opcode = 7
	OpSetLevel              Opcode = 8
	OpChannelOff            Opcode = 9
	OpWriteRegister         Opcode = 17
	OpWriteRegisterBuffered Opcode = 19
	OpReadRegisterBuffered  Opcode = 20
	OpSetTimerA             Opcode = 21
	OpSetTimerB             Opcode = 22
	OpEnableTimerA          Opcode = 23
	OpEnableTimerB          Opcode = 24
	OpLoadSamples           Opcode = 32
	OpReserveEffectChannels Opcode = 33
	OpLoadWaveTable         Opcode = 34
	OpUnloadWaveTable       Opcode = 35
	OpPcmPlayEffect         Opcode = 37
	OpPcmChannelOff         Opcode = 39
	OpPcmEffectPlaying      Opcode = 40
	OpFmKeyOn               Opcode = 50
	OpFmKeyOff              Opcode = 51
	OpFmSetPan              Opcode = 52
	OpFmSetInstrument       Opcode = 53
	OpFmSetPitch            Opcode = 55
	OpFmSetLevel            Opcode = 56
	OpFmReset               Opcode = 58
	OpSetOutputVolume       Opcode = 67
	OpResetOutputVolume     Opcode = 68
	OpGetOutputVolume       Opcode = 69
	OpSetOutputMute         Opcode = 70
	OpCdaToggle             Opcode = 71
	OpGetOutputVolume2      Opcode = 72
	OpGetOutputMute         Opcode = 73
	OpGetOutputVolume3      Opcode = 74
	OpSetVolumeChannelMasks Opcode = 75
	OpPcmUpdateEnvelope     Opcode = 80
)

var opcodeNames = map[Opcode]string{
	OpReset:                 "reset",
	OpKeyOn:                 "key-on",
	OpKeyOff:                "key-off",
	OpSetPan:                "set-pan",
	OpSetInstrument:         "set-instrument",
	OpLoadInstrument:        "load-instrument",
	OpSetPitch:              "set-pitch",
	OpSetLevel:              "set-level",
	OpChannelOff:            "channel-off",
	OpWriteRegister:         "write-register",
	OpWriteRegisterBuffered: "write-register-buffered",
	OpReadRegisterBuffered:  "read-register-buffered",
	OpSetTimerA:             "set-timer-a",
	OpSetTimerB:             "set-timer-b",
	OpEnableTimerA:          "enable-timer-a",
	OpEnableTimerB:          "enable-timer-b",
	OpLoadSamples:           "load-samples",
	OpReserveEffectChannels: "reserve-effect-channels",
	OpLoadWaveTable:         "load-wave-table",
	OpUnloadWaveTable:       "unload-wave-table",
	OpPcmPlayEffect:         "pcm-play-effect",
	OpPcmChannelOff:         "pcm-channel-off",
	OpPcmEffectPlaying:      "pcm-effect-playing",
	OpFmKeyOn:               "fm-key-on",
	OpFmKeyOff:              "fm-key-off",
	OpFmSetPan:              "fm-set-pan",
	OpFmSetInstrument:       "fm-set-instrument",
	OpFmSetPitch:            "fm-set-pitch",
	OpFmSetLevel:            "fm-set-level",
	OpFmReset:               "fm-reset",
	OpSetOutputVolume:       "set-output-volume",
	OpResetOutputVolume:     "reset-output-volume",
	OpGetOutputVolume:       "get-output-volume",
	OpSetOutputMute:         "set-output-mute",
	OpCdaToggle:             "cda-toggle",
	OpGetOutputVolume2:      "get-output-volume2",
	OpGetOutputMute:         "get-output-mute",
	OpGetOutputVolume3:      "get-output-volume3",
	OpSetVolumeChannelMasks: "set-volume-channel-masks",
	OpPcmUpdateEnvelope:     "pcm-update-envelope",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", int(op))
}

// OpcodeByName looks up an opcode by its String form.
func OpcodeByName(name string) (Opcode, bool) {
	for op, s := range opcodeNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

// ArgKind tags the value carried by an Arg.
type ArgKind uint8

const (
	ArgInt ArgKind = iota
	ArgData
	ArgOut
)

// Arg is one positional command argument: an integer, a byte buffer or
// an output slot.
type Arg struct {
	Kind ArgKind
	Int  int
	Data []byte
	Out  *int
}

func Int(v int) Arg { return Arg{Kind: ArgInt, Int: v} }

func Data(b []byte) Arg { return Arg{Kind: ArgData, Data: b} }

func Out(p *int) Arg { return Arg{Kind: ArgOut, Out: p} }

func (a Arg) String() string {
	switch a.Kind {
	case ArgData:
		return fmt.Sprintf("data[%d]", len(a.Data))
	case ArgOut:
		return "out"
	}
	return fmt.Sprint(a.Int)
}

// Command is a decoded chip command.
type Command interface {
	Opcode() Opcode
	apply(s *Synth) Result
}

type argReader struct {
	args []Arg
	pos  int
	res  Result
}

func (r *argReader) next(kind ArgKind, missing Result) (Arg, bool) {
	if r.res != ResultOK {
		return Arg{}, false
	}
	if r.pos >= len(r.args) || r.args[r.pos].Kind != kind {
		r.res = missing
		return Arg{}, false
	}
	a := r.args[r.pos]
	r.pos++
	return a, true
}

func (r *argReader) int() int {
	a, _ := r.next(ArgInt, ResultInvalidParam)
	return a.Int
}

func (r *argReader) data() []byte {
	a, ok := r.next(ArgData, ResultNoData)
	if ok && a.Data == nil {
		r.res = ResultNoData
	}
	return a.Data
}

func (r *argReader) out() *int {
	a, ok := r.next(ArgOut, ResultInvalidParam)
	if ok && a.Out == nil {
		r.res = ResultInvalidParam
	}
	return a.Out
}

// Decode converts an opcode and its positional arguments into a typed
// command. Unknown opcodes yield ResultUnsupported. Extra trailing
// arguments are ignored.
func Decode(op Opcode, args ...Arg) (Command, Result) {
	r := &argReader{args: args}
	var cmd Command
	switch op {
	case OpReset:
		cmd = Reset{}
	case OpKeyOn, OpFmKeyOn:
		cmd = KeyOn{Channel: r.int(), Note: r.int(), Velocity: r.int(), FMOnly: op == OpFmKeyOn}
	case OpKeyOff, OpFmKeyOff:
		cmd = KeyOff{Channel: r.int(), FMOnly: op == OpFmKeyOff}
	case OpSetPan, OpFmSetPan:
		cmd = SetPan{Channel: r.int(), Pan: r.int(), FMOnly: op == OpFmSetPan}
	case OpSetInstrument, OpFmSetInstrument:
		cmd = SetInstrument{Channel: r.int(), Program: r.int(), FMOnly: op == OpFmSetInstrument}
	case OpLoadInstrument:
		cmd = LoadInstrument{Bank: r.int(), Program: r.int(), Data: r.data()}
	case OpSetPitch, OpFmSetPitch:
		cmd = SetPitch{Channel: r.int(), Pitch: r.int(), FMOnly: op == OpFmSetPitch}
	case OpSetLevel, OpFmSetLevel:
		cmd = SetLevel{Channel: r.int(), Level: r.int(), FMOnly: op == OpFmSetLevel}
	case OpChannelOff:
		cmd = ChannelOff{Channel: r.int()}
	case OpWriteRegister, OpWriteRegisterBuffered:
		cmd = WriteRegister{Part: r.int(), Reg: r.int(), Value: r.int(), Buffered: op == OpWriteRegisterBuffered}
	case OpReadRegisterBuffered:
		cmd = ReadRegister{Part: r.int(), Reg: r.int(), Out: r.out()}
	case OpSetTimerA, OpSetTimerB:
		cmd = SetTimer{B: op == OpSetTimerB, Enable: r.int() != 0, Tempo: r.int()}
	case OpEnableTimerA, OpEnableTimerB:
		cmd = EnableTimer{B: op == OpEnableTimerB}
	case OpLoadSamples:
		cmd = LoadSamples{Dest: r.int(), Data: r.data()}
	case OpReserveEffectChannels:
		cmd = ReserveEffectChannels{Count: r.int()}
	case OpLoadWaveTable:
		cmd = LoadWaveTable{Data: r.data()}
	case OpUnloadWaveTable:
		cmd = UnloadWaveTable{ID: r.int()}
	case OpPcmPlayEffect:
		cmd = PlayEffect{Channel: r.int(), Note: r.int(), Velocity: r.int(), Data: r.data()}
	case OpPcmChannelOff:
		cmd = PcmChannelOff{Channel: r.int()}
	case OpPcmEffectPlaying:
		cmd = EffectPlaying{Channel: r.int(), Out: r.out()}
	case OpFmReset:
		cmd = FmReset{}
	case OpSetOutputVolume:
		cmd = SetOutputVolume{Group: r.int(), Left: r.int(), Right: r.int()}
	case OpResetOutputVolume:
		cmd = ResetOutputVolume{}
	case OpGetOutputVolume:
		cmd = GetOutputVolume{Group: r.int(), Left: r.out(), Right: r.out()}
	case OpSetOutputMute:
		cmd = SetOutputMute{Flags: r.int()}
	case OpGetOutputMute:
		cmd = GetOutputMute{Out: r.out()}
	case OpCdaToggle, OpGetOutputVolume2, OpGetOutputVolume3:
		cmd = Accepted{Op: op}
	case OpSetVolumeChannelMasks:
		cmd = SetVolumeChannelMasks{A: r.int(), B: r.int()}
	case OpPcmUpdateEnvelope:
		cmd = PcmUpdateEnvelope{}
	default:
		return nil, ResultUnsupported
	}
	if r.res != ResultOK {
		return nil, r.res
	}
	return cmd, ResultOK
}

func isPCMChannel(ch int) bool {
	return ch&pcmChannelBase != 0
}

// Reset restores the FM and PCM units to power-on state, along with the
// output levels, mutes and volume channel masks.
type Reset struct{}

func (Reset) Opcode() Opcode { return OpReset }
func (Reset) apply(s *Synth) Result {
	s.resetAll()
	return ResultOK
}

// FmReset restores the FM register space (FM, SSG and rhythm) only.
type FmReset struct{}

func (FmReset) Opcode() Opcode { return OpFmReset }
func (FmReset) apply(s *Synth) Result {
	s.resetFM()
	return ResultOK
}

type KeyOn struct {
	Channel, Note, Velocity int
	FMOnly                  bool
}

func (c KeyOn) Opcode() Opcode {
	if c.FMOnly {
		return OpFmKeyOn
	}
	return OpKeyOn
}

func (c KeyOn) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.keyOn(c.Channel, c.Note, c.Velocity)
	}
	return s.voices.keyOn(c.Channel, c.Note, c.Velocity)
}

type KeyOff struct {
	Channel int
	FMOnly  bool
}

func (c KeyOff) Opcode() Opcode {
	if c.FMOnly {
		return OpFmKeyOff
	}
	return OpKeyOff
}

func (c KeyOff) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.keyOff(c.Channel)
	}
	return s.voices.keyOff(c.Channel)
}

// SetPan takes 0 (left) to 127 (right) with 0x40 as centre.
type SetPan struct {
	Channel, Pan int
	FMOnly       bool
}

func (c SetPan) Opcode() Opcode {
	if c.FMOnly {
		return OpFmSetPan
	}
	return OpSetPan
}

func (c SetPan) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.setPan(c.Channel, c.Pan)
	}
	return s.voices.setPan(c.Channel, c.Pan)
}

type SetInstrument struct {
	Channel, Program int
	FMOnly           bool
}

func (c SetInstrument) Opcode() Opcode {
	if c.FMOnly {
		return OpFmSetInstrument
	}
	return OpSetInstrument
}

func (c SetInstrument) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.setInstrument(c.Channel, c.Program)
	}
	return s.voices.setInstrument(c.Channel, c.Program)
}

// LoadInstrument stores a 48-byte FM (bank 0) or 128-byte PCM (bank
// 0x40) instrument.
type LoadInstrument struct {
	Bank, Program int
	Data          []byte
}

func (LoadInstrument) Opcode() Opcode { return OpLoadInstrument }
func (c LoadInstrument) apply(s *Synth) Result {
	switch c.Bank {
	case 0:
		return s.voices.loadInstrument(c.Program, c.Data)
	case pcmChannelBase:
		return s.pcm.loadInstrument(c.Program, c.Data)
	}
	return ResultInvalidParam
}

// SetPitch takes a signed bend in -8192..8191; larger values are clamped.
type SetPitch struct {
	Channel, Pitch int
	FMOnly         bool
}

func (c SetPitch) Opcode() Opcode {
	if c.FMOnly {
		return OpFmSetPitch
	}
	return OpSetPitch
}

func (c SetPitch) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.setPitch(c.Channel, c.Pitch)
	}
	return s.voices.setPitch(c.Channel, c.Pitch)
}

type SetLevel struct {
	Channel, Level int
	FMOnly         bool
}

func (c SetLevel) Opcode() Opcode {
	if c.FMOnly {
		return OpFmSetLevel
	}
	return OpSetLevel
}

func (c SetLevel) apply(s *Synth) Result {
	if !c.FMOnly && isPCMChannel(c.Channel) {
		return s.pcm.setLevel(c.Channel, c.Level)
	}
	return s.voices.setLevel(c.Channel, c.Level)
}

type ChannelOff struct{ Channel int }

func (ChannelOff) Opcode() Opcode { return OpChannelOff }
func (c ChannelOff) apply(s *Synth) Result {
	if isPCMChannel(c.Channel) {
		return s.pcm.channelOff(c.Channel)
	}
	return s.voices.channelOff(c.Channel)
}

// WriteRegister writes a chip register. Buffered writes also update the
// register shadow and may address the auxiliary bytes up to 0xEF.
type WriteRegister struct {
	Part, Reg, Value int
	Buffered         bool
}

func (c WriteRegister) Opcode() Opcode {
	if c.Buffered {
		return OpWriteRegisterBuffered
	}
	return OpWriteRegister
}

func registerInRange(part, reg int, buffered bool) bool {
	hi := 0xB6
	if buffered {
		hi = 0xEF
	}
	switch part {
	case 0:
		return reg >= 0 && reg <= hi
	case 1:
		return reg >= 0x30 && reg <= hi
	}
	return false
}

func (c WriteRegister) apply(s *Synth) Result {
	if !registerInRange(c.Part, c.Reg, c.Buffered) || c.Value < 0 || c.Value > 0xFF {
		return ResultInvalidParam
	}
	if isSSGRegister(c.Part, uint8(c.Reg)) && s.ssg.queueFree() == 0 {
		return ResultOutOfResources
	}
	if c.Buffered {
		s.voices.writeShadowed(c.Part, uint8(c.Reg), uint8(c.Value))
	} else {
		s.voices.writeRaw(c.Part, uint8(c.Reg), uint8(c.Value))
	}
	return ResultOK
}

// ReadRegister reads a byte back from the register shadow.
type ReadRegister struct {
	Part, Reg int
	Out       *int
}

func (ReadRegister) Opcode() Opcode { return OpReadRegisterBuffered }
func (c ReadRegister) apply(s *Synth) Result {
	if !registerInRange(c.Part, c.Reg, true) || c.Out == nil {
		return ResultInvalidParam
	}
	*c.Out = int(s.voices.readShadowed(c.Part, uint8(c.Reg)))
	return ResultOK
}

// SetTimer loads and starts Timer A (10-bit tempo) or Timer B (8-bit
// tempo), or stops it when Enable is false.
type SetTimer struct {
	B      bool
	Enable bool
	Tempo  int
}

func (c SetTimer) Opcode() Opcode {
	if c.B {
		return OpSetTimerB
	}
	return OpSetTimerA
}

func (c SetTimer) apply(s *Synth) Result {
	return s.voices.setTimer(c.B, c.Enable, c.Tempo)
}

type EnableTimer struct{ B bool }

func (c EnableTimer) Opcode() Opcode {
	if c.B {
		return OpEnableTimerB
	}
	return OpEnableTimerA
}

func (c EnableTimer) apply(s *Synth) Result {
	s.voices.enableTimer(c.B)
	return ResultOK
}

// LoadSamples copies raw bytes into the wave arena.
type LoadSamples struct {
	Dest int
	Data []byte
}

func (LoadSamples) Opcode() Opcode { return OpLoadSamples }
func (c LoadSamples) apply(s *Synth) Result {
	return s.waves.LoadSamples(c.Dest, c.Data)
}

type ReserveEffectChannels struct{ Count int }

func (ReserveEffectChannels) Opcode() Opcode { return OpReserveEffectChannels }
func (c ReserveEffectChannels) apply(s *Synth) Result {
	return s.pcm.reserve(c.Count)
}

type LoadWaveTable struct{ Data []byte }

func (LoadWaveTable) Opcode() Opcode { return OpLoadWaveTable }
func (c LoadWaveTable) apply(s *Synth) Result {
	return s.waves.Load(c.Data)
}

// UnloadWaveTable removes one table, or all of them for ID -1. Channels
// playing the removed table are stopped; the rest follow the compaction.
type UnloadWaveTable struct{ ID int }

func (UnloadWaveTable) Opcode() Opcode { return OpUnloadWaveTable }
func (c UnloadWaveTable) apply(s *Synth) Result {
	id := int32(c.ID)
	if int(id) != c.ID {
		return ResultNoWaveTable
	}
	if id != -1 {
		if _, ok := s.waves.Lookup(id); !ok {
			return ResultNoWaveTable
		}
	}
	s.pcm.stopWave(id)
	res := s.waves.Unload(id)
	s.pcm.rebindWaves()
	return res
}

type PlayEffect struct {
	Channel, Note, Velocity int
	Data                    []byte
}

func (PlayEffect) Opcode() Opcode { return OpPcmPlayEffect }
func (c PlayEffect) apply(s *Synth) Result {
	return s.pcm.playEffect(c.Channel, c.Note, c.Velocity, c.Data)
}

type PcmChannelOff struct{ Channel int }

func (PcmChannelOff) Opcode() Opcode { return OpPcmChannelOff }
func (c PcmChannelOff) apply(s *Synth) Result {
	return s.pcm.channelOff(c.Channel)
}

// EffectPlaying stores 1 in Out while an effect is sounding, else 0.
type EffectPlaying struct {
	Channel int
	Out     *int
}

func (EffectPlaying) Opcode() Opcode { return OpPcmEffectPlaying }
func (c EffectPlaying) apply(s *Synth) Result {
	if c.Out == nil {
		return ResultInvalidParam
	}
	playing, res := s.pcm.effectPlaying(c.Channel)
	if res != ResultOK {
		return res
	}
	*c.Out = 0
	if playing {
		*c.Out = 1
	}
	return ResultOK
}

// SetOutputVolume sets a group's left/right level on the 0-127 scale.
// Group|0x40 addresses the master bank.
type SetOutputVolume struct{ Group, Left, Right int }

func (SetOutputVolume) Opcode() Opcode { return OpSetOutputVolume }
func (c SetOutputVolume) apply(s *Synth) Result {
	return s.routing.setVolume(c.Group, c.Left, c.Right)
}

type ResetOutputVolume struct{}

func (ResetOutputVolume) Opcode() Opcode { return OpResetOutputVolume }
func (ResetOutputVolume) apply(s *Synth) Result {
	s.routing.reset()
	return ResultOK
}

type GetOutputVolume struct {
	Group       int
	Left, Right *int
}

func (GetOutputVolume) Opcode() Opcode { return OpGetOutputVolume }
func (c GetOutputVolume) apply(s *Synth) Result {
	if c.Left == nil || c.Right == nil {
		return ResultInvalidParam
	}
	l, r, res := s.routing.volume(c.Group)
	if res != ResultOK {
		return res
	}
	*c.Left, *c.Right = l, r
	return ResultOK
}

// SetOutputMute replaces the lane mute mask. Bit n mutes lane n.
type SetOutputMute struct{ Flags int }

func (SetOutputMute) Opcode() Opcode { return OpSetOutputMute }
func (c SetOutputMute) apply(s *Synth) Result {
	if c.Flags&^0xFFFF != 0 {
		return ResultInvalidParam
	}
	s.routing.setMute(c.Flags)
	return ResultOK
}

type GetOutputMute struct{ Out *int }

func (GetOutputMute) Opcode() Opcode { return OpGetOutputMute }
func (c GetOutputMute) apply(s *Synth) Result {
	if c.Out == nil {
		return ResultInvalidParam
	}
	*c.Out = int(s.routing.mute)
	return ResultOK
}

// Accepted covers opcodes that are recognised but have no effect here.
type Accepted struct{ Op Opcode }

func (c Accepted) Opcode() Opcode { return c.Op }

func (Accepted) apply(*Synth) Result { return ResultOK }

// SetVolumeChannelMasks selects which mixer channels take the music
// (A) and effect (B) group gains.
type SetVolumeChannelMasks struct{ A, B int }

func (SetVolumeChannelMasks) Opcode() Opcode { return OpSetVolumeChannelMasks }
func (c SetVolumeChannelMasks) apply(s *Synth) Result {
	return s.routing.setMasks(c.A, c.B)
}

// PcmUpdateEnvelope advances every PCM envelope by one step.
type PcmUpdateEnvelope struct{}

func (PcmUpdateEnvelope) Opcode() Opcode { return OpPcmUpdateEnvelope }
func (PcmUpdateEnvelope) apply(s *Synth) Result {
	s.pcm.updateEnvelopes()
	return ResultOK
}
