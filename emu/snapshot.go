package emu

// FMChannelState is the voice-level view of one FM channel.
type FMChannelState struct {
	Playing   bool
	Note      int // MIDI note, 0 when never keyed
	Pitch     int
	Program   int
	Level     int
	Velocity  int
	FNum      int
	Block     int
	Algorithm int
	PanL      bool
	PanR      bool
}

// PCMChannelState is the view of one PCM channel.
type PCMChannelState struct {
	Program    int
	Level      int
	Note       int
	Pitch      int
	WaveID     int32
	Reserved   bool
	KeyPressed bool
	Active     bool
	Effect     bool
	EnvState   int
	EnvLevel   int
}

// State is a copy of the synth's observable state.
type State struct {
	ClockHz    int
	SampleRate int
	Ticks      uint64

	FM          [numFMChannels]FMChannelState
	PCM         [numPCMChannels]PCMChannelState
	SSG         [ssgNumRegs]uint8
	Rhythm      [numRhythmChannels]bool
	TimerStatus uint8

	WaveTables []WaveHeader
	WaveBytes  int
	Reserved   int

	Volume [numLanes]int // 0-127 scale
	Mute   uint16
	MaskA  uint32
	MaskB  uint32

	Shadow [2][256]uint8
}

// Snapshot copies the current state under the synth lock.
func (s *Synth) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ClockHz:     s.clockHz,
		SampleRate:  s.SampleRate(),
		Ticks:       s.ticks,
		TimerStatus: s.fm.status(),
		WaveTables:  s.waves.Tables(),
		WaveBytes:   s.waves.Total(),
		Reserved:    s.pcm.numReserved,
		Mute:        s.routing.mute,
		MaskA:       s.routing.maskA,
		MaskB:       s.routing.maskB,
		Shadow:      s.voices.shadow,
	}

	for ch := range st.FM {
		part, c := fmPart(ch)
		v := s.voices
		hw := &s.fm.ch[ch]
		fs := &st.FM[ch]
		fs.Playing = v.playing&(1<<ch) != 0
		fs.Pitch = int(v.pitch[ch])
		fs.Program = int(v.program[ch])
		fs.Level = int(v.shadow[part][auxLevel+c])
		fs.Velocity = int(v.shadow[part][auxVelocity+c])
		fs.FNum = int(hw.fNum)
		fs.Block = int(hw.block)
		fs.Algorithm = int(hw.algorithm)
		fs.PanL, fs.PanR = hw.panL, hw.panR
		if fs.Playing || v.note[ch] != 0 {
			fs.Note = int(v.note[ch]) + 12
		}
	}

	for i := range st.PCM {
		c := &s.pcm.ch[i]
		st.PCM[i] = PCMChannelState{
			Program:    int(c.program),
			Level:      int(c.level),
			Note:       int(c.note),
			Pitch:      int(c.pitch),
			WaveID:     c.waveID,
			Reserved:   c.reserved,
			KeyPressed: c.keyPressed,
			Active:     c.activeOutput,
			Effect:     c.activeEffect,
			EnvState:   int(c.env.state),
			EnvLevel:   int(c.env.volume()),
		}
	}

	copy(st.SSG[:], s.ssg.regs[:ssgNumRegs])
	for i := range st.Rhythm {
		st.Rhythm[i] = s.rhythm.ch[i].on
	}
	for i := range st.Volume {
		st.Volume[i] = int(s.routing.level[i]) << 1
	}
	return st
}
