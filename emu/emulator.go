package emu

import (
	"errors"
	"reflect"
	"sync"

	"github.com/user-none/emtowns/emu/log"
)

const (
	// DefaultClockHz is the master clock of the sound chip.
	DefaultClockHz = 7987200

	// One native sample every 144 chip clocks.
	clocksPerSample = 144
)

// ErrDriverAttached is returned by Attach while a different driver owns
// the timer callbacks.
var ErrDriverAttached = errors.New("emu: a different driver is already attached")

// ErrDriverNotComparable is returned by Attach for a driver whose dynamic
// type cannot be compared, such as a struct value holding a func. Attach a
// pointer instead.
var ErrDriverNotComparable = errors.New("emu: driver type is not comparable")

// Options configures a Synth.
type Options struct {
	// ClockHz is the chip clock. Zero selects DefaultClockHz.
	ClockHz int

	// ExternalLock disables the internal mutex. The caller must then
	// serialise every call itself.
	ExternalLock bool
}

// Commander issues commands. Timer callbacks receive one that does not
// take the synth lock, which is already held by Produce.
type Commander interface {
	Process(cmd Command) Result
	ProcessRaw(op Opcode, args ...Arg) Result
}

// Driver receives timer overflow callbacks. They run synchronously inside
// Produce, before the tick's channels are evaluated.
type Driver interface {
	TimerA(c Commander)
	TimerB(c Commander)
}

// DriverFuncs adapts a pair of functions to Driver. Either may be nil.
type DriverFuncs struct {
	OnTimerA func(c Commander)
	OnTimerB func(c Commander)
}

func (d *DriverFuncs) TimerA(c Commander) {
	if d.OnTimerA != nil {
		d.OnTimerA(c)
	}
}

func (d *DriverFuncs) TimerB(c Commander) {
	if d.OnTimerB != nil {
		d.OnTimerB(c)
	}
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Synth is the complete sound chipset: FM, SSG and rhythm on the register
// bus plus the PCM unit and its wave-table store, mixed through the output
// routing.
type Synth struct {
	mu      sync.Locker
	clockHz int

	fm      *fmChip
	voices  *fmVoices
	ssg     *ssgEngine
	rhythm  *rhythmEngine
	waves   *WaveTableStore
	pcm     *pcmEngine
	routing *outputRouting

	driver   Driver
	refs     int
	unlocked unlockedCommander
	ticks    uint64

	fmOut  [numFMChannels][2]int32
	ssgOut [3]int32
	rhyOut [numRhythmChannels][2]int32
	pcmOut [numPCMChannels][2]int32
	mixIn  [numMixChannels][2]int32
}

// New creates a synth in its reset state.
func New(opts Options) *Synth {
	if opts.ClockHz <= 0 {
		opts.ClockHz = DefaultClockHz
	}
	s := &Synth{
		clockHz: opts.ClockHz,
		fm:      newFMChip(),
		ssg:     newSSGEngine(),
		rhythm:  newRhythmEngine(),
		waves:   NewWaveTableStore(),
		routing: newOutputRouting(),
	}
	if opts.ExternalLock {
		s.mu = nopLocker{}
	} else {
		s.mu = &sync.Mutex{}
	}
	s.pcm = newPCMEngine(s.waves, s.SampleRate())
	s.voices = newFMVoices(&chipBus{fm: s.fm, ssg: s.ssg, rhythm: s.rhythm})
	s.unlocked = unlockedCommander{s: s}
	log.ModEmu.Debugf("synth created clock=%d rate=%d", s.clockHz, s.SampleRate())
	return s
}

// ClockHz returns the chip clock.
func (s *Synth) ClockHz() int { return s.clockHz }

// SampleRate returns the native output rate, one sample per tick.
func (s *Synth) SampleRate() int { return s.clockHz / clocksPerSample }

// Process runs one command under the synth lock.
func (s *Synth) Process(cmd Command) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process(cmd)
}

// ProcessRaw decodes and runs an opcode with positional arguments.
func (s *Synth) ProcessRaw(op Opcode, args ...Arg) Result {
	cmd, res := Decode(op, args...)
	if res != ResultOK {
		log.ModCmd.WithField("op", op).Debugf("decode: %v", res)
		return res
	}
	return s.Process(cmd)
}

func (s *Synth) process(cmd Command) Result {
	if cmd == nil {
		return ResultUnsupported
	}
	res := cmd.apply(s)
	if res != ResultOK {
		log.ModCmd.WithField("op", cmd.Opcode()).Debugf("rejected: %v", res)
	}
	return res
}

type unlockedCommander struct{ s *Synth }

func (c unlockedCommander) Process(cmd Command) Result {
	return c.s.process(cmd)
}

func (c unlockedCommander) ProcessRaw(op Opcode, args ...Arg) Result {
	cmd, res := Decode(op, args...)
	if res != ResultOK {
		return res
	}
	return c.s.process(cmd)
}

// Produce runs count ticks and adds the stereo output to buf starting at
// pair offset. buf must hold at least 2*(offset+count) values.
func (s *Synth) Produce(buf []int32, offset, count int) {
	if count <= 0 {
		return
	}
	out := buf[2*offset : 2*(offset+count)]

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < count; i++ {
		l, r := s.tick()
		out[2*i] += l
		out[2*i+1] += r
	}
}

func (s *Synth) tick() (int32, int32) {
	s.ticks++

	firedA, firedB := s.fm.stepTimers()
	if firedA && s.driver != nil {
		s.driver.TimerA(s.unlocked)
	}
	if firedB {
		s.pcm.updateEnvelopes()
		if s.driver != nil {
			s.driver.TimerB(s.unlocked)
		}
	}

	s.fm.tick(&s.fmOut)
	s.ssg.tick(&s.ssgOut)
	s.rhythm.tick(&s.rhyOut)
	s.pcm.tick(&s.pcmOut)

	copy(s.mixIn[MixFM:], s.fmOut[:])
	for i, v := range s.ssgOut {
		s.mixIn[MixSSG+i] = [2]int32{v, v}
	}
	s.mixIn[MixRhythm] = [2]int32{}
	for _, v := range s.rhyOut {
		s.mixIn[MixRhythm][0] += v[0]
		s.mixIn[MixRhythm][1] += v[1]
	}
	copy(s.mixIn[MixPCM:], s.pcmOut[:])

	return s.routing.mix(&s.mixIn)
}

// resetFM resets the whole FM register space: the FM channels, the SSG
// and the rhythm unit, then rewrites every register.
func (s *Synth) resetFM() {
	s.fm.reset()
	s.ssg.reset()
	s.rhythm.reset()
	s.voices.reset()
	s.ssg.flush()
}

func (s *Synth) resetAll() {
	s.resetFM()
	s.pcm.reset()
	s.routing.reset()
	s.routing.setMasks(mixMaskAll, 0)
}

// LoadRhythmROM installs the rhythm sample image.
func (s *Synth) LoadRhythmROM(image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rhythm.loadROM(image); err != nil {
		return err
	}
	log.ModRhythm.Infof("loaded rhythm rom (%d bytes)", len(image))
	return nil
}

// Attach makes d the receiver of timer callbacks. Attaching the driver
// that is already attached is a no-op.
func (s *Synth) Attach(d Driver) error {
	if d != nil && !reflect.TypeOf(d).Comparable() {
		return ErrDriverNotComparable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil && s.driver != d {
		return ErrDriverAttached
	}
	s.driver = d
	return nil
}

// Detach removes d if it is the attached driver.
func (s *Synth) Detach(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver == d {
		s.driver = nil
	}
}

// Handle is one reference to a shared synth.
type Handle struct {
	s    *Synth
	once sync.Once
}

// Acquire takes a reference on s.
func (s *Synth) Acquire() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	return &Handle{s: s}
}

// Synth returns the referenced synth.
func (h *Handle) Synth() *Synth { return h.s }

// Release drops the reference. Releasing the last one detaches the driver
// and resets the synth. Further calls are no-ops.
func (h *Handle) Release() {
	h.once.Do(func() {
		s := h.s
		s.mu.Lock()
		defer s.mu.Unlock()
		s.refs--
		if s.refs > 0 {
			return
		}
		s.refs = 0
		s.driver = nil
		s.resetAll()
		log.ModEmu.Debugf("last handle released, synth reset")
	})
}
