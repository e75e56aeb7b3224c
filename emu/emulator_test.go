package emu

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var update = flag.Bool("update", false, "print golden data to stdout for copy-paste")

// hashInt32Buffer computes SHA-256 of a buffer of int32 values (little-endian).
func hashInt32Buffer(buf []int32) string {
	b := make([]byte, len(buf)*4)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// compareGoldenInt32 checks buf against its pinned first samples and the
// SHA-256 of the whole buffer. With -update it prints both instead.
func compareGoldenInt32(t *testing.T, name string, buf []int32, expectedFirst []int32, expectedHash string) {
	t.Helper()

	hash := hashInt32Buffer(buf)

	if *update {
		fmt.Printf("=== %s ===\n", name)
		fmt.Printf("// Buffer length: %d\n", len(buf))
		n := min(64, len(buf))
		fmt.Printf("expectedFirst := []int32{")
		for i := 0; i < n; i++ {
			if i > 0 {
				fmt.Print(", ")
			}
			if i%8 == 0 {
				fmt.Print("\n\t")
			}
			fmt.Printf("%d", buf[i])
		}
		fmt.Printf(",\n}\n")
		fmt.Printf("expectedHash := %q\n\n", hash)
		return
	}

	n := len(expectedFirst)
	if len(buf) < n {
		t.Fatalf("%s: buffer too short: got %d, want at least %d", name, len(buf), n)
	}
	for i := 0; i < n; i++ {
		if buf[i] != expectedFirst[i] {
			t.Errorf("%s: sample[%d] = %d, want %d", name, i, buf[i], expectedFirst[i])
			break
		}
	}

	if hash != expectedHash {
		t.Errorf("%s: hash mismatch\n  got:  %s\n  want: %s", name, hash, expectedHash)
	}
}

// goldenRegisterWrites programs FM channel 0 directly: block 4 fnum 0x28D,
// algorithm 4 with feedback 6, and one instant-attack operator per pair.
var goldenRegisterWrites = [][3]int{
	{0, 0xA4, 0x22}, {0, 0xA0, 0x8D},
	{0, 0xB0, 0x34}, {0, 0xB4, 0xC0},
	{0, 0x30, 0x01}, {0, 0x34, 0x02}, {0, 0x38, 0x71}, {0, 0x3C, 0x01},
	{0, 0x40, 0x20}, {0, 0x44, 0x18}, {0, 0x48, 0x00}, {0, 0x4C, 0x08},
	{0, 0x50, 0x1F}, {0, 0x54, 0x18}, {0, 0x58, 0x5F}, {0, 0x5C, 0x12},
	{0, 0x60, 0x05}, {0, 0x64, 0x08}, {0, 0x68, 0x0A}, {0, 0x6C, 0x06},
	{0, 0x70, 0x02}, {0, 0x74, 0x03}, {0, 0x78, 0x01}, {0, 0x7C, 0x04},
	{0, 0x80, 0x27}, {0, 0x84, 0x3A}, {0, 0x88, 0x15}, {0, 0x8C, 0x48},
	{0, 0x28, 0xF0},
}

// goldenRun keys FM channel 0 through raw register writes, renders 3000
// sample pairs, keys off and renders 1410 more.
func goldenRun(t *testing.T) []int32 {
	t.Helper()
	s := New(Options{})
	for _, w := range goldenRegisterWrites {
		if res := s.ProcessRaw(OpWriteRegister, Int(w[0]), Int(w[1]), Int(w[2])); res != ResultOK {
			t.Fatalf("write part %d reg 0x%02X: %v", w[0], w[1], res)
		}
	}

	buf := make([]int32, 2*4410)
	s.Produce(buf, 0, 3000)
	if res := s.ProcessRaw(OpWriteRegister, Int(0), Int(0x28), Int(0x00)); res != ResultOK {
		t.Fatal(res)
	}
	s.Produce(buf, 3000, 1410)
	return buf
}

func TestGoldenFMChannel(t *testing.T) {
	buf := goldenRun(t)

	expectedFirst := []int32{
		676, 676, 1421, 1421, 2156, 2156, 2920, 2920,
		3736, 3736, 4480, 4480, 5168, 5168, 5792, 5792,
		6336, 6336, 6868, 6868, 7292, 7292, 7616, 7616,
		7864, 7864, 8016, 8016, 8124, 8124, 8168, 8168,
		8148, 8148, 8080, 8080, 7972, 7972, 7804, 7804,
		7636, 7636, 7392, 7392, 7156, 7156, 6908, 6908,
		6668, 6668, 6384, 6384, 6100, 6100, 5824, 5824,
		5548, 5548, 5240, 5240, 4924, 4924, 4640, 4640,
	}
	expectedHash := "6c5050a29450ccd1c9348aaad9d5609f8dd7f22778ee448111c7777d1ecddec4"

	compareGoldenInt32(t, "FMChannelAlgo4", buf, expectedFirst, expectedHash)
}

// voiceRun drives the same channel through the voice layer.
func voiceRun(t *testing.T) []int32 {
	t.Helper()
	s := New(Options{})

	ins := DefaultFMInstrument
	ins[8], ins[9], ins[10], ins[11] = 0x01, 0x02, 0x01, 0x01
	ins[12], ins[13], ins[14], ins[15] = 0x20, 0x7F, 0x7F, 0x00
	ins[32] = 0x34 // FB 6, ALG 4

	steps := []struct {
		op   Opcode
		args []Arg
	}{
		{OpReset, nil},
		{OpLoadInstrument, []Arg{Int(0), Int(1), Data(ins[:])}},
		{OpSetInstrument, []Arg{Int(0), Int(1)}},
		{OpKeyOn, []Arg{Int(0), Int(60), Int(100)}},
	}
	for _, st := range steps {
		if res := s.ProcessRaw(st.op, st.args...); res != ResultOK {
			t.Fatalf("%v: %v", st.op, res)
		}
	}

	buf := make([]int32, 2*4410)
	s.Produce(buf, 0, 4410)
	return buf
}

func TestVoiceRunsRepeat(t *testing.T) {
	first := voiceRun(t)
	second := voiceRun(t)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated runs differ:\n%s", diff)
	}

	nonzero := 0
	for _, v := range first {
		if v != 0 {
			nonzero++
		}
	}
	if nonzero < len(first)/2 {
		t.Errorf("only %d of %d samples non-zero", nonzero, len(first))
	}
}

func TestProduceAccumulatesAtOffset(t *testing.T) {
	s := New(Options{})
	s.ProcessRaw(OpKeyOn, Int(0), Int(72), Int(127))

	buf := make([]int32, 2*8)
	for i := range buf {
		buf[i] = 1
	}
	s.Produce(buf, 2, 6)

	for i := 0; i < 4; i++ {
		if buf[i] != 1 {
			t.Errorf("buf[%d] = %d, pairs before offset must be untouched", i, buf[i])
		}
	}
	if s.Snapshot().Ticks != 6 {
		t.Errorf("ticks = %d, want 6", s.Snapshot().Ticks)
	}

	ref := New(Options{})
	ref.ProcessRaw(OpKeyOn, Int(0), Int(72), Int(127))
	want := make([]int32, 2*6)
	ref.Produce(want, 0, 6)
	for i := range want {
		if buf[4+i] != want[i]+1 {
			t.Errorf("pair value %d = %d, want %d accumulated onto 1", i, buf[4+i], want[i]+1)
		}
	}
}

func TestMuteSilencesMusicGroup(t *testing.T) {
	s := New(Options{})
	s.ProcessRaw(OpKeyOn, Int(0), Int(72), Int(127))
	s.ProcessRaw(OpSetOutputMute, Int(0x03)) // music L/R

	buf := make([]int32, 2*500)
	s.Produce(buf, 0, 500)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %d with music muted", i, v)
		}
	}

	// moving FM to mask B takes the unmuted effect gain
	s.ProcessRaw(OpSetVolumeChannelMasks, Int(0), Int(0x3F))
	s.Produce(buf, 0, 500)
	silent := true
	for _, v := range buf {
		if v != 0 {
			silent = false
		}
	}
	if silent {
		t.Error("FM silent on the effect group")
	}
}

func TestTimerCallbacks(t *testing.T) {
	s := New(Options{})
	countA, countB := 0, 0
	d := &DriverFuncs{
		OnTimerA: func(c Commander) { countA++ },
		OnTimerB: func(c Commander) { countB++ },
	}
	if err := s.Attach(d); err != nil {
		t.Fatal(err)
	}
	s.ProcessRaw(OpSetTimerA, Int(1), Int(1020))
	s.ProcessRaw(OpSetTimerB, Int(1), Int(255))

	s.Produce(make([]int32, 2*160), 0, 160)
	if countA != 40 {
		t.Errorf("timer A callbacks = %d, want 40", countA)
	}
	if countB != 10 {
		t.Errorf("timer B callbacks = %d, want 10", countB)
	}

	s.ProcessRaw(OpSetTimerA, Int(0), Int(0))
	s.Produce(make([]int32, 2*16), 0, 16)
	if countA != 40 {
		t.Errorf("stopped timer A still fired: %d", countA)
	}
}

func TestTimerCallbackIssuesCommands(t *testing.T) {
	s := New(Options{})
	var results []Result
	s.Attach(&DriverFuncs{OnTimerA: func(c Commander) {
		results = append(results, c.ProcessRaw(OpKeyOn, Int(2), Int(64), Int(100)))
		results = append(results, c.Process(SetTimer{Enable: false}))
	}})
	s.ProcessRaw(OpSetTimerA, Int(1), Int(1023))

	s.Produce(make([]int32, 2*4), 0, 4)

	want := []Result{ResultOK, ResultOK}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("callback results (-want +got):\n%s", diff)
	}
	if !s.Snapshot().FM[2].Playing {
		t.Error("key-on from the callback did not take effect")
	}
}

func TestTimerBAdvancesPCMEnvelopes(t *testing.T) {
	s := setupPCMVoice(t)
	ins := makePCMInstrument(5, envelopeParams{totalLevel: 100, attackRate: 10, decayRate: 127, sustainLevel: 100})
	s.ProcessRaw(OpLoadInstrument, Int(0x40), Int(2), Data(ins))
	s.ProcessRaw(OpKeyOn, Int(0x40), Int(60), Int(127))
	if got := s.Snapshot().PCM[0].EnvLevel; got != 0 {
		t.Fatalf("envelope level %d before any update", got)
	}

	s.ProcessRaw(OpSetTimerB, Int(1), Int(255))
	s.Produce(make([]int32, 2*16), 0, 16)
	if got := s.Snapshot().PCM[0].EnvLevel; got != 10 {
		t.Errorf("envelope level after one timer B = %d, want 10", got)
	}

	s.ProcessRaw(OpPcmUpdateEnvelope)
	if got := s.Snapshot().PCM[0].EnvLevel; got != 20 {
		t.Errorf("envelope level after update command = %d, want 20", got)
	}
}

func TestAttachSingleDriver(t *testing.T) {
	s := New(Options{})
	a, b := &DriverFuncs{}, &DriverFuncs{}

	if err := s.Attach(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Attach(a); err != nil {
		t.Errorf("re-attaching the same driver: %v", err)
	}
	if err := s.Attach(b); !errors.Is(err, ErrDriverAttached) {
		t.Errorf("second driver: err = %v, want ErrDriverAttached", err)
	}
	s.Detach(b)
	if err := s.Attach(b); err == nil {
		t.Error("detaching a non-attached driver removed the attached one")
	}
	s.Detach(a)
	if err := s.Attach(b); err != nil {
		t.Errorf("attach after detach: %v", err)
	}
}

// valueDriver is a non-pointer driver whose type cannot be compared.
type valueDriver struct {
	onTimer func()
}

func (d valueDriver) TimerA(Commander) { d.onTimer() }
func (d valueDriver) TimerB(Commander) { d.onTimer() }

func TestAttachUncomparableDriver(t *testing.T) {
	s := New(Options{})
	d := valueDriver{onTimer: func() {}}

	for i := 0; i < 2; i++ {
		if err := s.Attach(d); !errors.Is(err, ErrDriverNotComparable) {
			t.Errorf("attach %d: err = %v, want ErrDriverNotComparable", i, err)
		}
	}
	s.Detach(d)

	p := &DriverFuncs{}
	if err := s.Attach(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Attach(d); !errors.Is(err, ErrDriverNotComparable) {
		t.Errorf("attach over a pointer driver: err = %v", err)
	}
	s.Detach(d)
	if err := s.Attach(p); err != nil {
		t.Errorf("pointer driver lost after detaching a value driver: %v", err)
	}
}

func TestHandleRelease(t *testing.T) {
	s := New(Options{})
	h1 := s.Acquire()
	h2 := s.Acquire()
	if h1.Synth() != s {
		t.Fatal("handle does not reference its synth")
	}

	d := &DriverFuncs{}
	s.Attach(d)
	s.ProcessRaw(OpKeyOn, Int(0), Int(60), Int(100))

	h1.Release()
	h1.Release() // second release of the same handle is a no-op
	if err := s.Attach(&DriverFuncs{}); !errors.Is(err, ErrDriverAttached) {
		t.Error("driver detached while a handle is still held")
	}

	h2.Release()
	if err := s.Attach(&DriverFuncs{}); err != nil {
		t.Errorf("driver still attached after last release: %v", err)
	}
	if s.Snapshot().FM[0].Playing {
		t.Error("synth not reset after last release")
	}
}

func TestExternalLock(t *testing.T) {
	s := New(Options{ExternalLock: true})
	if _, ok := s.mu.(nopLocker); !ok {
		t.Fatalf("locker is %T, want nopLocker", s.mu)
	}
	if res := s.ProcessRaw(OpKeyOn, Int(0), Int(60), Int(100)); res != ResultOK {
		t.Fatal(res)
	}
	s.Produce(make([]int32, 2*10), 0, 10)
}

func TestSampleRate(t *testing.T) {
	s := New(Options{})
	if s.ClockHz() != DefaultClockHz || s.SampleRate() != 55466 {
		t.Errorf("clock %d rate %d", s.ClockHz(), s.SampleRate())
	}
	s = New(Options{ClockHz: 144 * 44100})
	if s.SampleRate() != 44100 {
		t.Errorf("rate = %d, want 44100", s.SampleRate())
	}
}

func TestLoadRhythmROMThroughSynth(t *testing.T) {
	s := New(Options{})
	if err := s.LoadRhythmROM([]byte{1, 2, 3}); err == nil {
		t.Error("short rom accepted")
	}
	if err := s.LoadRhythmROM(makeRhythmROM(64, 0x77)); err != nil {
		t.Fatal(err)
	}
	s.ProcessRaw(OpWriteRegister, Int(0), Int(0x11), Int(0x3F))
	s.ProcessRaw(OpWriteRegister, Int(0), Int(0x18), Int(0xDF))
	s.ProcessRaw(OpWriteRegister, Int(0), Int(0x10), Int(0x01))
	if !s.Snapshot().Rhythm[0] {
		t.Error("bd not playing after key-on write")
	}
}
