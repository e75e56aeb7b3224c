package emu

import (
	"errors"
	"testing"
)

func TestSSGQueueOverflow(t *testing.T) {
	s := New(Options{})
	if free := s.ssg.queueFree(); free != ssgQueueSize {
		t.Fatalf("queue has %d free slots after New, want %d", free, ssgQueueSize)
	}

	for i := 0; i < ssgQueueSize; i++ {
		if res := s.ProcessRaw(OpWriteRegister, Int(0), Int(0), Int(i)); res != ResultOK {
			t.Fatalf("write %d: %v", i, res)
		}
	}
	if res := s.ProcessRaw(OpWriteRegister, Int(0), Int(1), Int(1)); res != ResultOutOfResources {
		t.Errorf("write past queue = %v, want %v", res, ResultOutOfResources)
	}
	if res := s.ProcessRaw(OpWriteRegisterBuffered, Int(0), Int(1), Int(1)); res != ResultOutOfResources {
		t.Errorf("buffered write past queue = %v, want %v", res, ResultOutOfResources)
	}
	// FM registers do not use the queue
	if res := s.ProcessRaw(OpWriteRegister, Int(0), Int(0x30), Int(1)); res != ResultOK {
		t.Errorf("FM write with full SSG queue = %v", res)
	}

	s.Produce(make([]int32, 2), 0, 1)
	if got := s.Snapshot().SSG[0]; got != ssgQueueSize-1 {
		t.Errorf("reg 0 = %d, want the last queued value %d", got, ssgQueueSize-1)
	}
	if res := s.ProcessRaw(OpWriteRegister, Int(0), Int(1), Int(1)); res != ResultOK {
		t.Errorf("write after flush = %v", res)
	}
}

func TestSSGWriteQueueFull(t *testing.T) {
	s := newSSGEngine()
	for i := 0; i < ssgQueueSize; i++ {
		if err := s.write(8, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.write(8, 0); !errors.Is(err, ErrSSGQueueFull) {
		t.Errorf("err = %v, want ErrSSGQueueFull", err)
	}
}

func TestSSGWritesApplyAtPowerOnPeriod(t *testing.T) {
	s := newSSGEngine()
	s.write(8, 0x0F)
	if s.tone[0].volume != 0 {
		t.Fatal("queued write applied before the tick")
	}
	var out [3]int32
	s.tick(&out)
	if s.tone[0].volume != 0x0F {
		t.Errorf("volume = 0x%02X after tick, want 0x0F", s.tone[0].volume)
	}
}

func TestSSGWritesWaitForTonePeriod(t *testing.T) {
	const period = 255
	s := newSSGEngine()
	s.write(0, period)
	var out [3]int32
	s.tick(&out)
	if s.tone[0].period != period {
		t.Fatalf("tone A period = %d, want %d", s.tone[0].period, period)
	}

	remaining := period - int(s.tone[0].counter) // clocks to the next reload
	s.write(2, 0x10)
	samples := 0
	for s.tone[1].period != 0x10 {
		s.tick(&out)
		samples++
		if samples > 1000 {
			t.Fatal("queued write never applied")
		}
	}

	lo := remaining * ssgClockDen / ssgClockNum
	if samples < lo || samples > lo+2 {
		t.Errorf("write applied after %d samples, want %d to %d", samples, lo, lo+2)
	}
	if s.queueLen != 0 {
		t.Errorf("%d writes still queued", s.queueLen)
	}
}

func TestSSGToneSquareWave(t *testing.T) {
	s := newSSGEngine()
	s.write(0, 0x40) // period 64
	s.write(7, 0x3E) // tone A on, noise off
	s.write(8, 0x0F)

	var out [3]int32
	high, low := 0, 0
	for i := 0; i < 2000; i++ {
		s.tick(&out)
		switch out[0] {
		case 0:
			low++
		case ssgVolumeTable[31]:
			high++
		default:
			t.Fatalf("unexpected level %d", out[0])
		}
		if out[1] != 0 || out[2] != 0 {
			t.Fatal("muted channels produced output")
		}
	}
	if high == 0 || low == 0 {
		t.Errorf("no square wave: %d high, %d low", high, low)
	}
}

func TestSSGVolumeCurve(t *testing.T) {
	for i := 1; i < 32; i++ {
		if ssgVolumeTable[i] <= ssgVolumeTable[i-1] {
			t.Fatalf("volume table not increasing at %d", i)
		}
	}
	if ssgVolumeTable[31] != ssgMaxAmplitude {
		t.Errorf("full volume = %d, want %d", ssgVolumeTable[31], ssgMaxAmplitude)
	}
}

func TestSSGEnvelopeShapes(t *testing.T) {
	tests := []struct {
		shape uint8
		want  int32 // level after the first ramp
	}{
		{0x00, 0},                  // decay, then off
		{0x04, 0},                  // attack, then off
		{0x0B, ssgVolumeTable[31]}, // decay, then hold high
		{0x0D, ssgVolumeTable[31]}, // attack, then hold high
		{0x0F, 0},                  // attack, then hold low
	}
	for _, tt := range tests {
		s := newSSGEngine()
		s.applyWrite(8, 0x10)
		s.applyWrite(11, 1)
		s.applyWrite(13, tt.shape)
		for i := 0; i < 64; i++ {
			s.clock()
		}
		if got := s.level(0); got != tt.want {
			t.Errorf("shape 0x%02X: level %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestSSGNoiseGate(t *testing.T) {
	s := newSSGEngine()
	s.write(6, 0x01)
	s.write(7, 0x37) // noise A only
	s.write(8, 0x0F)

	var out [3]int32
	changes := 0
	prev := int32(-1)
	for i := 0; i < 5000; i++ {
		s.tick(&out)
		if out[0] != prev {
			changes++
			prev = out[0]
		}
	}
	if changes < 10 {
		t.Errorf("noise output changed only %d times", changes)
	}
}
