package ui

import (
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func readFrames(t *testing.T, rb *AudioRingBuffer, n int) []int16 {
	t.Helper()
	p := make([]byte, n*bytesPerFrame)
	got, err := io.ReadFull(rb, p)
	if err != nil {
		t.Fatalf("read %d of %d bytes: %v", got, len(p), err)
	}
	out := make([]int16, 2*n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}
	return out
}

func TestRingBufferRoundTrip(t *testing.T) {
	rb := NewAudioRingBuffer(8)
	in := []int16{1, -1, 300, -300, 32767, -32768}
	rb.WriteFrames(in)
	if rb.Buffered() != 12 {
		t.Fatalf("buffered = %d, want 12", rb.Buffered())
	}
	if diff := cmp.Diff(in, readFrames(t, rb, 3)); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
}

func TestRingBufferOddSampleIgnored(t *testing.T) {
	rb := NewAudioRingBuffer(4)
	rb.WriteFrames([]int16{1, 2, 3})
	if rb.Buffered() != bytesPerFrame {
		t.Errorf("buffered = %d, want one frame", rb.Buffered())
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	rb := NewAudioRingBuffer(4)
	rb.WriteFrames([]int16{1, 1, 2, 2, 3, 3})
	rb.WriteFrames([]int16{4, 4, 5, 5, 6, 6}) // wraps and drops two frames

	if rb.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", rb.Dropped())
	}
	want := []int16{3, 3, 4, 4, 5, 5, 6, 6}
	if diff := cmp.Diff(want, readFrames(t, rb, 4)); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}

	rb.WriteFrames([]int16{9, 9, 9, 9, 9, 9, 9, 9, 7, 7, 8, 8, 10, 10, 11, 11})
	want = []int16{7, 7, 8, 8, 10, 10, 11, 11}
	if diff := cmp.Diff(want, readFrames(t, rb, 4)); diff != "" {
		t.Errorf("oversized write keeps the newest frames (-want +got):\n%s", diff)
	}
}

func TestRingBufferPartialReadsStayAligned(t *testing.T) {
	rb := NewAudioRingBuffer(4)
	rb.WriteFrames([]int16{1, 2, 3, 4})
	p := make([]byte, 3)
	if n, _ := rb.Read(p); n != 3 {
		t.Fatalf("read %d", n)
	}
	rb.WriteFrames([]int16{5, 6, 7, 8, 9, 10, 11, 12}) // overflows by one byte
	rest := make([]byte, rb.Buffered())
	io.ReadFull(rb, rest)
	if len(rest)%bytesPerFrame != 0 {
		t.Fatalf("%d bytes left, not whole frames", len(rest))
	}
	if got := int16(binary.LittleEndian.Uint16(rest[len(rest)-2:])); got != 12 {
		t.Errorf("last sample = %d, want 12", got)
	}
}

func TestRingBufferCloseUnblocksReader(t *testing.T) {
	rb := NewAudioRingBuffer(4)
	done := make(chan error)
	go func() {
		_, err := rb.Read(make([]byte, 4))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	rb.Close()
	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("err = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after Close")
	}
	rb.WriteFrames([]int16{1, 1})
	if rb.Buffered() != 0 {
		t.Error("write accepted after Close")
	}
}

func TestResamplerPassthroughClamps(t *testing.T) {
	r := NewResampler(48000, 48000)
	got := r.Process([]int32{0, 40000, -40000, 123}, nil)
	want := []int16{0, 32767, -32768, 123}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestResamplerRateConversion(t *testing.T) {
	const in, out = 55466, 48000
	r := NewResampler(in, out)

	src := make([]int32, 2*in) // one second of a constant level
	for i := 0; i < in; i++ {
		src[2*i] = 8000
		src[2*i+1] = -8000
	}
	var dst []int16
	dst = r.Process(src, dst)

	frames := len(dst) / 2
	if frames < out-out/50 || frames > out+2 {
		t.Errorf("%d output frames for one second, want about %d", frames, out)
	}

	// Just past the band-limited step the level is close to the input;
	// blip's high-pass then lets it decay.
	l, rt := dst[2*24], dst[2*24+1]
	if l < 7000 || l > 8200 || rt > -7000 || rt < -8200 {
		t.Errorf("level after the step (%d, %d), want about (8000, -8000)", l, rt)
	}

	r.Reset()
	dst = r.Process(make([]int32, 2*in/10), dst)
	for i, v := range dst {
		if v < -100 || v > 100 {
			t.Fatalf("sample %d = %d after reset with silent input", i, v)
		}
	}
}

func TestGenControlPauseResume(t *testing.T) {
	gc := NewGenControl()
	ctx := context.Background()

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for gc.Checkpoint(ctx) {
			time.Sleep(time.Millisecond)
		}
	}()

	gc.RequestPause()
	if !gc.IsPaused() {
		t.Fatal("not paused after RequestPause returned")
	}
	gc.RequestResume()

	gc.Toggle()
	if !gc.IsPaused() {
		t.Fatal("Toggle did not pause")
	}
	gc.Toggle()

	gc.Stop()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("generator did not exit after Stop")
	}
	gc.RequestPause() // returns once stopped
}

func TestGenControlContextCancel(t *testing.T) {
	gc := NewGenControl()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if gc.Checkpoint(ctx) {
		t.Error("Checkpoint true after cancel")
	}
}
