package ui

import (
	"io"
	"sync"
)

// bytesPerFrame is one stereo frame of signed 16-bit little-endian PCM.
const bytesPerFrame = 4

// AudioRingBuffer is a thread-safe ring of stereo frames implementing
// io.Reader. The generation goroutine writes frames via WriteFrames, and
// oto's player reads bytes via Read. Read blocks when empty; writes drop
// the oldest frames on overflow so the producer never stalls.
type AudioRingBuffer struct {
	buf      []byte
	readPos  int
	writePos int
	count    int
	capacity int
	dropped  uint64 // frames
	scratch  []byte
	mu       sync.Mutex
	cond     *sync.Cond
	closed   bool
}

// NewAudioRingBuffer creates a ring buffer holding frames stereo frames.
func NewAudioRingBuffer(frames int) *AudioRingBuffer {
	capacity := frames * bytesPerFrame
	rb := &AudioRingBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// WriteFrames queues interleaved stereo samples. A trailing odd sample is
// ignored.
func (rb *AudioRingBuffer) WriteFrames(samples []int16) {
	samples = samples[:len(samples)&^1]
	if len(samples) == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return
	}

	rb.scratch = rb.scratch[:0]
	for _, s := range samples {
		rb.scratch = append(rb.scratch, byte(s), byte(s>>8))
	}
	rb.write(rb.scratch)
}

func (rb *AudioRingBuffer) write(p []byte) {
	n := len(p)
	if n > rb.capacity {
		rb.dropped += uint64(n-rb.capacity) / bytesPerFrame
		p = p[n-rb.capacity:]
		n = rb.capacity
	}

	// Both counts are whole frames so the reader stays frame aligned.
	if overflow := rb.count + n - rb.capacity; overflow > 0 {
		rb.readPos = (rb.readPos + overflow) % rb.capacity
		rb.count -= overflow
		rb.dropped += uint64(overflow) / bytesPerFrame
	}

	first := rb.capacity - rb.writePos
	if first >= n {
		copy(rb.buf[rb.writePos:], p)
	} else {
		copy(rb.buf[rb.writePos:], p[:first])
		copy(rb.buf, p[first:])
	}
	rb.writePos = (rb.writePos + n) % rb.capacity
	rb.count += n

	rb.cond.Signal()
}

// Read implements io.Reader. It blocks until data is available or the
// buffer is closed, and returns io.EOF once closed and drained.
func (rb *AudioRingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 {
		if rb.closed {
			return 0, io.EOF
		}
		rb.cond.Wait()
	}

	n := min(len(p), rb.count)
	first := rb.capacity - rb.readPos
	if first >= n {
		copy(p, rb.buf[rb.readPos:rb.readPos+n])
	} else {
		copy(p, rb.buf[rb.readPos:])
		copy(p[first:], rb.buf[:n-first])
	}
	rb.readPos = (rb.readPos + n) % rb.capacity
	rb.count -= n
	return n, nil
}

// Buffered returns the number of bytes waiting to be read.
func (rb *AudioRingBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Dropped returns the number of frames discarded on overflow.
func (rb *AudioRingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

// Clear discards all queued data.
func (rb *AudioRingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
}

// Close unblocks readers. Subsequent reads drain what is left, then
// return io.EOF.
func (rb *AudioRingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}
