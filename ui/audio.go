// Package ui holds the host audio path: oto playback fed through a ring
// buffer, a resampler from the synth's native rate to the device rate and
// the control shared by the generation goroutine and its owner.
package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/user-none/emtowns/emu/log"
)

// AudioPlayer plays int16 stereo frames via oto. Frames go into a ring
// buffer that oto's player reads in a pull model.
type AudioPlayer struct {
	player     *oto.Player
	ringBuffer *AudioRingBuffer
	rate       int
}

// oto allows one context per process.
var (
	otoCtx      *oto.Context
	otoRate     int
	otoInitOnce sync.Once
	otoInitErr  error
)

func ensureOtoContext(rate int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		otoRate = rate
		<-readyChan
	})
	if otoInitErr == nil && otoRate != rate {
		return nil, fmt.Errorf("audio context already running at %d Hz", otoRate)
	}
	return otoCtx, otoInitErr
}

// NewAudioPlayer opens the audio device at rate frames per second.
// latency sizes both the ring buffer and oto's player buffer.
func NewAudioPlayer(rate int, volume float64, latency time.Duration) (*AudioPlayer, error) {
	ctx, err := ensureOtoContext(rate)
	if err != nil {
		return nil, fmt.Errorf("oto audio not available: %w", err)
	}

	frames := int(int64(rate) * int64(latency) / int64(time.Second))
	frames = max(frames, rate/50)

	rb := NewAudioRingBuffer(2 * frames)
	player := ctx.NewPlayer(rb)
	player.SetBufferSize(frames * bytesPerFrame)
	player.SetVolume(volume)
	player.Play()
	log.ModAudio.Debugf("audio player: %d Hz, %d frames buffered", rate, frames)

	return &AudioPlayer{
		player:     player,
		ringBuffer: rb,
		rate:       rate,
	}, nil
}

// SampleRate returns the device rate.
func (a *AudioPlayer) SampleRate() int { return a.rate }

// WriteSamples queues interleaved stereo samples. It never blocks.
func (a *AudioPlayer) WriteSamples(samples []int16) error {
	a.ringBuffer.WriteFrames(samples)
	return nil
}

// BufferLevel returns the bytes of audio queued ahead of the device
// (ring buffer plus oto's internal buffer). Used for pacing.
func (a *AudioPlayer) BufferLevel() int {
	return a.ringBuffer.Buffered() + a.player.BufferedSize()
}

// SetVolume sets the playback volume (0.0 = silent, 1.0 = full).
func (a *AudioPlayer) SetVolume(vol float64) {
	a.player.SetVolume(vol)
}

// Close releases the player. Queued audio is dropped.
func (a *AudioPlayer) Close() error {
	if n := a.ringBuffer.Dropped(); n > 0 {
		log.ModAudio.Warnf("%d frames dropped on overflow", n)
	}
	a.ringBuffer.Close()
	return a.player.Close()
}
