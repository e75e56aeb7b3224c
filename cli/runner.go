// Package cli runs a command script against a synth and streams the
// output to a sink: the audio device for live playback, or a file.
package cli

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user-none/emtowns/emu"
	"github.com/user-none/emtowns/emu/log"
	"github.com/user-none/emtowns/script"
	"github.com/user-none/emtowns/ui"
)

// Sink consumes interleaved 16-bit stereo frames at its rate.
type Sink interface {
	WriteSamples(samples []int16) error
}

// PacedSink is a real-time sink. Generation is paced against its queue
// level instead of running as fast as possible.
type PacedSink interface {
	Sink
	BufferLevel() int // bytes queued ahead of the device
}

// ADT buffer thresholds, as durations of queued audio.
const (
	adtMinBuffer = 50 * time.Millisecond
	adtMaxBuffer = 100 * time.Millisecond
)

// chunkDuration is the audio generated per loop iteration.
const chunkDuration = 10 * time.Millisecond

// Runner drives a synth from a script player and feeds a sink.
// Generation runs on its own goroutine; a second one writes to the sink.
type Runner struct {
	synth     *emu.Synth
	player    *script.Player
	sink      Sink
	resampler *ui.Resampler
	control   *ui.GenControl

	outRate int
	chunk   int    // native frames per iteration
	end     uint64 // tick to stop at, 0 to run until cancelled
}

// NewRunner prepares a run of p on s into sink at outRate frames per
// second. The run stops at the script's end; SetEnd overrides it.
func NewRunner(s *emu.Synth, p *script.Player, sink Sink, outRate int) *Runner {
	rate := s.SampleRate()
	return &Runner{
		synth:     s,
		player:    p,
		sink:      sink,
		resampler: ui.NewResampler(rate, outRate),
		control:   ui.NewGenControl(),
		outRate:   outRate,
		chunk:     max(int(int64(rate)*int64(chunkDuration)/int64(time.Second)), 1),
		end:       p.End(),
	}
}

// SetEnd sets the tick the run stops at. Zero runs until the context is
// cancelled or Stop is called.
func (r *Runner) SetEnd(tick uint64) { r.end = tick }

// Control returns the pause/resume/stop control of the generation loop.
func (r *Runner) Control() *ui.GenControl { return r.control }

// Stop ends the run after the current chunk.
func (r *Runner) Stop() { r.control.Stop() }

// Run generates until the end tick, Stop or cancellation, and returns
// the first sink error.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan []int16, 4)

	g.Go(func() error {
		defer close(chunks)
		return r.generate(ctx, chunks)
	})
	g.Go(func() error {
		for c := range chunks {
			if err := r.sink.WriteSamples(c); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if n := r.player.Rejected(); n > 0 {
		log.ModScript.Warnf("%d script commands rejected", n)
	}
	return err
}

func (r *Runner) generate(ctx context.Context, chunks chan<- []int16) error {
	paced, _ := r.sink.(PacedSink)
	bytesPerSec := r.outRate * 4
	adtMin := int(int64(bytesPerSec) * int64(adtMinBuffer) / int64(time.Second))
	adtMax := int(int64(bytesPerSec) * int64(adtMaxBuffer) / int64(time.Second))

	raw := make([]int32, 2*r.chunk)
	last := time.Now()

	for r.control.Checkpoint(ctx) {
		n := r.chunk
		if r.end > 0 {
			left := r.end - min(r.player.Tick(), r.end)
			if left == 0 {
				return nil
			}
			n = int(min(uint64(n), left))
		}

		clear(raw)
		r.player.Render(r.synth, raw, n)
		out := r.resampler.Process(raw[:2*n], nil)
		if len(out) > 0 {
			select {
			case chunks <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if paced == nil {
			continue
		}

		// ADT sleep
		frameTime := time.Duration(int64(n) * int64(time.Second) / int64(r.synth.SampleRate()))
		sleepTime := frameTime - time.Since(last)
		level := paced.BufferLevel()
		if level < adtMin {
			sleepTime = time.Duration(float64(sleepTime) * 0.9)
		} else if level > adtMax {
			sleepTime = time.Duration(float64(sleepTime) * 1.1)
		}
		if sleepTime > time.Millisecond {
			select {
			case <-time.After(sleepTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		last = time.Now()
	}
	return nil
}
