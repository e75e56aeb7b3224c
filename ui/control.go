package ui

import (
	"context"
	"sync"
)

// GenControl coordinates pause, resume and stop between the goroutine
// generating audio and its owner.
type GenControl struct {
	mu       sync.Mutex
	pauseReq bool
	paused   bool
	wake     chan struct{} // closed to release a paused generator
	ackCh    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGenControl creates a running control.
func NewGenControl() *GenControl {
	return &GenControl{
		wake:   make(chan struct{}),
		ackCh:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// RequestPause asks the generator to pause and blocks until it
// acknowledges or the control is stopped.
func (gc *GenControl) RequestPause() {
	gc.mu.Lock()
	if gc.paused || gc.pauseReq {
		gc.mu.Unlock()
		return
	}
	gc.pauseReq = true
	gc.mu.Unlock()

	select {
	case <-gc.ackCh:
	case <-gc.stopCh:
	}
}

// RequestResume releases a paused generator.
func (gc *GenControl) RequestResume() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if !gc.pauseReq && !gc.paused {
		return
	}
	gc.pauseReq = false
	close(gc.wake)
	gc.wake = make(chan struct{})
}

// Toggle pauses a running generator or resumes a paused one.
func (gc *GenControl) Toggle() {
	gc.mu.Lock()
	pausing := !gc.pauseReq
	gc.mu.Unlock()
	if pausing {
		gc.RequestPause()
	} else {
		gc.RequestResume()
	}
}

// Checkpoint is called by the generator between chunks. It blocks while
// paused and returns false once the generator should exit.
func (gc *GenControl) Checkpoint(ctx context.Context) bool {
	for {
		gc.mu.Lock()
		if !gc.pauseReq {
			gc.paused = false
			gc.mu.Unlock()
			break
		}
		gc.paused = true
		wake := gc.wake
		gc.mu.Unlock()

		select {
		case gc.ackCh <- struct{}{}:
		default:
		}

		select {
		case <-wake:
		case <-gc.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}

	select {
	case <-gc.stopCh:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// Stop makes every later Checkpoint return false and unblocks waiters.
func (gc *GenControl) Stop() {
	gc.stopOnce.Do(func() { close(gc.stopCh) })
}

// Done is closed by Stop.
func (gc *GenControl) Done() <-chan struct{} { return gc.stopCh }

// IsPaused reports whether the generator is parked in Checkpoint.
func (gc *GenControl) IsPaused() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.paused
}
