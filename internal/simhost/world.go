package simhost

import (
	"context"
	"sync"
	"time"

	"github.com/actorsteer/actorsteer/pkg/core"
)

// UpdateFunc is called at the beginning of every world step.
type UpdateFunc func(core.UpdateInfo)

// World is a fixed-step simulation clock. Steps run synchronously on the
// caller's goroutine; listeners never run concurrently with each other.
type World struct {
	step time.Duration

	mu        sync.Mutex
	simTime   time.Duration
	iteration uint64
	onUpdate  []UpdateFunc
	onReset   []func()
}

// NewWorld creates a world advancing by step per iteration.
func NewWorld(step time.Duration) *World {
	if step <= 0 {
		step = time.Millisecond
	}
	return &World{step: step}
}

// ConnectWorldUpdateBegin registers fn to run at the start of each step.
func (w *World) ConnectWorldUpdateBegin(fn UpdateFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = append(w.onUpdate, fn)
}

// ConnectReset registers fn to run when the world is reset.
func (w *World) ConnectReset(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReset = append(w.onReset, fn)
}

// SimTime returns the current simulation time.
func (w *World) SimTime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.simTime
}

// SetSimTime moves the clock, e.g. to rewind a simulation.
func (w *World) SetSimTime(t time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.simTime = t
}

// Step advances the clock once and notifies listeners.
func (w *World) Step() core.UpdateInfo {
	w.mu.Lock()
	w.simTime += w.step
	w.iteration++
	info := core.UpdateInfo{SimTime: w.simTime, Iteration: w.iteration}
	listeners := w.onUpdate
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(info)
	}
	return info
}

// Reset rewinds the clock to zero and notifies reset listeners.
func (w *World) Reset() {
	w.mu.Lock()
	w.simTime = 0
	w.iteration = 0
	listeners := w.onReset
	w.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Run steps the world until ctx is done. In realtime mode one step is taken
// per wall-clock step interval; otherwise steps run back to back.
func (w *World) Run(ctx context.Context, realtime bool) {
	if !realtime {
		for {
			if ctx.Err() != nil {
				return
			}
			w.Step()
		}
	}

	ticker := time.NewTicker(w.step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Step()
		}
	}
}
