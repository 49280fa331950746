// Package memory keeps recorded runs in process memory. Used for tests and
// short interactive sessions where nothing has to survive the process.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/actorsteer/actorsteer/internal/model"
)

// ErrUnknownRun is returned when samples or an end reference a run that
// was never started.
var ErrUnknownRun = errors.New("unknown run")

// RunRecord groups a run with its samples.
type RunRecord struct {
	Run     model.Run
	Samples []model.TickSample
}

// Backend stores runs in memory.
type Backend struct {
	runs      map[uint]*RunRecord
	idCounter uint
	closed    bool
	mu        sync.RWMutex
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{runs: make(map[uint]*RunRecord)}
}

func (b *Backend) Init(context.Context) error {
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// StartRun assigns the next ID to run.
func (b *Backend) StartRun(_ context.Context, run *model.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	run.ID = b.idCounter
	b.runs[run.ID] = &RunRecord{Run: *run}
	return nil
}

func (b *Backend) WriteSamples(_ context.Context, samples []model.TickSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range samples {
		rec, ok := b.runs[s.RunID]
		if !ok {
			return ErrUnknownRun
		}
		b.idCounter++
		s.ID = b.idCounter
		rec.Samples = append(rec.Samples, s)
	}
	return nil
}

func (b *Backend) EndRun(_ context.Context, run *model.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.runs[run.ID]
	if !ok {
		return ErrUnknownRun
	}
	rec.Run = *run
	return nil
}

// Run returns a copy of the run with id and its samples.
func (b *Backend) Run(id uint) (RunRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.runs[id]
	if !ok {
		return RunRecord{}, false
	}
	out := RunRecord{Run: rec.Run, Samples: make([]model.TickSample, len(rec.Samples))}
	copy(out.Samples, rec.Samples)
	return out, true
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
