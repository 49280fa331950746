// Package recorder persists per-tick samples. The tick loop only pushes into
// a bounded in-memory queue; a background loop converts and writes batches
// to the configured Backend.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/actorsteer/actorsteer/internal/geo"
	"github.com/actorsteer/actorsteer/internal/model"
	"github.com/actorsteer/actorsteer/internal/queue"
	"github.com/actorsteer/actorsteer/pkg/core"
)

// PathResolution is the minimum distance, in metres, between two recorded
// path vertices.
const PathResolution = 0.05

// ErrNotStarted is returned by Flush before Start.
var ErrNotStarted = errors.New("recorder not started")

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	Init(ctx context.Context) error
	Close() error

	// StartRun stores run and assigns its ID.
	StartRun(ctx context.Context, run *model.Run) error
	WriteSamples(ctx context.Context, samples []model.TickSample) error
	EndRun(ctx context.Context, run *model.Run) error
}

// Config controls batching.
type Config struct {
	FlushInterval time.Duration
	QueueSize     int
}

// Recorder implements plugin.Observer.
type Recorder struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	queue   *queue.Queue[core.TickSample]

	flushMu  sync.Mutex
	run      model.Run
	started  bool
	path     []mgl64.Vec3
	ticks    uint64
	distance float64

	written atomic.Uint64
	lost    atomic.Uint64

	stop    chan struct{}
	stopped chan struct{}
}

// New creates a recorder writing to backend.
func New(backend Backend, cfg Config, logger *slog.Logger) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Recorder{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "recorder"),
		queue:   queue.New[core.TickSample](cfg.QueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start initialises the backend, stores run and starts the flush loop.
func (r *Recorder) Start(ctx context.Context, run model.Run) error {
	if err := r.backend.Init(ctx); err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	if err := r.backend.StartRun(ctx, &run); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	r.flushMu.Lock()
	r.run = run
	r.started = true
	r.flushMu.Unlock()

	go r.loop()
	r.logger.Info("Recording started", "run", run.ID, "actor", run.Actor)
	return nil
}

// ObserveTick queues s. It never blocks; the oldest samples are dropped
// when the flush loop falls behind.
func (r *Recorder) ObserveTick(s core.TickSample) {
	r.queue.Push(s)
}

// Written returns the number of samples handed to the backend.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Dropped returns the number of samples that never reached the backend:
// evicted from the queue, or still unwritten when the recorder closed.
func (r *Recorder) Dropped() uint64 {
	return r.queue.Dropped() + r.lost.Load()
}

// Pending returns the number of queued samples.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

func (r *Recorder) loop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Error("Error flushing samples", "error", err)
			}
		}
	}
}

// Flush writes every queued sample now.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if !r.started {
		return ErrNotStarted
	}

	samples := r.queue.GetAndEmpty()
	if len(samples) == 0 {
		return nil
	}

	rows := make([]model.TickSample, len(samples))
	for i, s := range samples {
		rows[i] = model.FromSample(r.run.ID, s)
	}

	start := time.Now()
	if err := r.backend.WriteSamples(ctx, rows); err != nil {
		// Retried on the next flush. Samples pushed out by newer ones count as dropped.
		r.queue.PushFront(samples...)
		return fmt.Errorf("write %d samples: %w", len(rows), err)
	}

	for _, s := range samples {
		r.extendPath(s.Pose.Position)
		r.distance += s.Distance
	}
	r.ticks += uint64(len(samples))
	r.written.Add(uint64(len(rows)))
	r.logger.Debug("Flushed samples", "count", len(rows), "duration", time.Since(start))
	return nil
}

func (r *Recorder) extendPath(p mgl64.Vec3) {
	if n := len(r.path); n > 0 && r.path[n-1].Sub(p).Len() < PathResolution {
		return
	}
	r.path = append(r.path, p)
}

// Close stops the flush loop, writes what is left, closes the run and the
// backend.
func (r *Recorder) Close(ctx context.Context) error {
	r.flushMu.Lock()
	started := r.started
	r.flushMu.Unlock()
	if !started {
		return r.backend.Close()
	}

	close(r.stop)
	<-r.stopped

	var errs []error
	if err := r.Flush(ctx); err != nil {
		errs = append(errs, err)
	}

	r.flushMu.Lock()
	r.lost.Add(uint64(len(r.queue.GetAndEmpty())))
	ended := time.Now()
	r.run.EndedAt = &ended
	r.run.Ticks = r.ticks
	r.run.Distance = r.distance
	if path, err := geo.PathFromPositions(r.path); err == nil {
		r.run.Path = path.AsGeometry()
	}
	run := r.run
	r.started = false
	r.flushMu.Unlock()

	if err := r.backend.EndRun(ctx, &run); err != nil {
		errs = append(errs, fmt.Errorf("end run: %w", err))
	}
	if err := r.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}

	r.logger.Info("Recording finished", "run", run.ID, "ticks", run.Ticks, "dropped", r.Dropped())
	return errors.Join(errs...)
}
