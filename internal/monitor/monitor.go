// Package monitor periodically writes a human-readable status.txt with the
// actor state, the recorder backlog and the in-process metric counters.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/actorsteer/actorsteer/internal/plugin"
)

// StatusFile is the name of the file written into the output directory.
const StatusFile = "status.txt"

// StatusSource provides the actor snapshot.
type StatusSource interface {
	Status() plugin.Status
}

// CounterSource provides cumulative metric counters.
type CounterSource interface {
	Counters(ctx context.Context) (map[string]int64, error)
}

// RecorderStats describes the recorder backlog.
type RecorderStats interface {
	Pending() int
	Written() uint64
	Dropped() uint64
}

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Plugin    StatusSource
	Metrics   CounterSource
	Recorder  RecorderStats
	Logger    *slog.Logger
	OutputDir string
	Interval  time.Duration
	// Publish, when set, receives every snapshot after the file is written.
	Publish func(Snapshot)
}

// RecorderState is the recorder part of a snapshot.
type RecorderState struct {
	Pending int    `json:"pending"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Snapshot is one status sample.
type Snapshot struct {
	Time     time.Time        `json:"time"`
	Actor    plugin.Status    `json:"actor"`
	Recorder *RecorderState   `json:"recorder,omitempty"`
	Counters map[string]int64 `json:"counters,omitempty"`
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus collects a snapshot and renders it as text sections.
func (s *Service) GetProgramStatus(ctx context.Context) ([]string, Snapshot) {
	snap := Snapshot{
		Time:  time.Now().UTC(),
		Actor: s.deps.Plugin.Status(),
	}
	if s.deps.Recorder != nil {
		snap.Recorder = &RecorderState{
			Pending: s.deps.Recorder.Pending(),
			Written: s.deps.Recorder.Written(),
			Dropped: s.deps.Recorder.Dropped(),
		}
	}
	if s.deps.Metrics != nil {
		counters, err := s.deps.Metrics.Counters(ctx)
		if err != nil {
			s.deps.Logger.Debug("Error collecting counters", "error", err)
		}
		snap.Counters = counters
	}

	a := snap.Actor
	output := []string{
		fmt.Sprintf("time: %s", snap.Time.Format(time.RFC3339)),
		fmt.Sprintf("actor: %s active=%t degraded=%t", a.Actor, a.Active, a.Degraded),
		fmt.Sprintf("simTime: %s ticks=%d resets=%d", a.SimTime, a.Ticks, a.Resets),
		fmt.Sprintf("pose: x=%.3f y=%.3f z=%.3f yaw=%.4f", a.Pose.Position.X(), a.Pose.Position.Y(), a.Pose.Position.Z(), a.Pose.Yaw),
		fmt.Sprintf("mode: %s scriptTime=%.3f", a.Mode, a.ScriptTime),
		fmt.Sprintf("command: linear=(%.3f, %.3f) angular=%.3f commands=%d rejected=%d",
			a.Command.Linear.X(), a.Command.Linear.Y(), a.Command.AngularRate, a.Commands, a.Rejected),
	}

	if snap.Recorder != nil {
		output = append(output, indentJSON(snap.Recorder))
	}
	if len(snap.Counters) > 0 {
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			output = append(output, fmt.Sprintf("%s: %d", name, snap.Counters[name]))
		}
	}
	return output, snap
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}

// Start starts the status monitor goroutine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	path := filepath.Join(s.deps.OutputDir, StatusFile)
	statusFile, err := os.Create(path)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("error creating status file: %w", err)
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", path)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				lines, snap := s.GetProgramStatus(ctx)
				if err := writeStatus(statusFile, lines); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
				if s.deps.Publish != nil {
					s.deps.Publish(snap)
				}
			}
		}
	}()

	return nil
}

func writeStatus(f *os.File, lines []string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return f.Sync()
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	running := s.isRunning
	s.stopChan = nil
	s.mu.Unlock()

	if running && stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}
