// Package motion advances an actor's pose once per simulation tick from the
// latest velocity command, and keeps the walking animation locked to the
// distance actually travelled.
package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/actorsteer/actorsteer/pkg/core"
	"github.com/actorsteer/actorsteer/pkg/host"
)

const (
	// RotateThreshold is the turn rate, in radians, above which the actor
	// rotates in place instead of translating.
	RotateThreshold = 10 * math.Pi / 180

	// RotateDamping scales the turn rate applied per tick while rotating in
	// place. It is independent of dt.
	RotateDamping = 0.001

	// DefaultAnimationFactor converts metres travelled into script time.
	DefaultAnimationFactor = 4.5
)

// Source yields the latest world-frame command.
type Source interface {
	Load() core.VelocityCommand
}

// Config holds the integrator's immutable settings.
type Config struct {
	// AnimationFactor must be positive and finite. Anything else is
	// replaced by DefaultAnimationFactor.
	AnimationFactor float64
	// Bounds left at its zero value means DefaultBounds. Any other value,
	// however degenerate, is used as given.
	Bounds Bounds
}

// ValidAnimationFactor reports whether f keeps script time finite and
// moving forward.
func ValidAnimationFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

// Step computes the next pose for one tick. It is pure: mode selection,
// integration and clamping only.
func Step(pose core.Pose, cmd core.VelocityCommand, dt float64, b Bounds) (next core.Pose, mode core.Mode) {
	next = pose
	if math.Abs(cmd.AngularRate) > RotateThreshold {
		mode = core.ModeRotate
		next.Yaw = pose.Yaw + cmd.AngularRate*RotateDamping
	} else {
		mode = core.ModeTranslate
		next.Position = pose.Position.Add(cmd.Linear.Mul(dt))
		next.Yaw = pose.Yaw + cmd.AngularRate
	}
	next = next.Upright()

	// Runs in both modes, so a rotating actor sitting on a bound is re-confirmed there.
	next.Position = b.Clamp(next.Position)
	return next, mode
}

// Integrator drives one actor. OnUpdate must only be called from the tick loop.
type Integrator struct {
	source Source
	cfg    Config

	lastUpdate time.Duration

	ticks    metric.Int64Counter
	clamped  metric.Int64Counter
	distance metric.Float64Histogram
}

// New creates an Integrator reading commands from source.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(source Source, cfg Config) (*Integrator, error) {
	// Script time must never run backwards or become NaN.
	if !ValidAnimationFactor(cfg.AnimationFactor) {
		cfg.AnimationFactor = DefaultAnimationFactor
	}
	if cfg.Bounds == (Bounds{}) {
		cfg.Bounds = DefaultBounds
	}

	in := &Integrator{
		source: source,
		cfg:    cfg,
	}

	m := meter()

	var err error

	in.ticks, err = m.Int64Counter(
		"motion.ticks",
		metric.WithDescription("Ticks integrated, by mode"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	in.clamped, err = m.Int64Counter(
		"motion.clamped",
		metric.WithDescription("Ticks where the bounds clamp moved the actor"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating clamped counter: %w", err)
	}

	in.distance, err = m.Float64Histogram(
		"motion.distance",
		metric.WithDescription("Distance travelled per tick"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating distance histogram: %w", err)
	}

	return in, nil
}

// Config returns the integrator's settings.
func (in *Integrator) Config() Config {
	return in.cfg
}

// LastUpdate returns the simulation time of the previous tick.
func (in *Integrator) LastUpdate() time.Duration {
	return in.lastUpdate
}

// Reset forgets the previous tick time.
func (in *Integrator) Reset() {
	in.lastUpdate = 0
}

// OnUpdate integrates one tick for actor and writes back pose and script time.
// It never fails: numeric problems are clamped or propagated, never returned.
func (in *Integrator) OnUpdate(info core.UpdateInfo, actor host.Actor) core.TickSample {
	dt := (info.SimTime - in.lastUpdate).Seconds()
	cmd := in.source.Load()

	before := actor.WorldPose()
	unclamped := before.Position
	if math.Abs(cmd.AngularRate) <= RotateThreshold {
		unclamped = before.Position.Add(cmd.Linear.Mul(dt))
	}

	next, mode := Step(before, cmd, dt, in.cfg.Bounds)

	// Measured against the pose as read before this tick's write.
	travelled := next.Position.Sub(before.Position).Len()

	actor.SetWorldPose(next)
	scriptTime := actor.ScriptTime() + travelled*in.cfg.AnimationFactor
	actor.SetScriptTime(scriptTime)
	in.lastUpdate = info.SimTime

	wasClamped := unclamped.X() != next.Position.X() || unclamped.Y() != next.Position.Y()

	ctx := context.Background()
	in.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode.String())))
	in.distance.Record(ctx, travelled)
	if wasClamped {
		in.clamped.Add(ctx, 1)
	}

	return core.TickSample{
		Actor:      actor.Name(),
		SimTime:    info.SimTime,
		Dt:         dt,
		Pose:       next,
		Mode:       mode,
		Distance:   travelled,
		ScriptTime: scriptTime,
		Clamped:    wasClamped,
		Command:    cmd,
	}
}
