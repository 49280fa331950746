// Package plugin is the per-actor controller the host loads: it owns the
// command buffer and the motion integrator and connects them to the host's
// lifecycle hooks and the command transport.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/actorsteer/actorsteer/internal/command"
	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/internal/logging"
	"github.com/actorsteer/actorsteer/internal/motion"
	"github.com/actorsteer/actorsteer/pkg/core"
	"github.com/actorsteer/actorsteer/pkg/host"
)

var (
	// ErrTransportNotReady is returned by Load when commands cannot be received.
	ErrTransportNotReady = errors.New("command transport not ready")

	// ErrNotLoaded is returned for commands sent to a plugin that never loaded.
	ErrNotLoaded = errors.New("plugin not loaded")
)

const (
	// ParamAnimationFactor is the load parameter scaling distance into script time.
	ParamAnimationFactor = "animation_factor"

	// ResetTopic is the dispatcher topic that requests a reset.
	ResetTopic = "reset"

	// ResetVelocity is the nominal walking speed restored on reset.
	ResetVelocity = 0.8

	// DefaultWalkingAnimation is the skeleton animation driven by the script clock.
	DefaultWalkingAnimation = "walking"
)

// ResetTarget is the target position restored on reset.
var ResetTarget = mgl64.Vec3{0, 0, 1.2138}

// Params are the load-time parameters the host passes from the actor's
// description. Values are unparsed strings.
type Params map[string]string

// Observer receives every tick sample on the tick goroutine. It must not block.
type Observer interface {
	ObserveTick(core.TickSample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(core.TickSample)

// ObserveTick calls f.
func (f ObserverFunc) ObserveTick(s core.TickSample) { f(s) }

// Options configures an ActorPlugin.
type Options struct {
	// AnimationFactor applies when Params has no animation_factor.
	AnimationFactor  float64
	WalkingAnimation string
	Bounds           motion.Bounds
	Observers        []Observer
}

// Status is a point-in-time snapshot, safe to read from any goroutine.
type Status struct {
	Actor      string
	Active     bool
	Degraded   bool
	Velocity   float64
	Target     mgl64.Vec3
	Pose       core.Pose
	ScriptTime float64
	SimTime    time.Duration
	Mode       core.Mode
	Command    core.VelocityCommand
	Ticks      uint64
	Resets     uint64
	Commands   uint64
	Rejected   uint64
}

// ActorPlugin drives one actor. Load, Reset and OnUpdate belong to the tick
// goroutine; OnVelocityCommand and RequestReset may be called from anywhere.
type ActorPlugin struct {
	logger *slog.Logger
	opts   Options

	actor      host.Actor
	buffer     *command.Buffer
	integrator *motion.Integrator

	active       atomic.Bool
	resetPending atomic.Bool

	velocity float64
	target   mgl64.Vec3
	degraded bool
	ticks    uint64
	resets   uint64

	rejected atomic.Uint64
	status   atomic.Pointer[Status]
}

// New creates an inactive plugin. Call Load to attach it to an actor.
func New(logger *slog.Logger, opts Options) *ActorPlugin {
	if opts.WalkingAnimation == "" {
		opts.WalkingAnimation = DefaultWalkingAnimation
	}
	if !motion.ValidAnimationFactor(opts.AnimationFactor) {
		opts.AnimationFactor = motion.DefaultAnimationFactor
	}
	p := &ActorPlugin{
		logger: logger.With("component", "plugin"),
		opts:   opts,
		buffer: command.NewBuffer(),
	}
	p.status.Store(&Status{})
	return p
}

// Load attaches the plugin to actor. If the transport is not ready the
// failure is logged at fatal level and the plugin stays inactive for good.
func (p *ActorPlugin) Load(actor host.Actor, transport host.Transport, params Params) error {
	if transport == nil || !transport.Ready() {
		logging.Fatal(p.logger, "Command transport is not ready, actor will not be driven", "actor", actor.Name())
		return ErrTransportNotReady
	}

	factor := p.opts.AnimationFactor
	if raw, ok := params[ParamAnimationFactor]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			p.logger.Warn("Ignoring invalid animation factor", "value", raw, "error", err)
		} else {
			factor = v
		}
	}

	in, err := motion.New(p.buffer, motion.Config{AnimationFactor: factor, Bounds: p.opts.Bounds})
	if err != nil {
		return fmt.Errorf("create integrator: %w", err)
	}

	p.actor = actor
	p.integrator = in
	p.logger = p.logger.With("actor", actor.Name())
	p.active.Store(true)

	p.Reset()
	p.logger.Info("Actor plugin loaded", "animationFactor", in.Config().AnimationFactor)
	return nil
}

// Active reports whether Load succeeded.
func (p *ActorPlugin) Active() bool {
	return p.active.Load()
}

// Reset restores the initial controller state. Without the walking
// animation the actor keeps running in degraded mode.
func (p *ActorPlugin) Reset() {
	if !p.active.Load() {
		return
	}

	p.velocity = ResetVelocity
	p.integrator.Reset()
	p.target = ResetTarget
	p.resets++

	if !p.actor.HasSkeletonAnimation(p.opts.WalkingAnimation) {
		p.degraded = true
		p.logger.Error("Skeleton animation not found", "animation", p.opts.WalkingAnimation)
		p.publish(nil)
		return
	}

	p.degraded = false
	p.actor.SetCustomTrajectory(core.TrajectoryInfo{
		Type:     p.opts.WalkingAnimation,
		Duration: time.Second,
	})
	p.buffer.Clear()
	p.publish(nil)
}

// RequestReset schedules a Reset for the start of the next tick.
func (p *ActorPlugin) RequestReset() {
	p.resetPending.Store(true)
}

// OnUpdate advances the actor by one tick.
func (p *ActorPlugin) OnUpdate(info core.UpdateInfo) {
	if !p.active.Load() {
		return
	}
	if p.resetPending.Swap(false) {
		p.Reset()
	}

	sample := p.integrator.OnUpdate(info, p.actor)
	p.ticks++

	for _, o := range p.opts.Observers {
		o.ObserveTick(sample)
	}
	p.publish(&sample)
}

// OnVelocityCommand replaces the stored command with t, rotated into the
// world frame by the actor's current heading.
func (p *ActorPlugin) OnVelocityCommand(t core.Twist) error {
	if !p.active.Load() {
		return ErrNotLoaded
	}
	p.buffer.Store(t, p.actor.WorldPose().Yaw)
	return nil
}

// RegisterHandlers routes velocity commands on topic and reset requests
// through d. Velocity commands keep only the newest pending message.
func (p *ActorPlugin) RegisterHandlers(d *dispatcher.Dispatcher, topic string) {
	d.Register(topic, p.handleVelocity, dispatcher.Latest())
	d.Register(ResetTopic, func(dispatcher.Event) (any, error) {
		if !p.active.Load() {
			return nil, ErrNotLoaded
		}
		p.RequestReset()
		return "reset scheduled", nil
	})
}

func (p *ActorPlugin) handleVelocity(e dispatcher.Event) (any, error) {
	var (
		t   core.Twist
		err error
	)
	if len(e.Args) > 0 {
		t, err = command.ParseTwistArgs(e.Args)
	} else {
		t, err = command.DecodeTwist(e.Payload)
	}
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}
	if err := p.OnVelocityCommand(t); err != nil {
		return nil, err
	}
	return "ok", nil
}

// Status returns the latest snapshot.
func (p *ActorPlugin) Status() Status {
	s := *p.status.Load()
	s.Commands = p.buffer.Writes()
	s.Rejected = p.rejected.Load()
	return s
}

func (p *ActorPlugin) publish(sample *core.TickSample) {
	s := Status{
		Active:   true,
		Degraded: p.degraded,
		Velocity: p.velocity,
		Target:   p.target,
		Ticks:    p.ticks,
		Resets:   p.resets,
	}
	if p.actor != nil {
		s.Actor = p.actor.Name()
		s.Pose = p.actor.WorldPose()
		s.ScriptTime = p.actor.ScriptTime()
	}
	if sample != nil {
		s.SimTime = sample.SimTime
		s.Mode = sample.Mode
		s.Command = sample.Command
	} else {
		s.Command = p.buffer.Load()
	}
	p.status.Store(&s)
}
