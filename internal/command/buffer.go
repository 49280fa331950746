// Package command holds the latest velocity command delivered to an actor.
//
// Commands arrive from the transport at an arbitrary rate, independently of the
// simulation tick. Only the most recent one is kept: each write replaces the
// previous command wholesale and there is no history.
package command

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/actorsteer/actorsteer/pkg/core"
)

// ToWorld re-expresses a local-frame twist in world coordinates for an actor
// whose raw world yaw is heading.
//
// The mapping follows the actor mesh convention, where the model's forward
// axis is -Y: a forward command (1,0,0) at heading 0 yields (0,-1,0).
func ToWorld(t core.Twist, heading float64) core.VelocityCommand {
	angle := -heading
	sin, cos := math.Sincos(angle)
	return core.VelocityCommand{
		Linear: mgl64.Vec3{
			t.Linear.Y*cos - t.Linear.X*sin,
			-(t.Linear.Y*sin + t.Linear.X*cos),
			0,
		},
		AngularRate: t.Angular.Z,
	}
}

// Buffer is a single-slot, overwrite-on-write cell for the latest command.
// The linear and angular parts are swapped in together, so a reader never
// observes a mix of two commands.
type Buffer struct {
	latest atomic.Pointer[core.VelocityCommand]
	writes atomic.Uint64
}

// NewBuffer creates a buffer holding the zero command.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.latest.Store(&core.VelocityCommand{})
	return b
}

// Store converts t into the world frame and replaces the held command.
// No validation is performed; NaN and Inf propagate to the integrator.
func (b *Buffer) Store(t core.Twist, heading float64) core.VelocityCommand {
	cmd := ToWorld(t, heading)
	b.Set(cmd)
	return cmd
}

// Set replaces the held command with an already world-frame command.
func (b *Buffer) Set(cmd core.VelocityCommand) {
	b.latest.Store(&cmd)
	b.writes.Add(1)
}

// Load returns the most recent command.
func (b *Buffer) Load() core.VelocityCommand {
	return *b.latest.Load()
}

// Clear resets the held command to zero.
func (b *Buffer) Clear() {
	b.latest.Store(&core.VelocityCommand{})
}

// Writes returns how many commands have been stored since creation.
func (b *Buffer) Writes() uint64 {
	return b.writes.Load()
}
