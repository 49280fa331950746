// pkg/core/types.go
package core

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Vector3 is the wire form of a 3D vector, matching geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec3 converts the wire vector into an mgl64 vector.
func (v Vector3) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// Twist is an inbound velocity command expressed in the actor's local frame.
// Only Linear.X, Linear.Y and Angular.Z are consumed.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// VelocityCommand is the latest command re-expressed in the world frame.
// Linear.Z() is always 0.
type VelocityCommand struct {
	Linear      mgl64.Vec3 `json:"linear"`
	AngularRate float64    `json:"angularRate"`
}

// UpdateInfo is the timing information handed to the controller on every tick.
type UpdateInfo struct {
	SimTime   time.Duration
	Iteration uint64
}

// TrajectoryInfo binds a skeleton animation to a custom time source.
type TrajectoryInfo struct {
	Type     string
	Duration time.Duration
}
