// Package host declares the surface a simulation engine exposes to the actor controller.
// The engine owns the actor; the controller only holds a non-owning handle.
package host

import "github.com/actorsteer/actorsteer/pkg/core"

// Actor is a handle to an engine-owned animated actor.
//
// WorldPose may be called from the command delivery goroutine while the tick
// loop is writing, so implementations must make it safe for concurrent use.
type Actor interface {
	Name() string
	WorldPose() core.Pose
	SetWorldPose(core.Pose)
	ScriptTime() float64
	SetScriptTime(float64)
	HasSkeletonAnimation(name string) bool
	SetCustomTrajectory(core.TrajectoryInfo)
}

// Transport reports whether the command transport is ready to deliver.
type Transport interface {
	Ready() bool
}

// TransportFunc adapts a function to Transport.
type TransportFunc func() bool

// Ready calls f.
func (f TransportFunc) Ready() bool { return f() }
