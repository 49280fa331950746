// Package simhost is a minimal in-process simulation host: an animated actor
// and a fixed-step world clock. It stands in for the engine when running the
// controller headless and in tests.
package simhost

import (
	"sync"

	"github.com/actorsteer/actorsteer/pkg/core"
)

// Actor is an engine-side actor record, safe for concurrent use.
type Actor struct {
	mu         sync.RWMutex
	name       string
	pose       core.Pose
	scriptTime float64
	animations map[string]bool
	trajectory *core.TrajectoryInfo
	poseWrites uint64
}

// NewActor creates an actor at pose carrying the named skeleton animations.
func NewActor(name string, pose core.Pose, animations ...string) *Actor {
	a := &Actor{
		name:       name,
		pose:       pose,
		animations: make(map[string]bool, len(animations)),
	}
	for _, anim := range animations {
		a.animations[anim] = true
	}
	return a
}

// Name returns the actor name.
func (a *Actor) Name() string {
	return a.name
}

// WorldPose returns the current pose.
func (a *Actor) WorldPose() core.Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pose
}

// SetWorldPose replaces the current pose.
func (a *Actor) SetWorldPose(p core.Pose) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pose = p
	a.poseWrites++
}

// ScriptTime returns the animation clock.
func (a *Actor) ScriptTime() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scriptTime
}

// SetScriptTime sets the animation clock.
func (a *Actor) SetScriptTime(t float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scriptTime = t
}

// HasSkeletonAnimation reports whether the actor model carries the animation.
func (a *Actor) HasSkeletonAnimation(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.animations[name]
}

// SetCustomTrajectory binds an animation to an externally driven clock.
func (a *Actor) SetCustomTrajectory(t core.TrajectoryInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trajectory = &t
}

// Trajectory returns the installed custom trajectory, if any.
func (a *Actor) Trajectory() (core.TrajectoryInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.trajectory == nil {
		return core.TrajectoryInfo{}, false
	}
	return *a.trajectory, true
}

// PoseWrites returns how many times the pose has been written.
func (a *Actor) PoseWrites() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.poseWrites
}
