// pkg/core/pose.go
package core

import "github.com/go-gl/mathgl/mgl64"

// Upright orientation. Roll and pitch are never derived from physics.
const (
	UprightRoll  = 1.5707
	UprightPitch = 0.0
)

// Pose is an actor's world pose. Yaw is the only free rotational degree of freedom.
type Pose struct {
	Position mgl64.Vec3 `json:"position"`
	Roll     float64    `json:"roll"`
	Pitch    float64    `json:"pitch"`
	Yaw      float64    `json:"yaw"`
}

// Upright returns a copy of the pose with roll and pitch pinned upright.
func (p Pose) Upright() Pose {
	p.Roll = UprightRoll
	p.Pitch = UprightPitch
	return p
}

// Rotation returns the orientation as a quaternion.
func (p Pose) Rotation() mgl64.Quat {
	return mgl64.AnglesToQuat(p.Roll, p.Pitch, p.Yaw, mgl64.XYZ)
}
