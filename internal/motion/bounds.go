package motion

import "github.com/go-gl/mathgl/mgl64"

// Bounds is the axis-aligned operating area. Z is pinned to GroundHeight.
type Bounds struct {
	MinX         float64
	MaxX         float64
	MinY         float64
	MaxY         float64
	GroundHeight float64
}

// DefaultBounds is the area the walking actor is kept inside.
var DefaultBounds = Bounds{
	MinX:         -10,
	MaxX:         20,
	MinY:         -20,
	MaxY:         20,
	GroundHeight: 0.98,
}

// Clamp forces p into the bounds and onto the ground plane.
func (b Bounds) Clamp(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		clamp(p.X(), b.MinX, b.MaxX),
		clamp(p.Y(), b.MinY, b.MaxY),
		b.GroundHeight,
	}
}

// Contains reports whether p satisfies the bounds invariant.
func (b Bounds) Contains(p mgl64.Vec3) bool {
	return p.X() >= b.MinX && p.X() <= b.MaxX &&
		p.Y() >= b.MinY && p.Y() <= b.MaxY &&
		p.Z() == b.GroundHeight
}

// clamp is min-then-max written with ordered comparisons, so NaN lands on hi
// instead of escaping the bounds.
func clamp(v, lo, hi float64) float64 {
	if !(v < hi) {
		v = hi
	}
	if !(lo < v) {
		v = lo
	}
	return v
}
