package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Actor positions are local simulation coordinates in metres. They are stored
// as XYZ points so recorded samples keep the ground height alongside X/Y.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Vec3FromString parses "x,y" or "x,y,z" into a vector. A missing z is 0.
func Vec3FromString(coords string) (mgl64.Vec3, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return mgl64.Vec3{}, ErrInvalidCoordinates
	}
	var v mgl64.Vec3
	for i, s := range coordsSplit {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return mgl64.Vec3{}, ErrInvalidCoordinates
		}
		v[i] = f
	}
	return v, nil
}

// PointFromVec3 converts a position into an XYZ point.
func PointFromVec3(v mgl64.Vec3) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: v.X(), Y: v.Y()},
			Z:    v.Z(),
			Type: geom.DimXYZ,
		},
	)
}

// Vec3FromPoint converts a point back into a position. Empty points report false.
func Vec3FromPoint(p geom.Point) (mgl64.Vec3, bool) {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec3{}, false
	}
	return mgl64.Vec3{c.X, c.Y, c.Z}, true
}
