package geo

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// PathFromPositions builds an XYZ line string through the given positions.
func PathFromPositions(positions []mgl64.Vec3) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("path must have at least 2 points, got %d", len(positions))
	}

	flatCoords := make([]float64, 0, len(positions)*3)
	for _, p := range positions {
		flatCoords = append(flatCoords, p.X(), p.Y(), p.Z())
	}

	seq := geom.NewSequence(flatCoords, geom.DimXYZ)
	return geom.NewLineString(seq), nil
}
