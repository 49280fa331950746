package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/actorsteer/actorsteer/internal/geo"
	"github.com/actorsteer/actorsteer/pkg/core"
)

// ErrInvalidTwist is returned when a command payload cannot be decoded.
var ErrInvalidTwist = errors.New("invalid twist payload")

// DecodeTwist decodes a JSON twist: {"linear":{"x":..},"angular":{"z":..}}.
// Missing fields are zero.
func DecodeTwist(data []byte) (core.Twist, error) {
	var t core.Twist
	if len(data) == 0 {
		return t, fmt.Errorf("%w: empty payload", ErrInvalidTwist)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return core.Twist{}, fmt.Errorf("%w: %v", ErrInvalidTwist, err)
	}
	return t, nil
}

// ParseTwistArgs parses the host call form: a linear "x,y,z" string followed by
// an optional angular "x,y,z" string.
func ParseTwistArgs(args []string) (core.Twist, error) {
	if len(args) == 0 || len(args) > 2 {
		return core.Twist{}, fmt.Errorf("%w: expected 1 or 2 args, got %d", ErrInvalidTwist, len(args))
	}

	linear, err := geo.Vec3FromString(args[0])
	if err != nil {
		return core.Twist{}, fmt.Errorf("%w: linear: %v", ErrInvalidTwist, err)
	}
	t := core.Twist{Linear: core.Vector3{X: linear.X(), Y: linear.Y(), Z: linear.Z()}}

	if len(args) == 2 {
		angular, err := geo.Vec3FromString(args[1])
		if err != nil {
			return core.Twist{}, fmt.Errorf("%w: angular: %v", ErrInvalidTwist, err)
		}
		t.Angular = core.Vector3{X: angular.X(), Y: angular.Y(), Z: angular.Z()}
	}
	return t, nil
}
