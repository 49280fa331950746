// pkg/core/sample.go
package core

import "time"

// Mode is the per-tick motion mode. It is selected fresh on every tick.
type Mode uint8

const (
	ModeTranslate Mode = iota
	ModeRotate
)

func (m Mode) String() string {
	switch m {
	case ModeRotate:
		return "rotate"
	case ModeTranslate:
		return "translate"
	default:
		return "unknown"
	}
}

// TickSample is the outcome of a single tick, handed to observers.
type TickSample struct {
	Actor      string
	SimTime    time.Duration
	Dt         float64
	Pose       Pose
	Mode       Mode
	Distance   float64
	ScriptTime float64
	Clamped    bool
	Command    VelocityCommand
}
