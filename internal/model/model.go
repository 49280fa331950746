// Package model holds the gorm tables written by the recorder.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/actorsteer/actorsteer/internal/geo"
	"github.com/actorsteer/actorsteer/pkg/core"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []any{
	&Run{},
	&TickSample{},
}

// Run is one controller session for one actor.
type Run struct {
	ID              uint           `json:"id" gorm:"primarykey"`
	Actor           string         `json:"actor" gorm:"size:127;index:idx_run_actor"`
	StartedAt       time.Time      `json:"startedAt" gorm:"index:idx_run_started"`
	EndedAt         *time.Time     `json:"endedAt"`
	AnimationFactor float64        `json:"animationFactor"`
	Bounds          datatypes.JSON `json:"bounds"`
	Ticks           uint64         `json:"ticks"`
	Distance        float64        `json:"distance"`

	// Path is the walked route as an XYZ line string. Empty until the run
	// ends with at least two distinct positions.
	Path geom.Geometry `json:"-"`
}

func (*Run) TableName() string {
	return "runs"
}

// TickSample is one integrated tick.
type TickSample struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	RunID      uint           `json:"runId" gorm:"index:idx_sample_run_time,priority:1"`
	Run        Run            `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	SimTime    time.Duration  `json:"simTime" gorm:"index:idx_sample_run_time,priority:2"`
	Dt         float64        `json:"dt"`
	Position   geom.Point     `json:"position"`
	Yaw        float64        `json:"yaw"`
	Mode       string         `json:"mode" gorm:"size:16"`
	Distance   float64        `json:"distance"`
	ScriptTime float64        `json:"scriptTime"`
	Clamped    bool           `json:"clamped"`
	Command    datatypes.JSON `json:"command"`
}

func (*TickSample) TableName() string {
	return "tick_samples"
}

// NewRun creates a run record. bounds is stored as JSON.
func NewRun(actor string, startedAt time.Time, animationFactor float64, bounds any) (Run, error) {
	b, err := json.Marshal(bounds)
	if err != nil {
		return Run{}, fmt.Errorf("marshal bounds: %w", err)
	}
	return Run{
		Actor:           actor,
		StartedAt:       startedAt,
		AnimationFactor: animationFactor,
		Bounds:          datatypes.JSON(b),
	}, nil
}

// FromSample converts a tick sample into a row for runID. The command is
// stored as JSON with non-finite values written as strings, since JSON has
// no NaN.
func FromSample(runID uint, s core.TickSample) TickSample {
	return TickSample{
		RunID:      runID,
		SimTime:    s.SimTime,
		Dt:         s.Dt,
		Position:   geo.PointFromVec3(s.Pose.Position),
		Yaw:        s.Pose.Yaw,
		Mode:       s.Mode.String(),
		Distance:   s.Distance,
		ScriptTime: s.ScriptTime,
		Clamped:    s.Clamped,
		Command:    commandJSON(s.Command),
	}
}

func commandJSON(c core.VelocityCommand) datatypes.JSON {
	b, err := json.Marshal(struct {
		Linear      [3]jsonFloat `json:"linear"`
		AngularRate jsonFloat    `json:"angularRate"`
	}{
		Linear:      [3]jsonFloat{jsonFloat(c.Linear[0]), jsonFloat(c.Linear[1]), jsonFloat(c.Linear[2])},
		AngularRate: jsonFloat(c.AngularRate),
	})
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}
