package motion

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actorsteer/actorsteer/internal/command"
	"github.com/actorsteer/actorsteer/internal/simhost"
	"github.com/actorsteer/actorsteer/pkg/core"
)

const eps = 1e-9

func newTestIntegrator(t *testing.T, factor float64) (*Integrator, *command.Buffer, *simhost.Actor) {
	t.Helper()
	buf := command.NewBuffer()
	in, err := New(buf, Config{AnimationFactor: factor})
	require.NoError(t, err)
	actor := simhost.NewActor("walker", core.Pose{Position: mgl64.Vec3{0, 0, 0.98}}.Upright(), "walking")
	return in, buf, actor
}

func tick(in *Integrator, actor *simhost.Actor, at time.Duration) core.TickSample {
	return in.OnUpdate(core.UpdateInfo{SimTime: at}, actor)
}

func TestNew_Defaults(t *testing.T) {
	in, err := New(command.NewBuffer(), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnimationFactor, in.Config().AnimationFactor)
	assert.Equal(t, DefaultBounds, in.Config().Bounds)
}

func TestNew_NonPositiveFactorFallsBack(t *testing.T) {
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		in, err := New(command.NewBuffer(), Config{AnimationFactor: f})
		require.NoError(t, err)
		assert.Equal(t, DefaultAnimationFactor, in.Config().AnimationFactor)
	}
}

func TestNew_ZeroBoundsMeansDefault(t *testing.T) {
	in, err := New(command.NewBuffer(), Config{Bounds: Bounds{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultBounds, in.Config().Bounds)

	// A non-zero box is kept even when it collapses to a point.
	pinned := Bounds{MinX: 1, MaxX: 1, MinY: 1, MaxY: 1}
	in, err = New(command.NewBuffer(), Config{Bounds: pinned})
	require.NoError(t, err)
	assert.Equal(t, pinned, in.Config().Bounds)
}

func TestOnUpdate_InfiniteFactorKeepsScriptTimeFinite(t *testing.T) {
	in, err := New(command.NewBuffer(), Config{AnimationFactor: math.Inf(1)})
	require.NoError(t, err)
	actor := simhost.NewActor("walker", core.Pose{Position: mgl64.Vec3{0, 0, 0.98}}.Upright(), "walking")

	// Idle tick: zero distance times the factor.
	tick(in, actor, time.Second)
	assert.Zero(t, actor.ScriptTime())
	assert.False(t, math.IsNaN(actor.ScriptTime()))
}

func TestStep_TranslateMovesByLinearTimesDt(t *testing.T) {
	pose := core.Pose{Position: mgl64.Vec3{1, 2, 0.98}, Yaw: 0.3}
	cmd := core.VelocityCommand{Linear: mgl64.Vec3{0.5, -1, 0}, AngularRate: 0.1}

	next, mode := Step(pose, cmd, 0.2, DefaultBounds)

	assert.Equal(t, core.ModeTranslate, mode)
	assert.InDelta(t, 1.1, next.Position.X(), eps)
	assert.InDelta(t, 1.8, next.Position.Y(), eps)
	assert.InDelta(t, 0.4, next.Yaw, eps)
	assert.Equal(t, core.UprightRoll, next.Roll)
	assert.Equal(t, core.UprightPitch, next.Pitch)
}

func TestStep_RotateInPlace(t *testing.T) {
	pose := core.Pose{Position: mgl64.Vec3{3, -4, 0.98}, Yaw: 1}
	cmd := core.VelocityCommand{Linear: mgl64.Vec3{5, 5, 0}, AngularRate: 1.2}

	next, mode := Step(pose, cmd, 10, DefaultBounds)

	assert.Equal(t, core.ModeRotate, mode)
	assert.Equal(t, pose.Position, next.Position)
	assert.InDelta(t, 1+1.2*RotateDamping, next.Yaw, eps)
	assert.Equal(t, core.UprightRoll, next.Roll)
}

func TestStep_ThresholdBoundary(t *testing.T) {
	cmd := core.VelocityCommand{Linear: mgl64.Vec3{1, 0, 0}, AngularRate: RotateThreshold}
	_, mode := Step(core.Pose{}, cmd, 1, DefaultBounds)
	assert.Equal(t, core.ModeTranslate, mode, "threshold itself translates")

	cmd.AngularRate = -math.Nextafter(RotateThreshold, 1)
	_, mode = Step(core.Pose{}, cmd, 1, DefaultBounds)
	assert.Equal(t, core.ModeRotate, mode, "negative rates use magnitude")
}

func TestStep_ClampsInBothModes(t *testing.T) {
	outside := core.Pose{Position: mgl64.Vec3{50, -50, 7}}

	next, _ := Step(outside, core.VelocityCommand{AngularRate: 1}, 0, DefaultBounds)
	assert.Equal(t, mgl64.Vec3{20, -20, 0.98}, next.Position)

	next, _ = Step(outside, core.VelocityCommand{}, 0, DefaultBounds)
	assert.Equal(t, mgl64.Vec3{20, -20, 0.98}, next.Position)
}

func TestBounds_ClampNaNAndInf(t *testing.T) {
	b := DefaultBounds
	assert.Equal(t, mgl64.Vec3{20, 20, 0.98}, b.Clamp(mgl64.Vec3{math.NaN(), math.NaN(), math.NaN()}))
	assert.Equal(t, mgl64.Vec3{-10, 20, 0.98}, b.Clamp(mgl64.Vec3{math.Inf(-1), math.Inf(1), 0}))
}

func TestOnUpdate_AnimationClockFollowsDistance(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	buf.Set(core.VelocityCommand{Linear: mgl64.Vec3{3, 4, 0}})

	s := tick(in, actor, 100*time.Millisecond)

	assert.InDelta(t, 0.1, s.Dt, eps)
	assert.InDelta(t, 0.5, s.Distance, eps)
	assert.InDelta(t, 0.5*4.5, s.ScriptTime, eps)
	assert.InDelta(t, 0.5*4.5, actor.ScriptTime(), eps)
	assert.Equal(t, s.Pose, actor.WorldPose())
	assert.Equal(t, 100*time.Millisecond, in.LastUpdate())
}

// Distance is measured after clamping, so pushing against a wall does not
// advance the animation.
func TestOnUpdate_NoFootSkatingAgainstBound(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	actor.SetWorldPose(core.Pose{Position: mgl64.Vec3{20, 0, 0.98}}.Upright())
	buf.Set(core.VelocityCommand{Linear: mgl64.Vec3{5, 0, 0}})

	s := tick(in, actor, time.Second)

	assert.True(t, s.Clamped)
	assert.Equal(t, 0.0, s.Distance)
	assert.Equal(t, 0.0, actor.ScriptTime())
}

func TestOnUpdate_RotateKeepsPositionAndClock(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	start := core.Pose{Position: mgl64.Vec3{1, 1, 0.98}, Yaw: 0.5}.Upright()
	actor.SetWorldPose(start)
	buf.Set(core.VelocityCommand{Linear: mgl64.Vec3{1, 1, 0}, AngularRate: -0.5})

	s := tick(in, actor, time.Second)

	assert.Equal(t, core.ModeRotate, s.Mode)
	assert.Equal(t, start.Position, actor.WorldPose().Position)
	assert.InDelta(t, 0.5-0.5*RotateDamping, actor.WorldPose().Yaw, eps)
	assert.Equal(t, 0.0, actor.ScriptTime())
}

// Rotating in place snaps an off-ground actor to the ground; that jump counts
// as distance travelled.
func TestOnUpdate_RotatePinsGroundHeight(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 2)
	actor.SetWorldPose(core.Pose{Position: mgl64.Vec3{0, 0, 1.98}})
	buf.Set(core.VelocityCommand{AngularRate: 1})

	s := tick(in, actor, time.Second)

	assert.Equal(t, 0.98, actor.WorldPose().Position.Z())
	assert.InDelta(t, 1.0, s.Distance, eps)
	assert.InDelta(t, 2.0, actor.ScriptTime(), eps)
}

func TestOnUpdate_ZeroDtStillAdvancesTimestamp(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	buf.Set(core.VelocityCommand{Linear: mgl64.Vec3{1, 0, 0}})

	tick(in, actor, time.Second)
	before := actor.WorldPose()
	clock := actor.ScriptTime()

	s := tick(in, actor, time.Second)
	assert.Equal(t, 0.0, s.Dt)
	assert.Equal(t, before.Position, actor.WorldPose().Position)
	assert.Equal(t, clock, actor.ScriptTime())
	assert.Equal(t, time.Second, in.LastUpdate())

	s = tick(in, actor, 1500*time.Millisecond)
	assert.InDelta(t, 0.5, s.Dt, eps)
	assert.InDelta(t, before.Position.X()+0.5, actor.WorldPose().Position.X(), eps)
}

func TestOnUpdate_NegativeDtMovesBackwardButClockDoesNotRegress(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	buf.Set(core.VelocityCommand{Linear: mgl64.Vec3{1, 0, 0}})

	tick(in, actor, 2*time.Second)
	clock := actor.ScriptTime()

	s := tick(in, actor, time.Second)
	assert.InDelta(t, -1, s.Dt, eps)
	assert.GreaterOrEqual(t, actor.ScriptTime(), clock)
	assert.Equal(t, time.Second, in.LastUpdate())
}

func TestOnUpdate_LastCommandWins(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)

	buf.Store(core.Twist{Angular: core.Vector3{Z: 2}}, 0)
	buf.Store(core.Twist{Linear: core.Vector3{X: 1}}, 0)

	s := tick(in, actor, time.Second)

	assert.Equal(t, core.ModeTranslate, s.Mode)
	assert.InDelta(t, -1, actor.WorldPose().Position.Y(), eps)
	assert.InDelta(t, 0, actor.WorldPose().Yaw, eps)
}

func TestReset_ForgetsLastUpdate(t *testing.T) {
	in, _, actor := newTestIntegrator(t, 4.5)
	tick(in, actor, 3*time.Second)
	in.Reset()
	assert.Equal(t, time.Duration(0), in.LastUpdate())
}

// Random walk with arbitrary command magnitudes.
func TestOnUpdate_Invariants(t *testing.T) {
	in, buf, actor := newTestIntegrator(t, 4.5)
	rng := rand.New(rand.NewSource(42))

	var simTime time.Duration
	prevClock := actor.ScriptTime()
	for i := 0; i < 5000; i++ {
		scale := math.Pow(10, float64(rng.Intn(8)-2))
		buf.Store(core.Twist{
			Linear:  core.Vector3{X: (rng.Float64()*2 - 1) * scale, Y: (rng.Float64()*2 - 1) * scale},
			Angular: core.Vector3{Z: (rng.Float64()*2 - 1) * 0.5},
		}, actor.WorldPose().Yaw)

		before := actor.WorldPose()
		cmd := buf.Load()
		simTime += time.Duration(rng.Intn(50)) * time.Millisecond

		s := tick(in, actor, simTime)
		after := actor.WorldPose()

		require.True(t, DefaultBounds.Contains(after.Position), "tick %d: %v", i, after.Position)
		require.Equal(t, DefaultBounds.GroundHeight, after.Position.Z())
		require.GreaterOrEqual(t, actor.ScriptTime(), prevClock)
		require.InDelta(t, prevClock+s.Distance*4.5, actor.ScriptTime(), 1e-6)

		if s.Mode == core.ModeRotate {
			require.InDelta(t, before.Yaw+cmd.AngularRate*RotateDamping, after.Yaw, eps)
		} else {
			require.InDelta(t, before.Yaw+cmd.AngularRate, after.Yaw, eps)
		}
		prevClock = actor.ScriptTime()
	}
}
