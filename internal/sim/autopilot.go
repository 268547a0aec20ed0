package sim

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/tivoli-arcade/gokart/internal/kinematics"
	"github.com/tivoli-arcade/gokart/internal/race"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Autopilot steers toward the next unpassed checkpoint and then the finish
// line. It drives the demo mode.
type Autopilot struct {
	tracker *race.Tracker

	// SteerDeadband is the heading error in degrees tolerated without
	// steering.
	SteerDeadband float64
	// ThrottleCone is the heading error in degrees within which the
	// autopilot accelerates.
	ThrottleCone float64
	// BrakeAbove is the speed above which a badly aimed kart brakes instead
	// of coasting.
	BrakeAbove float64
}

// NewAutopilot returns an autopilot reading targets from tracker.
func NewAutopilot(tracker *race.Tracker) *Autopilot {
	return &Autopilot{
		tracker:       tracker,
		SteerDeadband: 2,
		ThrottleCone:  60,
		BrakeAbove:    1.5,
	}
}

// Target returns the point the autopilot is heading for.
func (a *Autopilot) Target() mgl64.Vec2 {
	if cp, ok := a.tracker.NextTarget(); ok {
		return mgl64.Vec2{cp.X, cp.Y}
	}
	x, y := a.tracker.Definition().FinishLine.Center()
	return mgl64.Vec2{x, y}
}

// Decide returns the controls for the next tick given the current state.
func (a *Autopilot) Decide(s Snapshot) core.ControlState {
	if s.State != core.Racing {
		return core.ControlState{}
	}

	to := a.Target().Sub(mgl64.Vec2{s.Pose.X, s.Pose.Y})
	if to.Len() < 1e-6 {
		return core.ControlState{Forward: true}
	}

	// 0° points to negative Y, so heading is atan2(dx, -dy).
	desired := mgl64.RadToDeg(math.Atan2(to.X(), -to.Y()))
	diff := kinematics.NormalizeDegrees(desired-s.Pose.Rotation+180) - 180

	var c core.ControlState
	switch {
	case diff > a.SteerDeadband:
		c.Right = true
	case diff < -a.SteerDeadband:
		c.Left = true
	}

	switch {
	case math.Abs(diff) <= a.ThrottleCone:
		c.Forward = true
	case s.Speed > a.BrakeAbove:
		c.Backward = true
	}
	return c
}
