// Package kinematics advances a kart's pose and speed one tick at a time.
package kinematics

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Integrator holds the immutable kart parameters and the jitter source.
// It is not safe for concurrent use; the simulation loop owns it.
type Integrator struct {
	Params core.KinematicParams
	rng    *rand.Rand
}

// New returns an integrator whose off-track jitter is reproducible for seed.
func New(params core.KinematicParams, seed uint64) *Integrator {
	return &Integrator{
		Params: params,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// MaxSpeed is the forward speed cap under traction t.
func (in *Integrator) MaxSpeed(t Traction) float64 {
	return in.Params.BaseSpeed * t.Speed
}

// Step returns the candidate pose and the new speed. The caller clamps the
// pose to the arena before committing it.
func (in *Integrator) Step(pose core.Pose, speed float64, c core.ControlState, t Traction) (core.Pose, float64) {
	pose.Rotation += in.Params.RotationSpeed * t.Rotation * c.Steer()

	speed = in.stepSpeed(speed, c, t)

	rad := mgl64.DegToRad(pose.Rotation)
	dx := math.Sin(rad) * speed
	dy := -math.Cos(rad) * speed

	if t.Shake > 0 && speed != 0 {
		amp := math.Abs(speed) * t.Shake
		dx += (in.rng.Float64() - 0.5) * amp
		dy += (in.rng.Float64() - 0.5) * amp
	}

	pose.X += dx
	pose.Y += dy
	return pose, speed
}

func (in *Integrator) stepSpeed(speed float64, c core.ControlState, t Traction) float64 {
	maxSpeed := in.MaxSpeed(t)

	switch {
	case c.Forward:
		speed += in.Params.Acceleration * t.Speed
	case c.Backward:
		speed -= in.Params.Deceleration * t.Speed
	default:
		speed *= t.Drag
		if math.Abs(speed) < StopEpsilon {
			speed = 0
		}
	}

	// The cap follows the current surface, so leaving the track bleeds speed
	// immediately even while coasting.
	return mgl64.Clamp(speed, -maxSpeed*ReverseRatio, maxSpeed)
}

// NormalizeDegrees maps any angle into [0, 360) for display.
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
