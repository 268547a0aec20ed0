package kinematics

import "github.com/tivoli-arcade/gokart/pkg/core"

const (
	// StopEpsilon is the speed below which coasting snaps to a standstill.
	StopEpsilon = 0.1
	// ReverseRatio caps reverse speed as a fraction of the current max speed.
	ReverseRatio = 0.6
)

// Traction scales the kart's handling for the surface it is on.
type Traction struct {
	Speed    float64 // multiplies base speed and acceleration
	Rotation float64 // multiplies rotation speed
	Drag     float64 // per-tick speed retention while coasting
	Shake    float64 // jitter amplitude as a fraction of speed
}

var (
	OnTrack  = Traction{Speed: 1.0, Rotation: 1.0, Drag: 0.98}
	OffTrack = Traction{Speed: 0.3, Rotation: 0.7, Drag: 0.9, Shake: 0.3}
)

// TractionFor maps a terrain sample to its traction profile.
func TractionFor(s core.TerrainSample) Traction {
	if s.IsOnTrack {
		return OnTrack
	}
	return OffTrack
}

// DefaultParams is the arcade kart used by the default track.
var DefaultParams = core.KinematicParams{
	BaseSpeed:     4,
	Acceleration:  0.1,
	Deceleration:  0.2,
	RotationSpeed: 3,
}
