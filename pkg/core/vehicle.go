package core

import (
	"fmt"
	"strings"
)

// Pose is the kart's position and heading. Rotation is in degrees and
// 0° points "up" (negative Y).
type Pose struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// ControlState is a snapshot of the latched control buttons.
type ControlState struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
	Left     bool `json:"left"`
	Right    bool `json:"right"`
}

// Steer returns -1 for left, +1 for right and 0 when neither or both are held.
func (c ControlState) Steer() float64 {
	var s float64
	if c.Left {
		s--
	}
	if c.Right {
		s++
	}
	return s
}

// Direction identifies one control button.
type Direction uint8

const (
	DirForward Direction = iota
	DirBackward
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirForward:
		return "forward"
	case DirBackward:
		return "backward"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts the names produced by String plus the arrow-key
// aliases used by the host page ("up", "down").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "up":
		return DirForward, nil
	case "backward", "down", "back":
		return DirBackward, nil
	case "left":
		return DirLeft, nil
	case "right":
		return DirRight, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// KinematicParams are fixed for a kart instance. All values are per tick.
type KinematicParams struct {
	BaseSpeed     float64 `json:"baseSpeed" mapstructure:"baseSpeed"`
	Acceleration  float64 `json:"acceleration" mapstructure:"acceleration"`
	Deceleration  float64 `json:"deceleration" mapstructure:"deceleration"`
	RotationSpeed float64 `json:"rotationSpeed" mapstructure:"rotationSpeed"`
}

// Extent is the kart's footprint used for boundary clamping.
type Extent struct {
	W float64 `json:"w" mapstructure:"w"`
	H float64 `json:"h" mapstructure:"h"`
}

// TerrainSample is the surface classification under a pose.
type TerrainSample struct {
	IsOnTrack  bool `json:"isOnTrack"`
	Confidence int  `json:"confidence"` // 0..100
}
