package core

import "time"

// Checkpoint is a circular region that must be entered once per lap.
type Checkpoint struct {
	ID     int     `json:"id" mapstructure:"id"`
	X      float64 `json:"x" mapstructure:"x"`
	Y      float64 `json:"y" mapstructure:"y"`
	Radius float64 `json:"radius" mapstructure:"radius"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	W float64 `json:"w" mapstructure:"w"`
	H float64 `json:"h" mapstructure:"h"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Boundary is the arena extent. It is recomputed whenever the viewport is
// resized.
type Boundary struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// Contains reports whether (x, y) lies inside the boundary, edges included.
func (b Boundary) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// TrackDefinition is the static description of one race track.
type TrackDefinition struct {
	Name        string
	Start       Pose
	TotalLaps   int
	Checkpoints []Checkpoint
	FinishLine  Rect
	LapCooldown time.Duration
}
