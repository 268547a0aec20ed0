package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Arena coordinates are screen pixels: X grows right, Y grows down. They are
// carried as plain XY points; there is no projection involved.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PoseFromString parses "x,y" or "x,y,rotation" into a core.Pose.
func PoseFromString(coords string) (core.Pose, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Pose{}, ErrInvalidCoordinates
	}
	vals := make([]float64, len(coordsSplit))
	for i, s := range coordsSplit {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Pose{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	pose := core.Pose{X: vals[0], Y: vals[1]}
	if len(vals) == 3 {
		pose.Rotation = vals[2]
	}
	return pose, nil
}

// XY returns the pose position.
func XY(p core.Pose) geom.XY {
	return geom.XY{X: p.X, Y: p.Y}
}

// InCircle reports whether xy lies within the checkpoint radius, edge included.
func InCircle(xy geom.XY, cp core.Checkpoint) bool {
	return xy.Sub(geom.XY{X: cp.X, Y: cp.Y}).Length() <= cp.Radius
}

// RectEnvelope returns the envelope covering r, edges included. Rectangles
// with non-finite corners are rejected.
func RectEnvelope(r core.Rect) (geom.Envelope, error) {
	env, err := geom.NewEnvelope([]geom.XY{
		{X: r.X, Y: r.Y},
		{X: r.X + r.W, Y: r.Y + r.H},
	})
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("invalid rectangle: %w", err)
	}
	return env, nil
}
