package geo

import (
	"encoding/json"
	"fmt"
	"sync"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// ParseCheckpoints parses a JSON array of circles into checkpoints numbered
// from 1 in the given order.
// Input format: "[[x1,y1,r1],[x2,y2,r2],...]"
func ParseCheckpoints(input string) ([]core.Checkpoint, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint JSON: %w", err)
	}

	out := make([]core.Checkpoint, 0, len(coords))
	for i, c := range coords {
		if len(c) != 3 {
			return nil, fmt.Errorf("checkpoint %d: expected [x,y,radius], got %d values", i+1, len(c))
		}
		if c[2] <= 0 {
			return nil, fmt.Errorf("checkpoint %d: radius must be positive", i+1)
		}
		out = append(out, core.Checkpoint{ID: i + 1, X: c[0], Y: c[1], Radius: c[2]})
	}
	return out, nil
}

// Trail collects a down-sampled path of the kart for the leaderboard replay.
type Trail struct {
	mu     sync.Mutex
	every  uint64
	seen   uint64
	coords []float64
}

// NewTrail keeps one pose out of every n appended.
func NewTrail(every uint64) *Trail {
	if every == 0 {
		every = 1
	}
	return &Trail{every: every}
}

// Append records p when it falls on the sampling interval.
func (t *Trail) Append(p core.Pose) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen%t.every == 0 {
		t.coords = append(t.coords, p.X, p.Y)
	}
	t.seen++
}

// Len returns the number of recorded points.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.coords) / 2
}

// Reset drops all recorded points.
func (t *Trail) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coords = t.coords[:0]
	t.seen = 0
}

// LineString returns the trail as a line string. Fewer than two points
// yields an empty line string. A kart that never moved leaves only repeated
// points, which is not a valid line string.
func (t *Trail) LineString() (geom.LineString, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.coords) < 4 {
		return geom.LineString{}, nil
	}
	flat := make([]float64, len(t.coords))
	copy(flat, t.coords)
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("failed to build trail: %w", err)
	}
	return ls, nil
}

// WKT returns the trail in well-known text. An invalid trail is reported as
// an empty line string together with the error.
func (t *Trail) WKT() (string, error) {
	ls, err := t.LineString()
	return ls.AsText(), err
}

// TrailPoints converts a line string back to poses without heading.
func TrailPoints(ls geom.LineString) []core.Pose {
	seq := ls.Coordinates()
	if seq.Length() == 0 {
		return nil
	}
	out := make([]core.Pose, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		out[i] = core.Pose{X: xy.X, Y: xy.Y}
	}
	return out
}
