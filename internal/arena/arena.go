// Package arena keeps the kart inside the playable area.
package arena

import (
	"sync"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Resolver clamps candidate poses to the current arena boundary. The
// boundary may be replaced from a resize handler while the simulation runs.
type Resolver struct {
	mu       sync.RWMutex
	boundary core.Boundary
	extent   core.Extent
}

// NewResolver creates a resolver for a kart of the given footprint.
func NewResolver(b core.Boundary, extent core.Extent) *Resolver {
	return &Resolver{boundary: b, extent: extent}
}

// Boundary returns the current arena rectangle.
func (r *Resolver) Boundary() core.Boundary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boundary
}

// Resize recomputes the boundary for a viewport of w×h anchored at the origin.
func (r *Resolver) Resize(w, h float64) {
	r.SetBoundary(core.Boundary{MinX: 0, MaxX: w, MinY: 0, MaxY: h})
}

// SetBoundary replaces the arena rectangle.
func (r *Resolver) SetBoundary(b core.Boundary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boundary = b
}

// Resolve clamps p to the current boundary.
func (r *Resolver) Resolve(p core.Pose) core.Pose {
	r.mu.RLock()
	b, e := r.boundary, r.extent
	r.mu.RUnlock()
	return Clamp(p, b, e)
}

// Clamp hard-clamps each axis independently to [min, max-extent]. Rotation
// is left untouched. When the arena is narrower than the kart the pose is
// pinned to the minimum edge.
func Clamp(p core.Pose, b core.Boundary, e core.Extent) core.Pose {
	p.X = clampAxis(p.X, b.MinX, b.MaxX-e.W)
	p.Y = clampAxis(p.Y, b.MinY, b.MaxY-e.H)
	return p
}

func clampAxis(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
