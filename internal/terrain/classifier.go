// Package terrain decides whether a location is on the track by sampling
// the rendered track artwork around it.
package terrain

import (
	"image/color"
	"math"
	"sync/atomic"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Probe is one sample point relative to the kart and its vote weight.
type Probe struct {
	DX, DY float64
	Weight int
}

// Constellation is the fixed nine-point sampling pattern: the centre,
// four cardinal points 12px out and four diagonal points at (±8, ±8).
var Constellation = []Probe{
	{0, 0, 3},
	{0, -12, 2}, {12, 0, 2}, {0, 12, 2}, {-12, 0, 2},
	{8, -8, 1}, {8, 8, 1}, {-8, 8, 1}, {-8, -8, 1},
}

// Config tunes the colour test and the vote.
type Config struct {
	GrassColor         color.RGBA
	DominanceRatio     float64 // green must exceed red and blue by this factor
	MaxGrassDistance   float64 // RGB distance to GrassColor counted as grass
	OnTrackPercent     int     // minimum non-grass weight share
	FallbackConfidence int     // used when every probe is off the raster
}

// DefaultConfig matches the artwork shipped with the default track.
var DefaultConfig = Config{
	GrassColor:         color.RGBA{R: 90, G: 160, B: 60, A: 255},
	DominanceRatio:     1.3,
	MaxGrassDistance:   50,
	OnTrackPercent:     60,
	FallbackConfidence: 50,
}

// neutral is reported before any raster is available so the player is not
// penalised before the first paint.
var neutral = core.TerrainSample{IsOnTrack: true, Confidence: 100}

// Classifier is safe for concurrent use; the raster is swapped atomically.
type Classifier struct {
	cfg    Config
	raster atomic.Pointer[Raster]
}

// NewClassifier returns a classifier with no raster installed.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// SetRaster installs (or with nil, removes) the track artwork.
func (c *Classifier) SetRaster(r *Raster) {
	c.raster.Store(r)
}

// Raster returns the installed artwork or nil.
func (c *Classifier) Raster() *Raster {
	return c.raster.Load()
}

// Ready reports whether artwork has been installed.
func (c *Classifier) Ready() bool {
	return c.raster.Load() != nil
}

// Classify samples the constellation around (x, y).
func (c *Classifier) Classify(x, y float64) core.TerrainSample {
	r := c.raster.Load()
	if r == nil {
		return neutral
	}

	var total, track int
	for _, p := range Constellation {
		px := int(math.Floor(x + p.DX))
		py := int(math.Floor(y + p.DY))
		col, ok := r.At(px, py)
		if !ok {
			continue
		}
		total += p.Weight
		if !c.IsGrass(col) {
			track += p.Weight
		}
	}

	if total == 0 {
		conf := c.cfg.FallbackConfidence
		return core.TerrainSample{IsOnTrack: conf >= c.cfg.OnTrackPercent, Confidence: conf}
	}

	return core.TerrainSample{
		IsOnTrack:  track*100 >= total*c.cfg.OnTrackPercent,
		Confidence: int(math.Round(float64(track*100) / float64(total))),
	}
}

// IsGrass reports whether a pixel belongs to the off-track surface.
func (c *Classifier) IsGrass(col color.RGBA) bool {
	r, g, b := float64(col.R), float64(col.G), float64(col.B)
	if g > r*c.cfg.DominanceRatio && g > b*c.cfg.DominanceRatio {
		return true
	}
	gr, gg, gb := float64(c.cfg.GrassColor.R), float64(c.cfg.GrassColor.G), float64(c.cfg.GrassColor.B)
	dist := math.Sqrt((r-gr)*(r-gr) + (g-gg)*(g-gg) + (b-gb)*(b-gb))
	return dist < c.cfg.MaxGrassDistance
}
