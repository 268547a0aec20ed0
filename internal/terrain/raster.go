package terrain

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Raster is an immutable RGBA snapshot of the static track artwork.
type Raster struct {
	img  *image.RGBA
	hash uint64
}

// NewRaster copies img into an RGBA buffer so pixel reads don't depend on
// the source image's colour model.
func NewRaster(img image.Image) *Raster {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}
	return &Raster{img: rgba, hash: xxh3.Hash(rgba.Pix)}
}

// Decode reads PNG, JPEG or GIF artwork.
func Decode(r io.Reader) (*Raster, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode track artwork: %w", err)
	}
	return NewRaster(img), nil
}

// Bounds returns the pixel rectangle of the raster.
func (r *Raster) Bounds() image.Rectangle {
	return r.img.Bounds()
}

// Fingerprint identifies the artwork so results from different track
// revisions are never compared.
func (r *Raster) Fingerprint() uint64 {
	return r.hash
}

// At returns the pixel at (x, y) and false when it is outside the raster.
func (r *Raster) At(x, y int) (color.RGBA, bool) {
	if !image.Pt(x, y).In(r.img.Rect) {
		return color.RGBA{}, false
	}
	return r.img.RGBAAt(x, y), true
}

// LoadAsync decodes the artwork at path off the simulation loop and installs
// it into c. The returned channel receives exactly one value: nil on success.
// Until it succeeds c keeps classifying everything as neutral track.
func LoadAsync(ctx context.Context, c *Classifier, path string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- load(ctx, c, path)
	}()
	return done
}

func load(ctx context.Context, c *Classifier, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open track artwork: %w", err)
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.SetRaster(r)
	return nil
}
