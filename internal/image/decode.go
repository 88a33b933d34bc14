package imagepkg

import (
	"bytes"
	"fmt"
	"image"
	"math"

	// Formats beyond the stdlib set; imaging.Decode goes through image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// maxDimension caps either side of a decoded image regardless of MaxPixels.
const maxDimension = 32768

// Size is a width × height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rendered is a decoded bitmap scaled to fit its target.
type Rendered struct {
	Image  image.Image
	Source Size // decoded dimensions before scaling
	Target Size // area the image was fitted into
	Format string
}

// Bounds returns the dimensions of the scaled bitmap.
func (r *Rendered) Bounds() Size {
	b := r.Image.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// Renderer decodes gated bytes and fits them to a display area.
type Renderer struct {
	maxPixels int64
	filter    imaging.ResampleFilter
}

// NewRenderer returns a Renderer refusing images above maxPixels.
func NewRenderer(maxPixels int64) *Renderer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Renderer{maxPixels: maxPixels, filter: imaging.Lanczos}
}

// Render decodes data and scales it to fit target, keeping the aspect
// ratio. A non-positive target leaves the image at its source size.
func (r *Renderer) Render(data []byte, target Size) (*Rendered, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindDecode, fmt.Errorf("decode config: %w", err))
	}
	if err := r.checkBounds(cfg.Width, cfg.Height); err != nil {
		return nil, newError(KindDecode, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, newError(KindDecode, fmt.Errorf("decode %s: %w", format, err))
	}

	b := img.Bounds()
	src := Size{Width: b.Dx(), Height: b.Dy()}
	fit := FitSize(src, target)

	var out image.Image
	if fit == src {
		out = imaging.Clone(img)
	} else {
		out = imaging.Resize(img, fit.Width, fit.Height, r.filter)
	}

	return &Rendered{
		Image:  out,
		Source: src,
		Target: target,
		Format: format,
	}, nil
}

func (r *Renderer) checkBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > r.maxPixels {
		return fmt.Errorf("image pixel count %d exceeds limit %d", pixels, r.maxPixels)
	}
	return nil
}

// FitSize returns the largest size with src's aspect ratio that fits in
// target. Each side is at least one pixel.
func FitSize(src, target Size) Size {
	if src.Width <= 0 || src.Height <= 0 || target.Width <= 0 || target.Height <= 0 {
		return src
	}
	scale := math.Min(
		float64(target.Width)/float64(src.Width),
		float64(target.Height)/float64(src.Height),
	)
	w := int(math.Round(float64(src.Width) * scale))
	h := int(math.Round(float64(src.Height) * scale))
	if w > target.Width {
		w = target.Width
	}
	if h > target.Height {
		h = target.Height
	}
	return Size{Width: max(w, 1), Height: max(h, 1)}
}
