package imagepkg

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Background is the canvas colour used when letterboxing.
var Background = color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

// Letterbox centres img on a canvas of exactly target size, the way the
// viewer label centres a pixmap smaller than itself. A non-positive
// target returns a copy of img.
func Letterbox(img image.Image, target Size, bg color.Color) *image.NRGBA {
	if target.Width <= 0 || target.Height <= 0 {
		return imaging.Clone(img)
	}
	canvas := imaging.New(target.Width, target.Height, bg)

	b := img.Bounds()
	if b.Dx() > target.Width || b.Dy() > target.Height {
		fit := FitSize(Size{Width: b.Dx(), Height: b.Dy()}, target)
		img = imaging.Resize(img, fit.Width, fit.Height, imaging.Lanczos)
	}
	return imaging.PasteCenter(canvas, img)
}
