package imagepkg

import (
	"image"

	qrcode "github.com/skip2/go-qrcode"
)

// ShareCode returns a QR code image encoding text, size pixels square.
func ShareCode(text string, size int) (image.Image, error) {
	if size <= 0 {
		size = 256
	}
	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return q.Image(size), nil
}
