package imagepkg

import (
	"bytes"
	"image/gif"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestRenderer_DownscalePreservesAspect(t *testing.T) {
	r := NewRenderer(0)

	got, err := r.Render(encodePNG(t, 800, 400), Size{Width: 400, Height: 300})
	require.NoError(t, err)

	assert.Equal(t, "png", got.Format)
	assert.Equal(t, Size{Width: 800, Height: 400}, got.Source)
	assert.Equal(t, Size{Width: 400, Height: 200}, got.Bounds())
}

func TestRenderer_UpscaleToFit(t *testing.T) {
	r := NewRenderer(0)

	got, err := r.Render(encodePNG(t, 50, 100), Size{Width: 400, Height: 300})
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 150, Height: 300}, got.Bounds())
}

func TestRenderer_NoTargetKeepsSource(t *testing.T) {
	got, err := NewRenderer(0).Render(encodePNG(t, 37, 21), Size{})
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 37, Height: 21}, got.Bounds())
}

func TestRenderer_Formats(t *testing.T) {
	img := createTestImage(60, 30)

	var jpg, gf, bm bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, gif.Encode(&gf, img, nil))
	require.NoError(t, bmp.Encode(&bm, img))

	for format, data := range map[string][]byte{"jpeg": jpg.Bytes(), "gif": gf.Bytes(), "bmp": bm.Bytes()} {
		t.Run(format, func(t *testing.T) {
			got, err := NewRenderer(0).Render(data, Size{Width: 30, Height: 30})
			require.NoError(t, err)
			assert.Equal(t, format, got.Format)
			assert.Equal(t, Size{Width: 30, Height: 15}, got.Bounds())
		})
	}
}

func TestRenderer_CorruptData(t *testing.T) {
	data := encodePNG(t, 20, 20)
	truncated := data[:len(data)/2]

	for name, in := range map[string][]byte{
		"garbage":   []byte("not an image"),
		"empty":     nil,
		"truncated": truncated,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewRenderer(0).Render(in, Size{Width: 10, Height: 10})
			assert.Equal(t, KindDecode, KindOf(err))
		})
	}
}

func TestRenderer_PixelLimit(t *testing.T) {
	_, err := NewRenderer(100).Render(encodePNG(t, 20, 20), Size{Width: 10, Height: 10})
	assert.Equal(t, KindDecode, KindOf(err))
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		src, target, want Size
	}{
		{Size{800, 400}, Size{400, 300}, Size{400, 200}},
		{Size{400, 800}, Size{400, 300}, Size{150, 300}},
		{Size{400, 300}, Size{400, 300}, Size{400, 300}},
		{Size{1, 10000}, Size{400, 300}, Size{1, 300}},
		{Size{10, 10}, Size{0, 300}, Size{10, 10}},
	}
	for _, tt := range tests {
		got := FitSize(tt.src, tt.target)
		assert.Equal(t, tt.want, got, "FitSize(%v, %v)", tt.src, tt.target)
		if tt.target.Width > 0 && tt.target.Height > 0 {
			assert.LessOrEqual(t, got.Width, tt.target.Width)
			assert.LessOrEqual(t, got.Height, tt.target.Height)
		}
	}
}

func TestLetterbox(t *testing.T) {
	out := Letterbox(createTestImage(100, 50), Size{Width: 80, Height: 80}, Background)
	assert.Equal(t, 80, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())

	// top rows are padding
	assert.Equal(t, Background, out.NRGBAAt(40, 0))
}

func TestShareCode(t *testing.T) {
	img, err := ShareCode("http://example.com/pic.png", 200)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}
