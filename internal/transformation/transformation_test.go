package transformation_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/edge-image-resize/internal/transformation"
)

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, img, format))
	return buf.Bytes()
}

func decodeSize(t *testing.T, b []byte) (int, int, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	return cfg.Width, cfg.Height, format
}

func newResizer(t *testing.T, opts transformation.Options) *transformation.Resizer {
	t.Helper()
	r, err := transformation.NewResizer(opts)
	require.NoError(t, err)
	return r
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		srcW, srcH, w, h int
		wantW, wantH     int
	}{
		{400, 200, 200, 100, 200, 100},
		{400, 200, 200, 0, 200, 100},
		{400, 200, 0, 50, 100, 50},
		{400, 200, 0, 0, 400, 200},
		{400, 200, 50, 300, 50, 300},
		{1000, 1, 10, 0, 10, 1},
		{3, 1000, 0, 10, 1, 10},
	}
	for _, tt := range tests {
		w, h := transformation.TargetSize(tt.srcW, tt.srcH, tt.w, tt.h)
		assert.Equal(t, tt.wantW, w, "%+v", tt)
		assert.Equal(t, tt.wantH, h, "%+v", tt)
	}
}

func TestResize_ExactBothDimensions(t *testing.T) {
	for _, fit := range []transformation.Fit{transformation.FitFill, transformation.FitStretch} {
		r := newResizer(t, transformation.Options{Fit: fit})
		src := encodeTestImage(t, 400, 300, imaging.JPEG)

		out, err := r.Resize(src, 200, 100)
		require.NoError(t, err)

		w, h, format := decodeSize(t, out.Bytes)
		assert.Equal(t, 200, w)
		assert.Equal(t, 100, h)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, "image/jpeg", out.ContentType)
		assert.Equal(t, 200, out.Width)
		assert.Equal(t, 100, out.Height)
	}
}

func TestResize_AspectPreserving(t *testing.T) {
	r := newResizer(t, transformation.DefaultOptions())
	src := encodeTestImage(t, 400, 200, imaging.PNG)

	out, err := r.Resize(src, 100, 0)
	require.NoError(t, err)
	w, h, format := decodeSize(t, out.Bytes)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
	assert.Equal(t, "png", format)
	assert.Equal(t, "image/png", out.ContentType)

	out, err = r.Resize(src, 0, 20)
	require.NoError(t, err)
	w, h, _ = decodeSize(t, out.Bytes)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
}

func TestResize_NoDimensionsReturnsSource(t *testing.T) {
	r := newResizer(t, transformation.DefaultOptions())
	src := encodeTestImage(t, 10, 10, imaging.GIF)

	out, err := r.Resize(src, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes)
	assert.Equal(t, "image/gif", out.ContentType)
}

func TestResize_Deterministic(t *testing.T) {
	r := newResizer(t, transformation.DefaultOptions())
	src := encodeTestImage(t, 300, 300, imaging.JPEG)

	a, err := r.Resize(src, 120, 80)
	require.NoError(t, err)
	b, err := r.Resize(src, 120, 80)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes, b.Bytes)
}

func TestResize_Errors(t *testing.T) {
	r := newResizer(t, transformation.DefaultOptions())

	_, err := r.Resize([]byte("definitely not an image"), 10, 10)
	assert.ErrorIs(t, err, transformation.ErrDecode)

	src := encodeTestImage(t, 100, 100, imaging.PNG)
	_, err = r.Resize(src[:len(src)/2], 10, 10)
	assert.Error(t, err)

	small := newResizer(t, transformation.Options{MaxSourcePixels: 100})
	_, err = small.Resize(src, 10, 10)
	assert.ErrorIs(t, err, transformation.ErrSourceTooLarge)
}

func TestResize_DerivedSideBounded(t *testing.T) {
	r := newResizer(t, transformation.Options{MaxDimension: 4096})
	strip := encodeTestImage(t, 2, 400, imaging.PNG)

	_, err := r.Resize(strip, 100, 0)
	assert.ErrorIs(t, err, transformation.ErrTargetTooLarge)

	out, err := r.Resize(strip, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Width)
	assert.Equal(t, 2000, out.Height)

	wide := encodeTestImage(t, 400, 2, imaging.PNG)
	_, err = r.Resize(wide, 0, 100)
	assert.ErrorIs(t, err, transformation.ErrTargetTooLarge)
}

func TestNewResizer_Validation(t *testing.T) {
	_, err := transformation.NewResizer(transformation.Options{Filter: "bogus"})
	assert.Error(t, err)

	_, err = transformation.NewResizer(transformation.Options{Fit: "zoom"})
	assert.Error(t, err)

	for _, f := range []string{"lanczos", "CatmullRom", "linear", "box", "nearest"} {
		_, err := transformation.NewResizer(transformation.Options{Filter: f})
		assert.NoError(t, err, f)
	}
}

func TestSniffContentType(t *testing.T) {
	assert.Equal(t, "image/png", transformation.SniffContentType(encodeTestImage(t, 2, 2, imaging.PNG)))
	assert.Equal(t, "image/jpeg", transformation.SniffContentType(encodeTestImage(t, 2, 2, imaging.JPEG)))
	assert.Equal(t, "text/plain; charset=utf-8", transformation.SniffContentType([]byte("hello")))
}
