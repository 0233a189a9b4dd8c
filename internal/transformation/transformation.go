package transformation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	// We must import the image formats we want to support,
	// even if we don't use them directly. This "registers"
	// their decoders with the standard 'image' package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

var (
	ErrDecode            = errors.New("failed to decode image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrSourceTooLarge    = errors.New("source image too large")
	ErrTargetTooLarge    = errors.New("target size too large")
	ErrEncode            = errors.New("failed to encode image")
)

// Fit decides what happens when both width and height are requested.
type Fit string

const (
	// FitFill scales and centre-crops to exactly width x height.
	FitFill Fit = "fill"
	// FitStretch scales to exactly width x height, ignoring the aspect ratio.
	FitStretch Fit = "stretch"
)

type Options struct {
	Filter          string
	Fit             Fit
	JPEGQuality     int
	MaxSourcePixels int
	// MaxDimension bounds both sides of the output, including the side
	// derived from the aspect ratio.
	MaxDimension int
}

func DefaultOptions() Options {
	return Options{
		Filter:          "lanczos",
		Fit:             FitFill,
		JPEGQuality:     85,
		MaxSourcePixels: 50_000_000,
		MaxDimension:    4096,
	}
}

// Output is an encoded image together with its format.
type Output struct {
	Bytes       []byte
	Format      string
	ContentType string
	Width       int
	Height      int
}

// Resizer is safe for concurrent use; it keeps no state between calls.
type Resizer struct {
	opts   Options
	filter imaging.ResampleFilter
}

func NewResizer(opts Options) (*Resizer, error) {
	def := DefaultOptions()
	if opts.Filter == "" {
		opts.Filter = def.Filter
	}
	if opts.Fit == "" {
		opts.Fit = def.Fit
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.MaxSourcePixels <= 0 {
		opts.MaxSourcePixels = def.MaxSourcePixels
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.Fit != FitFill && opts.Fit != FitStretch {
		return nil, fmt.Errorf("unknown fit mode: %s", opts.Fit)
	}
	filter, err := getFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	return &Resizer{opts: opts, filter: filter}, nil
}

// getFilter maps a configured interpolation name to the imaging filter
func getFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "lanczos":
		return imaging.Lanczos, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter: %s", name)
	}
}

// getFormat maps the string format from image.Decode to the imaging.Format enum
// used for re-encoding. webp has no encoder, so it is re-encoded as png.
func getFormat(format string) (imaging.Format, string, error) {
	switch format {
	case "jpeg":
		return imaging.JPEG, "jpeg", nil
	case "png", "webp":
		return imaging.PNG, "png", nil
	case "gif":
		return imaging.GIF, "gif", nil
	case "bmp":
		return imaging.BMP, "bmp", nil
	case "tiff":
		return imaging.TIFF, "tiff", nil
	default:
		return -1, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ContentTypeFor returns the MIME type of a format name reported by image.Decode.
func ContentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// SniffContentType guesses the MIME type of raw bytes.
func SniffContentType(buffer []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(buffer)); err == nil {
		return ContentTypeFor(format)
	}
	return http.DetectContentType(buffer)
}

// TargetSize computes the output dimensions. A single requested dimension
// keeps the source aspect ratio; none keeps the source size.
func TargetSize(srcWidth, srcHeight, width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		h := int(float64(srcHeight)*float64(width)/float64(srcWidth) + 0.5)
		return width, max(h, 1)
	case height > 0:
		w := int(float64(srcWidth)*float64(height)/float64(srcHeight) + 0.5)
		return max(w, 1), height
	default:
		return srcWidth, srcHeight
	}
}

// Resize decodes buffer, scales it to the requested box and re-encodes it in
// the source format. Zero width and height return the source unchanged.
func (r *Resizer) Resize(buffer []byte, width int, height int) (*Output, error) {
	// 1. Inspect the header first so huge sources are rejected before decoding
	cfg, formatStr, err := image.DecodeConfig(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if cfg.Width*cfg.Height > r.opts.MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrSourceTooLarge, cfg.Width, cfg.Height)
	}

	if width <= 0 && height <= 0 {
		return &Output{
			Bytes:       buffer,
			Format:      formatStr,
			ContentType: ContentTypeFor(formatStr),
			Width:       cfg.Width,
			Height:      cfg.Height,
		}, nil
	}

	// 2. Get the format for re-encoding
	format, outFormat, err := getFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// 3. Decode, honouring EXIF orientation
	img, err := imaging.Decode(bytes.NewReader(buffer), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// 4. Transform
	bounds := img.Bounds()
	w, h := TargetSize(bounds.Dx(), bounds.Dy(), width, height)
	// A strip image can derive a side far beyond the requested one.
	if w > r.opts.MaxDimension || h > r.opts.MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrTargetTooLarge, w, h, r.opts.MaxDimension)
	}
	var newImage image.Image
	if width > 0 && height > 0 && r.opts.Fit == FitFill {
		newImage = imaging.Fill(img, w, h, imaging.Center, r.filter)
	} else {
		newImage = imaging.Resize(img, w, h, r.filter)
	}

	// 5. Re-encode to a new buffer
	buf := new(bytes.Buffer)
	if err = imaging.Encode(buf, newImage, format, imaging.JPEGQuality(r.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return &Output{
		Bytes:       buf.Bytes(),
		Format:      outFormat,
		ContentType: ContentTypeFor(outFormat),
		Width:       w,
		Height:      h,
	}, nil
}
