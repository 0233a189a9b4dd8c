// Package keys derives the canonical storage/cache key of a resized image variant.
//
// A key has the textual form
//
//	<original-path>[/w<width>][/h<height>]
//
// where the original path never starts with a slash and absent dimensions are
// omitted. For example, cat.jpg resized to 200x100 lives at cat.jpg/w200/h100.
package keys

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrInvalidPath      = errors.New("invalid path")
)

// DefaultMaxDimension is the largest width or height accepted when a Deriver
// is built without an explicit bound.
const DefaultMaxDimension = 4096

// Key identifies one resized variant of an original asset.
type Key struct {
	Path   string
	Width  int
	Height int
}

func (k Key) String() string {
	return Build(k.Path, k.Width, k.Height)
}

func (k Key) HasDimensions() bool {
	return k.Width > 0 || k.Height > 0
}

// Deriver normalizes request dimensions against a configured bound.
type Deriver struct {
	MaxDimension int
	// ClampOversize caps dimensions above MaxDimension instead of rejecting them.
	ClampOversize bool
}

func NewDeriver(maxDimension int, clampOversize bool) Deriver {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return Deriver{MaxDimension: maxDimension, ClampOversize: clampOversize}
}

// ParseDimension parses one raw query value. An empty value means the
// dimension is absent and yields 0.
func (d Deriver) ParseDimension(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidDimension, raw)
	}
	px := math.Floor(f + 0.5)
	if px <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalidDimension, raw)
	}
	max := d.MaxDimension
	if max <= 0 {
		max = DefaultMaxDimension
	}
	if px > float64(max) {
		if d.ClampOversize {
			return max, nil
		}
		return 0, fmt.Errorf("%w: %q exceeds maximum %d", ErrInvalidDimension, raw, max)
	}
	return int(px), nil
}

// Check rejects a parsed key whose dimensions exceed MaxDimension. Keys
// reach the origin verbatim, so the bound is enforced there too, regardless
// of ClampOversize.
func (d Deriver) Check(k Key) error {
	max := d.MaxDimension
	if max <= 0 {
		max = DefaultMaxDimension
	}
	if k.Width > max || k.Height > max {
		return fmt.Errorf("%w: %dx%d exceeds maximum %d", ErrInvalidDimension, k.Width, k.Height, max)
	}
	return nil
}

// Derive maps an original object path and the raw width/height query values
// to the canonical key of the requested variant.
func (d Deriver) Derive(originalPath, rawWidth, rawHeight string) (Key, error) {
	path, err := SanitizePath(originalPath)
	if err != nil {
		return Key{}, err
	}
	width, err := d.ParseDimension(rawWidth)
	if err != nil {
		return Key{}, fmt.Errorf("width: %w", err)
	}
	height, err := d.ParseDimension(rawHeight)
	if err != nil {
		return Key{}, fmt.Errorf("height: %w", err)
	}
	return Key{Path: path, Width: width, Height: height}, nil
}

// SanitizePath strips leading slashes and rejects anything that could escape
// the bucket namespace or be confused with a dimension segment.
func SanitizePath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, '\\') {
		return "", fmt.Errorf("%w: backslash in %q", ErrInvalidPath, p)
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: control character in %q", ErrInvalidPath, p)
		}
	}
	segments := strings.Split(p, "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, p)
		case ".", "..":
			return "", fmt.Errorf("%w: traversal segment in %q", ErrInvalidPath, p)
		}
	}
	if _, _, ok := dimensionSegment(segments[len(segments)-1]); ok {
		return "", fmt.Errorf("%w: %q ends with a reserved dimension segment", ErrInvalidPath, p)
	}
	return p, nil
}

// Build renders the canonical key. path must already be sanitized.
func Build(path string, width, height int) string {
	var b strings.Builder
	b.Grow(len(path) + 14)
	b.WriteString(path)
	if width > 0 {
		b.WriteString("/w")
		b.WriteString(strconv.Itoa(width))
	}
	if height > 0 {
		b.WriteString("/h")
		b.WriteString(strconv.Itoa(height))
	}
	return b.String()
}

// Parse is the inverse of Build.
func Parse(key string) (Key, error) {
	key = strings.TrimLeft(key, "/")
	k := Key{Path: key}

	if rest, last, ok := cutLast(k.Path); ok {
		if axis, n, ok := dimensionSegment(last); ok && axis == 'h' {
			k.Path, k.Height = rest, n
		}
	}
	if rest, last, ok := cutLast(k.Path); ok {
		if axis, n, ok := dimensionSegment(last); ok && axis == 'w' {
			k.Path, k.Width = rest, n
		}
	}

	path, err := SanitizePath(k.Path)
	if err != nil {
		return Key{}, err
	}
	k.Path = path
	if k.String() != key {
		return Key{}, fmt.Errorf("%w: %q is not a canonical key", ErrInvalidPath, key)
	}
	return k, nil
}

func cutLast(p string) (string, string, bool) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", "", false
	}
	return p[:i], p[i+1:], true
}

// dimensionSegment reports whether seg looks like w<digits> or h<digits>.
func dimensionSegment(seg string) (byte, int, bool) {
	if len(seg) < 2 || (seg[0] != 'w' && seg[0] != 'h') {
		return 0, 0, false
	}
	for i := 1; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, 0, false
		}
	}
	n, err := strconv.Atoi(seg[1:])
	if err != nil {
		return 0, 0, false
	}
	return seg[0], n, true
}
