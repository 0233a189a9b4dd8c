package keys_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/edge-image-resize/internal/keys"
)

func TestDeriver_ParseDimension(t *testing.T) {
	d := keys.NewDeriver(1000, false)

	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"200", 200, false},
		{" 200 ", 200, false},
		{"199.5", 200, false},
		{"199.4", 199, false},
		{"1000", 1000, false},
		{"0.5", 1, false},
		{"1001", 0, true},
		{"0", 0, true},
		{"0.4", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"1e9", 0, true},
	}

	for _, tt := range tests {
		got, err := d.ParseDimension(tt.raw)
		if tt.wantErr {
			assert.ErrorIs(t, err, keys.ErrInvalidDimension, "ParseDimension(%q)", tt.raw)
			continue
		}
		require.NoError(t, err, "ParseDimension(%q)", tt.raw)
		assert.Equal(t, tt.want, got, "ParseDimension(%q)", tt.raw)
	}
}

func TestDeriver_ParseDimension_Clamp(t *testing.T) {
	d := keys.NewDeriver(1000, true)

	got, err := d.ParseDimension("5000")
	require.NoError(t, err)
	assert.Equal(t, 1000, got)

	_, err = d.ParseDimension("-1")
	assert.ErrorIs(t, err, keys.ErrInvalidDimension)
}

func TestNewDeriver_DefaultBound(t *testing.T) {
	d := keys.NewDeriver(0, false)
	assert.Equal(t, keys.DefaultMaxDimension, d.MaxDimension)
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/cat.jpg", "cat.jpg", false},
		{"cat.jpg", "cat.jpg", false},
		{"///photos/2024/cat.jpg", "photos/2024/cat.jpg", false},
		{"/my cat.jpg", "my cat.jpg", false},
		{"/w200.jpg", "w200.jpg", false},
		{"/w200/cat.jpg", "w200/cat.jpg", false},
		{"", "", true},
		{"/", "", true},
		{"/../secret", "", true},
		{"/a/../b.jpg", "", true},
		{"/a/./b.jpg", "", true},
		{"/a//b.jpg", "", true},
		{"/a/", "", true},
		{"/a\\b.jpg", "", true},
		{"/a\x00b.jpg", "", true},
		{"/cat.jpg/w200", "", true},
		{"/cat.jpg/h10", "", true},
	}

	for _, tt := range tests {
		got, err := keys.SanitizePath(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, keys.ErrInvalidPath, "SanitizePath(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "SanitizePath(%q)", tt.in)
		assert.Equal(t, tt.want, got, "SanitizePath(%q)", tt.in)
	}
}

func TestDerive(t *testing.T) {
	d := keys.NewDeriver(4096, false)

	tests := []struct {
		path, width, height string
		want                string
	}{
		{"/cat.jpg", "200", "100", "cat.jpg/w200/h100"},
		{"/cat.jpg", "200", "", "cat.jpg/w200"},
		{"/cat.jpg", "", "100", "cat.jpg/h100"},
		{"/cat.jpg", "", "", "cat.jpg"},
		{"/cat.jpg", "200.0", "100", "cat.jpg/w200/h100"},
		{"/a/b/c.png", "64", "64", "a/b/c.png/w64/h64"},
	}

	for _, tt := range tests {
		k, err := d.Derive(tt.path, tt.width, tt.height)
		require.NoError(t, err)
		assert.Equal(t, tt.want, k.String())
	}
}

func TestDerive_Errors(t *testing.T) {
	d := keys.NewDeriver(4096, false)

	_, err := d.Derive("/cat.jpg", "-5", "")
	assert.ErrorIs(t, err, keys.ErrInvalidDimension)

	_, err = d.Derive("/cat.jpg", "", "99999")
	assert.ErrorIs(t, err, keys.ErrInvalidDimension)

	_, err = d.Derive("/../etc/passwd", "10", "")
	assert.ErrorIs(t, err, keys.ErrInvalidPath)

	_, err = d.Derive("", "10", "")
	assert.ErrorIs(t, err, keys.ErrInvalidPath)
}

func TestDerive_Deterministic(t *testing.T) {
	d := keys.NewDeriver(4096, false)

	a, err := d.Derive("/cat.jpg", "200", "100")
	require.NoError(t, err)
	b, err := d.Derive("cat.jpg", "200.2", " 100")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestBuild_NoCollisions(t *testing.T) {
	paths := []string{"cat.jpg", "cat.jpg/x", "w200.jpg", "a/b.png", "h1/a.png"}
	dims := []int{0, 1, 2, 10, 200}

	seen := make(map[string]keys.Key)
	for _, p := range paths {
		for _, w := range dims {
			for _, h := range dims {
				k := keys.Key{Path: p, Width: w, Height: h}
				s := k.String()
				if prev, ok := seen[s]; ok {
					t.Fatalf("key %q produced by both %+v and %+v", s, prev, k)
				}
				seen[s] = k
			}
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		key  string
		want keys.Key
	}{
		{"cat.jpg/w200/h100", keys.Key{Path: "cat.jpg", Width: 200, Height: 100}},
		{"/cat.jpg/w200/h100", keys.Key{Path: "cat.jpg", Width: 200, Height: 100}},
		{"cat.jpg/w200", keys.Key{Path: "cat.jpg", Width: 200}},
		{"cat.jpg/h100", keys.Key{Path: "cat.jpg", Height: 100}},
		{"cat.jpg", keys.Key{Path: "cat.jpg"}},
		{"a/w2/b.png/w3", keys.Key{Path: "a/w2/b.png", Width: 3}},
	}

	for _, tt := range tests {
		got, err := keys.Parse(tt.key)
		require.NoError(t, err, "Parse(%q)", tt.key)
		assert.Equal(t, tt.want, got, "Parse(%q)", tt.key)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, key := range []string{
		"",
		"cat.jpg/h100/w200",
		"cat.jpg/w0",
		"cat.jpg/w007",
		"../cat.jpg/w10",
		"w10",
	} {
		_, err := keys.Parse(key)
		assert.ErrorIs(t, err, keys.ErrInvalidPath, "Parse(%q)", key)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	d := keys.NewDeriver(4096, false)

	for _, tt := range []struct{ path, w, h string }{
		{"/cat.jpg", "200", "100"},
		{"/photos/2024/dog.png", "", "64"},
		{"/x.gif", "31", ""},
		{"/x.gif", "", ""},
	} {
		k, err := d.Derive(tt.path, tt.w, tt.h)
		require.NoError(t, err)

		parsed, err := keys.Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestDeriver_Check(t *testing.T) {
	d := keys.NewDeriver(1000, true)

	assert.NoError(t, d.Check(keys.Key{Path: "cat.jpg", Width: 1000, Height: 10}))
	assert.NoError(t, d.Check(keys.Key{Path: "cat.jpg"}))
	assert.ErrorIs(t, d.Check(keys.Key{Path: "cat.jpg", Width: 1001}), keys.ErrInvalidDimension)
	assert.ErrorIs(t, d.Check(keys.Key{Path: "cat.jpg", Height: 5000}), keys.ErrInvalidDimension)

	var zero keys.Deriver
	assert.NoError(t, zero.Check(keys.Key{Path: "cat.jpg", Width: keys.DefaultMaxDimension}))
	assert.Error(t, zero.Check(keys.Key{Path: "cat.jpg", Width: keys.DefaultMaxDimension + 1}))
}
