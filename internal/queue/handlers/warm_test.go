package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/keys"
	"github.com/mahirjain10/edge-image-resize/internal/queue/handlers"
	"github.com/mahirjain10/edge-image-resize/internal/queue/models"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/store/memory"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
	"github.com/mahirjain10/edge-image-resize/internal/types"
)

type staticPresigner struct{}

func (staticPresigner) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type unavailableStore struct{ *memory.Store }

func (unavailableStore) Get(context.Context, string) (*store.Object, error) {
	return nil, store.ErrUnavailable
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		img.Set(x, x%32, color.NRGBA{R: 200, A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, img, imaging.PNG))
	return buf.Bytes()
}

func newHandler(t *testing.T, s store.ObjectStore) *handlers.WarmHandler {
	t.Helper()
	resizer, err := transformation.NewResizer(transformation.DefaultOptions())
	require.NoError(t, err)
	origin := edge.NewOriginResponseTransformer(s, resizer, edge.OriginOptions{})
	return handlers.NewWarmHandler(s, origin, keys.NewDeriver(0, false))
}

func TestWarm_GeneratesVariant(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Put(context.Background(), "logo.png", pngFixture(t), store.PutOptions{ContentType: "image/png"}))
	h := newHandler(t, s).WithPresigner(staticPresigner{}, time.Minute)

	data, err := h.Warm(context.Background(), types.WarmRequest{Id: "1", Path: "/logo.png", Width: 32})
	require.NoError(t, err)

	assert.Equal(t, types.WARMED, data.Status)
	assert.Equal(t, "logo.png/w32", data.Key)
	assert.Equal(t, 32, data.Width)
	assert.Equal(t, 16, data.Height)
	assert.Equal(t, "image/png", data.ContentType)
	assert.Equal(t, "https://signed.example/logo.png/w32", data.URL)

	_, err = s.Get(context.Background(), "logo.png/w32")
	assert.NoError(t, err)

	again, err := h.Warm(context.Background(), types.WarmRequest{Id: "2", Path: "logo.png", Width: 32})
	require.NoError(t, err)
	assert.Equal(t, types.SKIPPED, again.Status)
}

func TestWarm_NoDimensionsSkipped(t *testing.T) {
	h := newHandler(t, memory.New())
	data, err := h.Warm(context.Background(), types.WarmRequest{Path: "logo.png"})
	require.NoError(t, err)
	assert.Equal(t, types.SKIPPED, data.Status)
}

func TestWarm_Failures(t *testing.T) {
	corrupt := memory.New()
	require.NoError(t, corrupt.Put(context.Background(), "bad.png", []byte("nope"), store.PutOptions{}))

	tests := []struct {
		name    string
		store   store.ObjectStore
		req     types.WarmRequest
		requeue bool
	}{
		{"invalid dimension", memory.New(), types.WarmRequest{Path: "a.png", Width: -1}, false},
		{"missing original", memory.New(), types.WarmRequest{Path: "a.png", Width: 10}, false},
		{"corrupt original", corrupt, types.WarmRequest{Path: "bad.png", Width: 10}, false},
		{"store unavailable", unavailableStore{memory.New()}, types.WarmRequest{Path: "a.png", Width: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newHandler(t, tt.store).Warm(context.Background(), tt.req)
			var procErr models.ProcessingError
			require.True(t, errors.As(err, &procErr), "got %v", err)
			assert.Equal(t, tt.requeue, procErr.Requeue)
		})
	}
}
