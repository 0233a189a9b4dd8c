package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/keys"
	"github.com/mahirjain10/edge-image-resize/internal/queue/models"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/types"
)

// Presigner hands out download URLs for warmed variants.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// WarmHandler generates a variant ahead of traffic by replaying the origin
// miss path for its key.
type WarmHandler struct {
	store     store.ObjectStore
	origin    *edge.OriginResponseTransformer
	deriver   keys.Deriver
	presigner Presigner
	urlTTL    time.Duration
}

func NewWarmHandler(objectStore store.ObjectStore, origin *edge.OriginResponseTransformer, deriver keys.Deriver) *WarmHandler {
	return &WarmHandler{
		store:   objectStore,
		origin:  origin,
		deriver: deriver,
	}
}

// WithPresigner makes Warm attach a download URL valid for ttl.
func (h *WarmHandler) WithPresigner(p Presigner, ttl time.Duration) *WarmHandler {
	h.presigner = p
	h.urlTTL = ttl
	return h
}

func (h *WarmHandler) Warm(ctx context.Context, req types.WarmRequest) (types.VariantData, error) {
	key, err := h.deriver.Derive(req.Path, dimension(req.Width), dimension(req.Height))
	if err != nil {
		return types.VariantData{}, models.ProcessingError{
			Err:     fmt.Errorf("invalid warm request %s: %w", req.Id, err),
			Requeue: false,
		}
	}

	data := types.VariantData{
		Key:          key.String(),
		OriginalPath: key.Path,
		Width:        key.Width,
		Height:       key.Height,
		Status:       types.SKIPPED,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if !key.HasDimensions() {
		return data, nil
	}

	existing, err := h.store.Get(ctx, key.String())
	switch {
	case err == nil:
		data.ContentType = existing.ContentType
		data.Size = len(existing.Data)
		return data, nil
	case !errors.Is(err, store.ErrNotFound):
		return data, models.ProcessingError{Err: err, Requeue: true}
	}

	res := h.origin.Transform(ctx, edge.Request{URI: edge.KeyURI(key.String())}, edge.NewResponse(404))
	switch res.State {
	case edge.Resized, edge.Redirected:
		data.Status = types.WARMED
		data.Width = res.Output.Width
		data.Height = res.Output.Height
		data.ContentType = res.Output.ContentType
		data.Size = len(res.Output.Bytes)
	case edge.OriginalMissing:
		return data, models.ProcessingError{
			Err:     fmt.Errorf("original %s: %w", key.Path, store.ErrNotFound),
			Requeue: false,
		}
	case edge.ResizeFailed, edge.InvalidKey:
		return data, models.ProcessingError{Err: res.Err, Requeue: false}
	case edge.StoreUnavailable:
		return data, models.ProcessingError{Err: res.Err, Requeue: true}
	default:
		return data, nil
	}

	if h.presigner != nil {
		url, err := h.presigner.PresignGet(ctx, key.String(), h.urlTTL)
		if err == nil {
			data.URL = url
		}
	}
	return data, nil
}

func dimension(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
