package edge

import (
	"context"
	"time"

	"github.com/mahirjain10/edge-image-resize/internal/types"
)

// MetricsRecorder receives transformer outcomes.
type MetricsRecorder interface {
	RecordViewer(outcome string)
	RecordOrigin(state string, duration time.Duration)
	RecordResize(duration time.Duration, bytes int)
}

type nopRecorder struct{}

func (nopRecorder) RecordViewer(string)                {}
func (nopRecorder) RecordOrigin(string, time.Duration) {}
func (nopRecorder) RecordResize(time.Duration, int)    {}

// VariantPublisher is notified after a variant has been persisted.
type VariantPublisher interface {
	PublishVariant(ctx context.Context, data types.VariantData) error
}
