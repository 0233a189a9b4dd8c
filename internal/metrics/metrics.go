// Package metrics exports transformer outcomes to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "edge_image_resize"

// Recorder implements edge.MetricsRecorder.
type Recorder struct {
	viewerOutcomes *prometheus.CounterVec
	originStates   *prometheus.CounterVec
	originDuration *prometheus.HistogramVec
	resizeDuration prometheus.Histogram
	variantBytes   prometheus.Histogram
	warmMessages   *prometheus.CounterVec
}

// New registers the collectors on reg. Registering twice on the same
// registry reuses the existing collectors.
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		viewerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_requests_total",
			Help:      "Viewer requests by rewrite outcome.",
		}, []string{"outcome"}),
		originStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_responses_total",
			Help:      "Origin responses by terminal state.",
		}, []string{"state"}),
		originDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "origin_duration_seconds",
			Help:      "Latency of origin-response handling.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		resizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resize_duration_seconds",
			Help:      "Time spent decoding, resizing and encoding.",
			Buckets:   prometheus.DefBuckets,
		}),
		variantBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variant_bytes",
			Help:      "Encoded size of generated variants.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		warmMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_messages_total",
			Help:      "Warm queue messages by result.",
		}, []string{"result"}),
	}

	var err error
	if r.viewerOutcomes, err = register(reg, r.viewerOutcomes); err != nil {
		return nil, err
	}
	if r.originStates, err = register(reg, r.originStates); err != nil {
		return nil, err
	}
	if r.originDuration, err = register(reg, r.originDuration); err != nil {
		return nil, err
	}
	if r.resizeDuration, err = register(reg, r.resizeDuration); err != nil {
		return nil, err
	}
	if r.variantBytes, err = register(reg, r.variantBytes); err != nil {
		return nil, err
	}
	if r.warmMessages, err = register(reg, r.warmMessages); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (r *Recorder) RecordViewer(outcome string) {
	r.viewerOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordOrigin(state string, duration time.Duration) {
	r.originStates.WithLabelValues(state).Inc()
	r.originDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func (r *Recorder) RecordResize(duration time.Duration, bytes int) {
	r.resizeDuration.Observe(duration.Seconds())
	r.variantBytes.Observe(float64(bytes))
}

// RecordWarm counts one processed warm request.
func (r *Recorder) RecordWarm(result string) {
	r.warmMessages.WithLabelValues(result).Inc()
}
