package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/edge-image-resize/internal/metrics"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := metrics.New("test", reg)
	require.NoError(t, err)

	r.RecordViewer("rewritten")
	r.RecordViewer("rewritten")
	r.RecordOrigin("resized", 10*time.Millisecond)
	r.RecordResize(5*time.Millisecond, 2048)
	r.RecordWarm("stored")

	count, err := testutil.GatherAndCount(reg, "test_viewer_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"test_viewer_requests_total",
		"test_origin_responses_total",
		"test_origin_duration_seconds",
		"test_resize_duration_seconds",
		"test_variant_bytes",
		"test_warm_messages_total",
	}, names)
}

func TestRecorder_ReRegisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := metrics.New("test", reg)
	require.NoError(t, err)
	second, err := metrics.New("test", reg)
	require.NoError(t, err)

	first.RecordViewer("degraded")
	second.RecordViewer("degraded")

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "test_viewer_requests_total" {
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
