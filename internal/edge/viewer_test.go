package edge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/keys"
)

func newViewer() *edge.ViewerRequestTransformer {
	return edge.NewViewerRequestTransformer(keys.NewDeriver(keys.DefaultMaxDimension, false), edge.DefaultQueryParams(), nil)
}

func TestViewerTransform(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		query     string
		wantURI   string
		wantQuery string
		outcome   edge.ViewerOutcome
	}{
		{"both dimensions", "/cat.jpg", "width=200&height=100", "/cat.jpg/w200/h100", "", edge.Rewritten},
		{"width only", "/cat.jpg", "width=200", "/cat.jpg/w200", "", edge.Rewritten},
		{"height only", "/img/cat.jpg", "height=50", "/img/cat.jpg/h50", "", edge.Rewritten},
		{"decimal rounds half up", "/cat.jpg", "width=199.5", "/cat.jpg/w200", "", edge.Rewritten},
		{"unrelated params kept", "/cat.jpg", "v=3&width=200", "/cat.jpg/w200", "v=3", edge.Rewritten},
		{"no query", "/cat.jpg", "", "/cat.jpg", "", edge.Untouched},
		{"no dimension params", "/cat.jpg", "v=3", "/cat.jpg", "v=3", edge.Untouched},
		{"empty dimension values", "/cat.jpg", "width=&height=", "/cat.jpg", "", edge.Untouched},
		{"negative width", "/cat.jpg", "width=-5", "/cat.jpg", "", edge.Degraded},
		{"non numeric height", "/cat.jpg", "height=abc&v=2", "/cat.jpg", "v=2", edge.Degraded},
		{"oversize", "/cat.jpg", "width=100000", "/cat.jpg", "", edge.Degraded},
		{"reserved last segment", "/photos/w10", "width=20", "/photos/w10", "", edge.Degraded},
		{"escaped path", "/my%20cat.jpg", "width=20", "/my%20cat.jpg/w20", "", edge.Rewritten},
	}

	v := newViewer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, outcome := v.Transform(edge.Request{URI: tt.uri, QueryString: tt.query})
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.wantURI, out.URI)
			assert.Equal(t, tt.wantQuery, out.QueryString)
		})
	}
}

func TestViewerTransform_Deterministic(t *testing.T) {
	v := newViewer()
	a, _ := v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "width=200&height=100"})
	b, _ := v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "height=100&width=200"})
	assert.Equal(t, a.URI, b.URI)
}

func TestViewerTransform_ClampOversize(t *testing.T) {
	v := edge.NewViewerRequestTransformer(keys.NewDeriver(1000, true), edge.DefaultQueryParams(), nil)
	out, outcome := v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "width=5000"})
	assert.Equal(t, edge.Rewritten, outcome)
	assert.Equal(t, "/cat.jpg/w1000", out.URI)
}

func TestViewerTransform_CustomParams(t *testing.T) {
	v := edge.NewViewerRequestTransformer(keys.NewDeriver(0, false), edge.QueryParams{Width: "w", Height: "h"}, nil)
	out, outcome := v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "w=10&width=99"})
	assert.Equal(t, edge.Rewritten, outcome)
	assert.Equal(t, "/cat.jpg/w10", out.URI)
	assert.Equal(t, "width=99", out.QueryString)
}

func TestViewerTransform_RecordsOutcome(t *testing.T) {
	rec := &recorder{}
	v := newViewer().WithMetrics(rec)
	v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "width=10"})
	v.Transform(edge.Request{URI: "/cat.jpg", QueryString: "width=x"})
	assert.Equal(t, []string{"rewritten", "degraded"}, rec.viewer)
}

func TestViewerHandle(t *testing.T) {
	v := newViewer()
	event := edge.Event{Records: []edge.Record{{CF: edge.Payload{
		Request: edge.Request{URI: "/cat.jpg", QueryString: "width=200&height=100", Method: "GET"},
	}}}}

	req, err := v.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "/cat.jpg/w200/h100", req.URI)
	assert.Equal(t, "GET", req.Method)

	_, err = v.Handle(context.Background(), edge.Event{})
	assert.ErrorIs(t, err, edge.ErrEmptyEvent)
}

func TestKeyURI(t *testing.T) {
	assert.Equal(t, "/cat.jpg/w200/h100", edge.KeyURI("cat.jpg/w200/h100"))
	assert.Equal(t, "/my%20cat.jpg/w20", edge.KeyURI("my cat.jpg/w20"))
}
