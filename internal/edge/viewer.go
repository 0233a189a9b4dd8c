package edge

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/internal/keys"
)

// ViewerOutcome says what the viewer-request transformer did to a request.
type ViewerOutcome string

const (
	// Rewritten means the URI now points at the canonical variant key.
	Rewritten ViewerOutcome = "rewritten"
	// Untouched means no resize was requested.
	Untouched ViewerOutcome = "untouched"
	// Degraded means resize parameters were invalid and were dropped so the
	// original is served.
	Degraded ViewerOutcome = "degraded"
)

var ErrEmptyEvent = errors.New("event carries no records")

// ViewerRequestTransformer runs on every request before the CDN cache. It
// performs no I/O.
type ViewerRequestTransformer struct {
	deriver keys.Deriver
	params  QueryParams
	logger  *zap.SugaredLogger
	metrics MetricsRecorder
}

func NewViewerRequestTransformer(deriver keys.Deriver, params QueryParams, logger *zap.SugaredLogger) *ViewerRequestTransformer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if params.Width == "" || params.Height == "" {
		params = DefaultQueryParams()
	}
	return &ViewerRequestTransformer{
		deriver: deriver,
		params:  params,
		logger:  logger,
		metrics: nopRecorder{},
	}
}

// WithMetrics attaches a recorder for rewrite outcomes.
func (t *ViewerRequestTransformer) WithMetrics(m MetricsRecorder) *ViewerRequestTransformer {
	if m != nil {
		t.metrics = m
	}
	return t
}

// Transform rewrites req to the canonical key of the requested variant.
// It never fails: invalid input degrades to the original asset.
func (t *ViewerRequestTransformer) Transform(req Request) (Request, ViewerOutcome) {
	out, outcome := t.transform(req)
	t.metrics.RecordViewer(string(outcome))
	return out, outcome
}

func (t *ViewerRequestTransformer) transform(req Request) (Request, ViewerOutcome) {
	if req.QueryString == "" {
		return req, Untouched
	}
	// Parse errors still return every well-formed pair.
	values, _ := url.ParseQuery(req.QueryString)
	if !values.Has(t.params.Width) && !values.Has(t.params.Height) {
		return req, Untouched
	}

	rawWidth := values.Get(t.params.Width)
	rawHeight := values.Get(t.params.Height)
	values.Del(t.params.Width)
	values.Del(t.params.Height)
	req.QueryString = values.Encode()

	path, err := url.PathUnescape(req.URI)
	if err != nil {
		t.logger.Infow("Undecodable request path, serving original",
			"uri", req.URI,
			"error", err.Error(),
		)
		return req, Degraded
	}

	key, err := t.deriver.Derive(path, rawWidth, rawHeight)
	if err != nil {
		t.logger.Infow("Invalid resize request, serving original",
			"uri", req.URI,
			"width", rawWidth,
			"height", rawHeight,
			"error", err.Error(),
		)
		return req, Degraded
	}
	if !key.HasDimensions() {
		return req, Untouched
	}

	req.URI = KeyURI(key.String())
	t.logger.Debugw("Rewrote request to variant key",
		"key", key.String(),
	)
	return req, Rewritten
}

// Handle is the Lambda@Edge viewer-request entry point.
func (t *ViewerRequestTransformer) Handle(ctx context.Context, event Event) (Request, error) {
	if len(event.Records) == 0 {
		return Request{}, ErrEmptyEvent
	}
	req, _ := t.Transform(event.Records[0].CF.Request)
	return req, nil
}

// KeyURI renders a store key as an escaped request URI.
func KeyURI(key string) string {
	return (&url.URL{Path: "/" + key}).EscapedPath()
}
