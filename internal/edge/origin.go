package edge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/internal/keys"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
	"github.com/mahirjain10/edge-image-resize/internal/types"
)

// State is the terminal state of one origin-response invocation.
type State string

const (
	// VariantFound: the origin already had the variant, response untouched.
	VariantFound State = "variant_found"
	// OriginError: the origin failed for another reason, response untouched.
	OriginError State = "origin_error"
	// InvalidKey: the URI is not a canonical key within bounds, response untouched.
	InvalidKey State = "invalid_key"
	// OriginalMissing: neither variant nor original exists.
	OriginalMissing State = "original_missing"
	// PassThrough: no dimensions requested, the original is served as-is.
	PassThrough State = "pass_through"
	// Resized: a variant was generated, persisted and served.
	Resized State = "resized"
	// ResizeFailed: decoding, resizing or encoding failed; the original is served.
	ResizeFailed State = "resize_failed"
	// StoreUnavailable: the store failed after retries.
	StoreUnavailable State = "store_unavailable"
	// Redirected: the body exceeds the edge limit; the client is sent back
	// through the CDN to fetch it from the origin.
	Redirected State = "redirected"
)

// DefaultMaxBodyBytes is the Lambda@Edge limit for generated origin-response bodies.
const DefaultMaxBodyBytes = 1 << 20

// Resizer produces the encoded variant. *transformation.Resizer satisfies it.
type Resizer interface {
	Resize(buffer []byte, width int, height int) (*transformation.Output, error)
}

type OriginOptions struct {
	Policy CachePolicy
	// Deriver bounds the dimensions of keys arriving at the origin.
	Deriver        keys.Deriver
	FetchTimeout   time.Duration
	ResizeTimeout  time.Duration
	PersistTimeout time.Duration
	// MaxBodyBytes bounds the base64 encoded body of generated responses.
	MaxBodyBytes int
	Logger       *zap.SugaredLogger
	Metrics      MetricsRecorder
	Publisher    VariantPublisher
}

func DefaultOriginOptions() OriginOptions {
	return OriginOptions{
		Policy:         DefaultCachePolicy(),
		Deriver:        keys.NewDeriver(keys.DefaultMaxDimension, false),
		FetchTimeout:   5 * time.Second,
		ResizeTimeout:  8 * time.Second,
		PersistTimeout: 5 * time.Second,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// Result is what Transform decided, with the response to hand back.
type Result struct {
	State    State
	Key      keys.Key
	Response Response
	// Output is the generated variant, set for Resized and Redirected.
	Output *transformation.Output
	Err    error
}

// OriginResponseTransformer generates missing variants on origin misses.
// It holds no per-request state and is safe for concurrent use.
type OriginResponseTransformer struct {
	store   store.ObjectStore
	resizer Resizer
	opts    OriginOptions
	logger  *zap.SugaredLogger
	metrics MetricsRecorder
}

func NewOriginResponseTransformer(objectStore store.ObjectStore, resizer Resizer, opts OriginOptions) *OriginResponseTransformer {
	def := DefaultOriginOptions()
	if opts.Policy == (CachePolicy{}) {
		opts.Policy = def.Policy
	}
	if opts.Deriver.MaxDimension <= 0 {
		opts.Deriver = def.Deriver
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.ResizeTimeout <= 0 {
		opts.ResizeTimeout = def.ResizeTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = def.PersistTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var metrics MetricsRecorder = nopRecorder{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}
	return &OriginResponseTransformer{
		store:   objectStore,
		resizer: resizer,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Transform inspects the origin's answer for req and, when the variant is
// missing, produces it from the original asset.
func (t *OriginResponseTransformer) Transform(ctx context.Context, req Request, resp Response) Result {
	start := time.Now()
	res := t.transform(ctx, req, resp)
	duration := time.Since(start)
	t.metrics.RecordOrigin(string(res.State), duration)

	logctx := t.logger.With(
		"uri", req.URI,
		"state", res.State,
		"duration", duration,
	)
	switch res.State {
	case ResizeFailed, StoreUnavailable:
		logctx.Warnw("Serving fallback response", "error", errString(res.Err))
	case Resized, Redirected:
		logctx.Infow("Generated variant", "key", res.Key.String())
	default:
		logctx.Debugw("Origin response handled")
	}
	return res
}

func (t *OriginResponseTransformer) transform(ctx context.Context, req Request, resp Response) Result {
	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 400:
		return Result{State: VariantFound, Response: resp}
	case status != http.StatusNotFound && status != http.StatusForbidden:
		return Result{State: OriginError, Response: resp}
	}

	path, err := url.PathUnescape(req.URI)
	if err != nil {
		return Result{State: InvalidKey, Response: resp, Err: err}
	}
	key, err := keys.Parse(path)
	if err != nil {
		return Result{State: InvalidKey, Response: resp, Err: err}
	}
	if err := t.opts.Deriver.Check(key); err != nil {
		return Result{State: InvalidKey, Key: key, Response: resp, Err: err}
	}

	original, err := t.fetchOriginal(ctx, key.Path)
	if errors.Is(err, store.ErrNotFound) {
		return Result{State: OriginalMissing, Key: key, Response: t.notFound()}
	}
	if err != nil {
		return Result{State: StoreUnavailable, Key: key, Response: t.unavailable(), Err: err}
	}
	contentType := original.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = transformation.SniffContentType(original.Data)
	}

	if !key.HasDimensions() {
		return t.respond(PassThrough, key, original.Data, contentType, t.opts.Policy.VariantCacheControl(), key.Path, nil)
	}

	out, err := t.resize(ctx, original.Data, key.Width, key.Height)
	if err != nil {
		return t.respond(ResizeFailed, key, original.Data, contentType, t.opts.Policy.FallbackCacheControl(), key.Path, err)
	}

	cacheControl := t.opts.Policy.VariantCacheControl()
	if err := t.persist(ctx, key, out, cacheControl); err != nil {
		return t.respond(StoreUnavailable, key, original.Data, contentType, t.opts.Policy.FallbackCacheControl(), key.Path, err)
	}
	t.publish(ctx, key, out)

	res := t.respond(Resized, key, out.Bytes, out.ContentType, cacheControl, key.String(), nil)
	res.Output = out
	return res
}

func (t *OriginResponseTransformer) fetchOriginal(ctx context.Context, path string) (*store.Object, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.FetchTimeout)
	defer cancel()

	obj, err := t.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch original %s: %w", path, err)
	}
	return obj, nil
}

type resizeResult struct {
	out *transformation.Output
	err error
}

// resize runs the resizer under the resize timeout. On timeout the work is
// abandoned; nothing has been written yet.
func (t *OriginResponseTransformer) resize(ctx context.Context, data []byte, width, height int) (*transformation.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.ResizeTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan resizeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- resizeResult{err: fmt.Errorf("resize panicked: %v", r)}
			}
		}()
		out, err := t.resizer.Resize(data, width, height)
		done <- resizeResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.out == nil || len(r.out.Bytes) == 0 {
			return nil, errors.New("resizer returned no output")
		}
		t.metrics.RecordResize(time.Since(start), len(r.out.Bytes))
		return r.out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("resize abandoned: %w", ctx.Err())
	}
}

func (t *OriginResponseTransformer) persist(ctx context.Context, key keys.Key, out *transformation.Output, cacheControl string) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.PersistTimeout)
	defer cancel()

	err := t.store.Put(ctx, key.String(), out.Bytes, store.PutOptions{
		ContentType:  out.ContentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return fmt.Errorf("persist variant %s: %w", key.String(), err)
	}
	return nil
}

func (t *OriginResponseTransformer) publish(ctx context.Context, key keys.Key, out *transformation.Output) {
	if t.opts.Publisher == nil {
		return
	}
	err := t.opts.Publisher.PublishVariant(ctx, types.VariantData{
		Key:          key.String(),
		OriginalPath: key.Path,
		Width:        out.Width,
		Height:       out.Height,
		ContentType:  out.ContentType,
		Size:         len(out.Bytes),
		Status:       types.STORED,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.logger.Warnw("Could not publish variant event",
			"key", key.String(),
			"error", err.Error(),
		)
	}
}

// respond builds a 200 with data as base64 body. Bodies above the edge limit
// become a redirect to redirectKey, which the origin can serve directly.
func (t *OriginResponseTransformer) respond(state State, key keys.Key, data []byte, contentType, cacheControl, redirectKey string, cause error) Result {
	body := base64.StdEncoding.EncodeToString(data)
	if len(body) > t.opts.MaxBodyBytes {
		resp := NewResponse(http.StatusTemporaryRedirect)
		resp.Headers.Set("Location", KeyURI(redirectKey))
		resp.Headers.Set("Cache-Control", "no-store")
		if state == Resized {
			state = Redirected
		}
		return Result{State: state, Key: key, Response: resp, Err: cause}
	}

	resp := NewResponse(http.StatusOK)
	resp.Headers.Set("Content-Type", contentType)
	resp.Headers.Set("Cache-Control", cacheControl)
	resp.Body = body
	resp.BodyEncoding = "base64"
	return Result{State: state, Key: key, Response: resp, Err: cause}
}

func (t *OriginResponseTransformer) notFound() Response {
	resp := NewResponse(http.StatusNotFound)
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Headers.Set("Cache-Control", t.opts.Policy.NegativeCacheControl())
	resp.Body = http.StatusText(http.StatusNotFound)
	resp.BodyEncoding = "text"
	return resp
}

func (t *OriginResponseTransformer) unavailable() Response {
	resp := NewResponse(http.StatusServiceUnavailable)
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Headers.Set("Cache-Control", "no-store")
	resp.Headers.Set("Retry-After", "1")
	resp.Body = http.StatusText(http.StatusServiceUnavailable)
	resp.BodyEncoding = "text"
	return resp
}

// Handle is the Lambda@Edge origin-response entry point.
func (t *OriginResponseTransformer) Handle(ctx context.Context, event Event) (Response, error) {
	if len(event.Records) == 0 || event.Records[0].CF.Response == nil {
		return Response{}, ErrEmptyEvent
	}
	cf := event.Records[0].CF
	return t.Transform(ctx, cf.Request, *cf.Response).Response, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
