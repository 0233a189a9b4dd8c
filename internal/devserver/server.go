// Package devserver emulates the CDN locally: it runs the viewer-request
// transformer, a TTL-aware response cache, the origin fetch and the
// origin-response transformer in the order CloudFront does.
package devserver

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/store"
)

const (
	cacheHeader = "X-Cache"
	cacheHit    = "Hit from emulator"
	cacheMiss   = "Miss from emulator"
)

type Options struct {
	CacheSize int
	// CacheMaxAge bounds how long any entry stays in the cache, whatever its TTL.
	CacheMaxAge time.Duration
	Gatherer    prometheus.Gatherer
	Logger      *zap.SugaredLogger
}

type cachedResponse struct {
	status    int
	headers   edge.Headers
	body      []byte
	expiresAt time.Time
}

type Server struct {
	viewer *edge.ViewerRequestTransformer
	origin *edge.OriginResponseTransformer
	store  store.ObjectStore
	policy edge.CachePolicy
	cache  *expirable.LRU[string, cachedResponse]
	opts   Options
	logger *zap.SugaredLogger
}

func New(viewer *edge.ViewerRequestTransformer, origin *edge.OriginResponseTransformer, objectStore store.ObjectStore, policy edge.CachePolicy, opts Options) *Server {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = time.Hour
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		viewer: viewer,
		origin: origin,
		store:  objectStore,
		policy: policy,
		cache:  expirable.NewLRU[string, cachedResponse](opts.CacheSize, nil, opts.CacheMaxAge),
		opts:   opts,
		logger: logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health-check", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/*", s.serveEdge)
	r.Head("/*", s.serveEdge)

	return WithLogging(r, s.logger)
}

// Purge drops every cached response.
func (s *Server) Purge() {
	s.cache.Purge()
}

func (s *Server) serveEdge(w http.ResponseWriter, r *http.Request) {
	viewerReq, _ := s.viewer.Transform(edge.Request{
		ClientIP:    r.RemoteAddr,
		Method:      r.Method,
		URI:         r.URL.EscapedPath(),
		QueryString: r.URL.RawQuery,
	})
	cacheKey := s.policy.CacheKey(viewerReq.URI, viewerReq.QueryString)

	if cached, ok := s.cache.Get(cacheKey); ok && time.Now().Before(cached.expiresAt) {
		s.write(w, r, cached, cacheHit)
		return
	}

	resp := s.fetchAndTransform(r, viewerReq)
	if ttl := s.policy.TTLFor(resp.headers.Get("cache-control")); ttl > 0 && cacheable(resp.status) {
		resp.expiresAt = time.Now().Add(ttl)
		s.cache.Add(cacheKey, resp)
	}
	s.write(w, r, resp, cacheMiss)
}

func (s *Server) fetchAndTransform(r *http.Request, req edge.Request) cachedResponse {
	originResp, body := s.fetchOrigin(r, req)
	res := s.origin.Transform(r.Context(), req, originResp)
	switch res.State {
	case edge.VariantFound, edge.OriginError, edge.InvalidKey:
		return cachedResponse{status: originResp.StatusCode(), headers: originResp.Headers, body: body}
	}

	out := cachedResponse{status: res.Response.StatusCode(), headers: res.Response.Headers}
	switch res.Response.BodyEncoding {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(res.Response.Body)
		if err != nil {
			s.logger.Errorw("Undecodable generated body", "uri", req.URI, "error", err.Error())
			return errorResponse(http.StatusBadGateway)
		}
		out.body = decoded
	default:
		out.body = []byte(res.Response.Body)
	}
	return out
}

// fetchOrigin plays the S3 origin for req.
func (s *Server) fetchOrigin(r *http.Request, req edge.Request) (edge.Response, []byte) {
	key, err := url.PathUnescape(strings.TrimPrefix(req.URI, "/"))
	if err != nil {
		return edge.NewResponse(http.StatusBadRequest), nil
	}
	obj, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		resp := edge.NewResponse(http.StatusNotFound)
		resp.Headers.Set("Cache-Control", s.policy.NegativeCacheControl())
		return resp, nil
	case err != nil:
		s.logger.Warnw("Origin fetch failed", "key", key, "error", err.Error())
		return edge.NewResponse(http.StatusBadGateway), nil
	}

	resp := edge.NewResponse(http.StatusOK)
	resp.Headers.Set("Content-Type", obj.ContentType)
	if obj.CacheControl != "" {
		resp.Headers.Set("Cache-Control", obj.CacheControl)
	}
	if obj.ETag != "" {
		resp.Headers.Set("ETag", quoteETag(obj.ETag))
	}
	return resp, obj.Data
}

// quoteETag quotes bare tags. S3 returns them already quoted.
func quoteETag(tag string) string {
	if strings.HasPrefix(tag, `"`) || strings.HasPrefix(tag, `W/"`) {
		return tag
	}
	return `"` + tag + `"`
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, resp cachedResponse, cacheStatus string) {
	for _, values := range resp.headers {
		for _, h := range values {
			w.Header().Add(h.Key, h.Value)
		}
	}
	w.Header().Set(cacheHeader, cacheStatus)
	w.WriteHeader(resp.status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.body)
	}
}

func cacheable(status int) bool {
	return status == http.StatusOK || status == http.StatusNotFound
}

func errorResponse(status int) cachedResponse {
	resp := edge.NewResponse(status)
	resp.Headers.Set("Cache-Control", "no-store")
	return cachedResponse{status: status, headers: resp.Headers, body: []byte(http.StatusText(status))}
}
