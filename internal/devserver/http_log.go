package devserver

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type statusCapturingWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (scw *statusCapturingWriter) WriteHeader(status int) {
	scw.StatusCode = status
	scw.ResponseWriter.WriteHeader(status)
}

// WithLogging logs one line per request once the handler returns.
func WithLogging(handler http.Handler, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		scw := statusCapturingWriter{ResponseWriter: writer, StatusCode: http.StatusOK}
		start := time.Now()

		handler.ServeHTTP(&scw, req)

		logger.Infow("Responded",
			"method", req.Method,
			"req.URL", req.URL.String(),
			"duration", time.Since(start).Milliseconds(),
			"status", scw.StatusCode,
			"cache", scw.Header().Get(cacheHeader),
		)
	})
}
