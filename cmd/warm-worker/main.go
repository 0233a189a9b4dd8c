// Command warm-worker consumes warm requests from RabbitMQ and generates the
// requested variants before the first viewer asks for them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahirjain10/edge-image-resize/config"
	"github.com/mahirjain10/edge-image-resize/internal/aws"
	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/logger"
	"github.com/mahirjain10/edge-image-resize/internal/metrics"
	"github.com/mahirjain10/edge-image-resize/internal/queue"
	"github.com/mahirjain10/edge-image-resize/internal/queue/handlers"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
)

const presignTTL = 15 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, loaded, err := config.InitializeEnvs()
	if err != nil {
		panic(err)
	}
	sugar := logger.Must(cfg.LogLevel, cfg.AppEnv == "dev")
	defer sugar.Sync()
	sugar.Infow("Configuration loaded", "envFile", loaded, "appEnv", cfg.AppEnv)

	if err := errors.Join(cfg.RequireBucket(), cfg.RequireRabbitMq()); err != nil {
		sugar.Fatalw("Incomplete configuration", "error", err.Error())
	}

	awsCfg, err := config.InitializeAws(ctx, cfg.Aws)
	if err != nil {
		sugar.Fatalw("Failed to initialize AWS config", "error", err.Error())
	}
	client := aws.NewS3Client(awsCfg, cfg.Aws.Endpoint, cfg.Aws.UsePathStyle)
	s3Service := aws.NewS3Service(client, cfg.Aws.BucketName, cfg.Aws.Timeout)
	objectStore := store.WithRetry(s3Service, cfg.RetryPolicy())

	recorder, err := metrics.New("", prometheus.DefaultRegisterer)
	if err != nil {
		sugar.Fatalw("Failed to register metrics", "error", err.Error())
	}

	resizer, err := transformation.NewResizer(cfg.ResizeOptions())
	if err != nil {
		sugar.Fatalw("Failed to build resizer", "error", err.Error())
	}
	opts := cfg.OriginOptions()
	opts.Logger = sugar
	opts.Metrics = recorder
	origin := edge.NewOriginResponseTransformer(objectStore, resizer, opts)

	warmer := handlers.NewWarmHandler(objectStore, origin, cfg.Deriver()).WithPresigner(s3Service, presignTTL)
	service := queue.NewWarmService(warmer, cfg.QueueOptions(), sugar).WithRecorder(recorder)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health-check", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{Addr: cfg.Http.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Metrics server stopped", "error", err.Error())
		}
	}()

	sugar.Infow("Warm worker starting", "queue", cfg.RabbitMq.WarmQueue, "workers", cfg.RabbitMq.Workers)
	if err := service.Start(ctx); err != nil {
		sugar.Errorw("Warm worker stopped", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
