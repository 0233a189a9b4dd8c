// Command edge-image-resize runs the CDN emulator: both edge transformers,
// a response cache and the origin store behind one local HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/config"
	"github.com/mahirjain10/edge-image-resize/internal/aws"
	"github.com/mahirjain10/edge-image-resize/internal/devserver"
	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/logger"
	"github.com/mahirjain10/edge-image-resize/internal/metrics"
	"github.com/mahirjain10/edge-image-resize/internal/queue"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/store/memory"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
)

type App struct {
	config       *config.Config
	logger       *zap.SugaredLogger
	rabbitMqConn *amqp.Connection
	server       *http.Server
}

// NewApp creates and initializes a new App instance with all dependencies
func NewApp(ctx context.Context) (*App, error) {
	envConfig, loaded, err := config.InitializeEnvs()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize environment config: %w", err)
	}
	sugar, err := logger.New(envConfig.LogLevel, envConfig.AppEnv == "dev")
	if err != nil {
		return nil, err
	}
	sugar.Infow("Configuration loaded", "envFile", loaded, "appEnv", envConfig.AppEnv)

	objectStore, err := newObjectStore(ctx, envConfig, sugar)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.New("", prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	resizer, err := transformation.NewResizer(envConfig.ResizeOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build resizer: %w", err)
	}

	app := &App{config: envConfig, logger: sugar}

	opts := envConfig.OriginOptions()
	opts.Logger = sugar
	opts.Metrics = recorder
	if envConfig.RabbitMq.URL != "" {
		publisher, err := app.newPublisher()
		if err != nil {
			return nil, err
		}
		opts.Publisher = publisher
	}

	policy := envConfig.CachePolicy()
	viewer := edge.NewViewerRequestTransformer(envConfig.Deriver(), policy.Params, sugar).WithMetrics(recorder)
	origin := edge.NewOriginResponseTransformer(objectStore, resizer, opts)
	emulator := devserver.New(viewer, origin, objectStore, policy, devserver.Options{
		CacheSize: envConfig.Http.CacheSize,
		Logger:    sugar,
	})

	app.server = &http.Server{
		Addr:              envConfig.Http.Addr,
		Handler:           emulator.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app, nil
}

// newObjectStore uses S3 when a bucket is configured and an in-memory store
// seeded from SEED_DIR otherwise.
func newObjectStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (store.ObjectStore, error) {
	if cfg.Aws.BucketName != "" {
		awsConfig, err := config.InitializeAws(ctx, cfg.Aws)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
		}
		client := aws.NewS3Client(awsConfig, cfg.Aws.Endpoint, cfg.Aws.UsePathStyle)
		sugar.Infow("Using S3 origin", "bucket", cfg.Aws.BucketName)
		return store.WithRetry(aws.NewS3Service(client, cfg.Aws.BucketName, cfg.Aws.Timeout), cfg.RetryPolicy()), nil
	}

	mem := memory.New()
	if cfg.Http.SeedDir != "" {
		count, err := mem.Seed(ctx, cfg.Http.SeedDir)
		if err != nil {
			return nil, err
		}
		sugar.Infow("Seeded in-memory origin", "dir", cfg.Http.SeedDir, "objects", count)
	}
	return mem, nil
}

func (a *App) newPublisher() (*queue.Publisher, error) {
	conn, err := queue.NewRabbitMQClient(a.config.RabbitMq.URL)
	if err != nil {
		return nil, err
	}
	ch, err := queue.NewChannel(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := queue.DeclareExchange(ch, a.config.RabbitMq.Exchange); err != nil {
		conn.Close()
		return nil, err
	}
	a.rabbitMqConn = conn
	return queue.NewPublisher(ch, a.config.RabbitMq.Exchange, a.logger), nil
}

// Close gracefully shuts down the application
func (a *App) Close(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.rabbitMqConn != nil {
		err = errors.Join(err, a.rabbitMqConn.Close())
	}
	_ = a.logger.Sync()
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	go func() {
		app.logger.Infow("Emulator listening", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatalw("Server failed", "error", err.Error())
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		app.logger.Warnw("Shutdown finished with errors", "error", err.Error())
	}
}
