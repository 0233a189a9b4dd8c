// Command origin-response is the Lambda@Edge function attached to the
// origin-response event. It generates variants the origin does not have yet.
package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/mahirjain10/edge-image-resize/config"
	"github.com/mahirjain10/edge-image-resize/internal/aws"
	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/logger"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
)

// handler keeps one transformer per origin bucket. Lambda@Edge has no
// environment variables, so the bucket comes from the event.
type handler struct {
	cfg     *config.Config
	awsCfg  awssdk.Config
	resizer *transformation.Resizer
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	byBucket map[string]*edge.OriginResponseTransformer
}

func (h *handler) transformerFor(event edge.Event) (*edge.OriginResponseTransformer, error) {
	bucket, region := h.cfg.Aws.BucketName, h.awsCfg.Region
	if len(event.Records) > 0 {
		if origin := event.Records[0].CF.Request.Origin; origin != nil && origin.S3 != nil {
			b, err := aws.BucketFromDomain(origin.S3.DomainName)
			if err != nil {
				return nil, err
			}
			bucket = b
			if origin.S3.Region != "" {
				region = origin.S3.Region
			}
		}
	}
	if bucket == "" {
		return nil, fmt.Errorf("no S3 origin in event and AWS_BUCKET_NAME is missing")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	cacheKey := region + "/" + bucket
	if t, ok := h.byBucket[cacheKey]; ok {
		return t, nil
	}

	awsCfg := h.awsCfg.Copy()
	awsCfg.Region = region
	client := aws.NewS3Client(awsCfg, h.cfg.Aws.Endpoint, h.cfg.Aws.UsePathStyle)
	objectStore := store.WithRetry(aws.NewS3Service(client, bucket, h.cfg.Aws.Timeout), h.cfg.RetryPolicy())

	opts := h.cfg.OriginOptions()
	opts.Logger = h.logger.With("bucket", bucket)
	t := edge.NewOriginResponseTransformer(objectStore, h.resizer, opts)
	h.byBucket[cacheKey] = t
	return t, nil
}

func (h *handler) Handle(ctx context.Context, event edge.Event) (edge.Response, error) {
	t, err := h.transformerFor(event)
	if err != nil {
		h.logger.Errorw("Cannot resolve origin store, passing response through", "error", err.Error())
		if len(event.Records) > 0 && event.Records[0].CF.Response != nil {
			return *event.Records[0].CF.Response, nil
		}
		return edge.Response{}, err
	}
	return t.Handle(ctx, event)
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	sugar := logger.Must(cfg.LogLevel, false)
	defer sugar.Sync()

	awsCfg, err := config.InitializeAws(ctx, cfg.Aws)
	if err != nil {
		sugar.Fatalw("Failed to initialize AWS config", "error", err.Error())
	}
	resizer, err := transformation.NewResizer(cfg.ResizeOptions())
	if err != nil {
		sugar.Fatalw("Failed to build resizer", "error", err.Error())
	}

	h := &handler{
		cfg:      cfg,
		awsCfg:   awsCfg,
		resizer:  resizer,
		logger:   sugar,
		byBucket: make(map[string]*edge.OriginResponseTransformer),
	}
	lambda.Start(h.Handle)
}
