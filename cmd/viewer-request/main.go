// Command viewer-request is the Lambda@Edge function attached to the
// viewer-request event. It rewrites resize requests to their variant key.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mahirjain10/edge-image-resize/config"
	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	sugar := logger.Must(cfg.LogLevel, false)
	defer sugar.Sync()

	viewer := edge.NewViewerRequestTransformer(cfg.Deriver(), cfg.CachePolicy().Params, sugar)
	lambda.Start(viewer.Handle)
}
