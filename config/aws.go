package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// InitializeAws loads the SDK configuration. Static keys, when both are set,
// replace the default credential chain.
func InitializeAws(ctx context.Context, awsCfg AwsConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if awsCfg.Region != "" {
		opts = append(opts, config.WithRegion(awsCfg.Region))
	}
	if awsCfg.AccessKeyID != "" && awsCfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error while initializing aws: %w", err)
	}
	return cfg, nil
}
