package aws

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds the S3 client. endpoint overrides the resolved endpoint
// for S3 compatible stores such as MinIO or LocalStack.
func NewS3Client(cfg aws.Config, endpoint string, usePathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
}

// BucketFromDomain extracts the bucket name from a CloudFront S3 origin
// domain such as images.s3.us-east-1.amazonaws.com.
func BucketFromDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	for _, marker := range []string{".s3.", ".s3-"} {
		if i := strings.LastIndex(domain, marker); i > 0 {
			return domain[:i], nil
		}
	}
	return "", fmt.Errorf("%q is not an S3 origin domain", domain)
}
