package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mahirjain10/edge-image-resize/internal/store"
)

// objectAPI is the part of *s3.Client the service uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service is the ObjectStore backed by one bucket.
type S3Service struct {
	client     objectAPI
	presigner  *s3.PresignClient
	bucketName string
	timeout    time.Duration
}

// Using Constructor Pattern to initalize our s3Service
func NewS3Service(client *s3.Client, bucketName string, timeout time.Duration) *S3Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &S3Service{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucketName: bucketName,
		timeout:    timeout,
	}
}

func (service *S3Service) Bucket() string {
	return service.bucketName
}

func (service *S3Service) Get(parentCtx context.Context, key string) (*store.Object, error) {
	ctx, cancel := context.WithTimeout(parentCtx, service.timeout)
	defer cancel()

	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", store.ErrNotFound, service.bucketName, key)
		}
		return nil, fmt.Errorf("couldn't download object with key: %s, AWS error: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return &store.Object{
		Key:          key,
		Data:         data,
		ContentType:  aws.ToString(resp.ContentType),
		CacheControl: aws.ToString(resp.CacheControl),
		ETag:         aws.ToString(resp.ETag),
	}, nil
}

// Put writes the object whole. A concurrent writer of the same key produces
// identical bytes, so last-writer-wins is harmless.
func (service *S3Service) Put(parentCtx context.Context, key string, data []byte, opts store.PutOptions) error {
	ctx, cancel := context.WithTimeout(parentCtx, service.timeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:            aws.String(service.bucketName),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if _, err := service.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for key.
func (service *S3Service) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if service.presigner == nil {
		return "", errors.New("presigning is not configured")
	}
	req, err := service.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign url: %w", err)
	}
	return req.URL, nil
}

// isNotFound treats AccessDenied as missing: without s3:ListBucket S3 answers
// 403 for absent keys.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "AccessDenied":
			return true
		}
	}
	return false
}
