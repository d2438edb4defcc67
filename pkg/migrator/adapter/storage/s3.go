package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Fetcher reads objects from Amazon S3 or an S3-compatible endpoint.
type S3Fetcher struct {
	client s3iface.S3API
}

// NewS3Fetcher creates an S3Fetcher from a session built with the shared AWS configuration chain.
func NewS3Fetcher(region, endpoint string, forcePathStyle bool) (*S3Fetcher, error) {
	cfg := &aws.Config{S3ForcePathStyle: aws.Bool(forcePathStyle)}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return &S3Fetcher{client: s3.New(sess)}, nil
}

// NewS3FetcherWithClient creates an S3Fetcher over an existing client.
func NewS3FetcherWithClient(client s3iface.S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch opens s3://bucket/object for reading.
func (f *S3Fetcher) Fetch(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, object, err)
	}
	return out.Body, nil
}
