package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSFetcher reads objects from Google Cloud Storage. The client is created on first use.
type GCSFetcher struct {
	credentialsFile string

	once   sync.Once
	client *storage.Client
	err    error
}

// NewGCSFetcher creates a GCSFetcher. An empty credentialsFile uses application default credentials.
func NewGCSFetcher(credentialsFile string) *GCSFetcher {
	return &GCSFetcher{credentialsFile: credentialsFile}
}

// Fetch opens gs://bucket/object for reading.
func (f *GCSFetcher) Fetch(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	f.once.Do(func() {
		var opts []option.ClientOption
		if f.credentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(f.credentialsFile))
		}
		f.client, f.err = storage.NewClient(ctx, opts...)
	})
	if f.err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", f.err)
	}
	r, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// Close releases the client, if one was created.
func (f *GCSFetcher) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
