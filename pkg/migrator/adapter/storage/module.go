package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
)

// NewQueryLoader builds the Loader described by the storage and file settings of cfg.
// S3 is only wired when a region or endpoint is configured.
func NewQueryLoader(lc fx.Lifecycle, cfg *config.Config) (QueryLoader, error) {
	m := cfg.Migrator
	l, err := NewLocalLoader(m.Storage.BaseDir, m.File.Encoding, m.File.Buffer)
	if err != nil {
		return nil, err
	}

	gcs := NewGCSFetcher(m.Storage.GCS.CredentialsFile)
	l.WithFetcher("gs", gcs)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return gcs.Close() }})

	if m.Storage.S3.Region != "" || m.Storage.S3.Endpoint != "" {
		s3f, err := NewS3Fetcher(m.Storage.S3.Region, m.Storage.S3.Endpoint, m.Storage.S3.ForcePathStyle)
		if err != nil {
			return nil, err
		}
		l.WithFetcher("s3", s3f)
	}
	return l, nil
}

// Module provides the QueryLoader.
var Module = fx.Options(
	fx.Provide(NewQueryLoader),
)
