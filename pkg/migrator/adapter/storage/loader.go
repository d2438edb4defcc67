// Package storage loads the query files of a job. Relative paths are read from the local base
// directory; gs:// and s3:// locations are fetched from Google Cloud Storage and Amazon S3.
// Every file is decoded from the configured character encoding.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const moduleName = "storage"

// QueryLoader resolves a query location to the query text.
type QueryLoader interface {
	Load(ctx context.Context, location string) (string, error)
}

// ObjectFetcher reads one object of a remote bucket.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Loader is the QueryLoader of the migrator.
type Loader struct {
	fs       afero.Fs
	enc      encoding.Encoding
	encName  string
	buffer   int
	fetchers map[string]ObjectFetcher
}

// NewLoader creates a Loader reading local files from fs and decoding them from encodingName.
//
// Parameters:
//
//	fs: The local file system, usually an afero.BasePathFs rooted at the base directory.
//	encodingName: A WHATWG encoding label such as "UTF-8" or "Shift_JIS".
//	buffer: The read buffer size in bytes.
//
// Returns:
//
//	The Loader, or a ConfigurationError if the encoding is unknown.
func NewLoader(fs afero.Fs, encodingName string, buffer int) (*Loader, error) {
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return nil, exception.Newf(exception.KindConfiguration, moduleName, "unknown file encoding '%s'", encodingName, err)
	}
	if buffer <= 0 {
		buffer = 4096
	}
	return &Loader{fs: fs, enc: enc, encName: encodingName, buffer: buffer, fetchers: map[string]ObjectFetcher{}}, nil
}

// NewLocalLoader creates a Loader rooted at baseDir on the operating system's file system.
func NewLocalLoader(baseDir, encodingName string, buffer int) (*Loader, error) {
	return NewLoader(afero.NewBasePathFs(afero.NewOsFs(), baseDir), encodingName, buffer)
}

// WithFetcher registers the fetcher serving locations of the given URL scheme.
func (l *Loader) WithFetcher(scheme string, f ObjectFetcher) *Loader {
	l.fetchers[strings.ToLower(scheme)] = f
	return l
}

// Load reads the query at location. Failures are QueryLoadErrors.
func (l *Loader) Load(ctx context.Context, location string) (string, error) {
	r, err := l.open(ctx, location)
	if err != nil {
		return "", exception.Newf(exception.KindQueryLoad, moduleName, "failed to open query '%s'", location, err)
	}
	defer r.Close()

	decoded := transform.NewReader(bufio.NewReaderSize(r, l.buffer), l.enc.NewDecoder())
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", exception.Newf(exception.KindQueryLoad, moduleName, "failed to read query '%s' as %s", location, l.encName, err)
	}
	logger.Debugf("Loaded query '%s' (%d bytes).", location, len(data))
	return string(data), nil
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.Contains(location, "://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, err
		}
		f, ok := l.fetchers[strings.ToLower(u.Scheme)]
		if !ok {
			return nil, fmt.Errorf("no storage configured for scheme '%s'", u.Scheme)
		}
		return f.Fetch(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	}
	return l.fs.Open(location)
}
