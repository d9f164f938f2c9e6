// Package s3 provides a source.Source for MinIO and other S3-compatible
// object stores, built on github.com/minio/minio-go/v7.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/IvanBrykalov/rangecache/source"
)

// Config holds the connection settings of a Source.
type Config struct {
	// Endpoint is the server address (e.g. "localhost:9000").
	Endpoint string
	// Bucket is used for paths that do not name one ("key" rather than
	// "s3://bucket/key").
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Region is optional.
	Region string
	// Prefix is prepended to keys of unqualified paths.
	Prefix string

	// Client is an optional pre-configured client. If provided, Endpoint
	// and credentials are ignored.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when client is not provided")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("access key and secret key must be set together")
	}
	return nil
}

// Source reads object ranges with GetObject range requests.
type Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// New returns a Source for cfg.
func New(cfg Config) (*Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("s3: invalid config: %w", err)
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: create client: %w", err)
		}
	}
	return &Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Client returns the underlying minio client.
func (s *Source) Client() *minio.Client { return s.client }

// Size implements source.Source.
func (s *Source) Size(ctx context.Context, path string) (int64, error) {
	bucket, key, err := s.locate(path)
	if err != nil {
		return 0, err
	}
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("s3: stat %s: %w", path, translate(err))
	}
	return info.Size, nil
}

// ReadRange implements source.Source.
func (s *Source) ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("s3: read %s: invalid range off=%d n=%d", path, off, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	bucket, key, err := s.locate(path)
	if err != nil {
		return nil, err
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+n-1); err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", path, err)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", path, translate(err))
	}
	defer func() {
		_ = obj.Close()
	}()

	buf := make([]byte, n)
	got, err := io.ReadFull(obj, buf)
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return buf[:got], nil
	case minio.ToErrorResponse(err).Code == "InvalidRange":
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("s3: read %s: %w", path, translate(err))
	}
}

// locate splits path into bucket and key. "s3://bucket/key" names both;
// any other path is a key in the configured bucket.
func (s *Source) locate(path string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(path, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("s3: malformed path %q", path)
		}
		return bucket, key, nil
	}
	if s.bucket == "" {
		return "", "", fmt.Errorf("s3: %q names no bucket and none is configured", path)
	}
	key = strings.TrimLeft(path, "/")
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return s.bucket, key, nil
}

// translate maps S3 error codes onto source and fs sentinels.
func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", source.ErrNotFound, err)
	case "AccessDenied":
		return fmt.Errorf("%w: %w", fs.ErrPermission, err)
	}
	return err
}

var _ source.Source = (*Source)(nil)
