// Package archive implements optional archival of a connection's workdir
// tree after close. The default Backend is a no-op, leaving workdirs on
// disk for post-mortem inspection; an S3 backend is available, disabled
// by default.
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Backend archives a connection's workdir contents after its session
// closes. Implementations must tolerate being called with an already-
// cancelled ctx by returning promptly.
type Backend interface {
	Store(ctx context.Context, ucix int64, name string, r io.Reader) error
}

// NoopBackend leaves the workdir exactly where the session left it;
// inspect-after-the-fact is the intended workflow.
type NoopBackend struct{}

// Store is a no-op.
func (NoopBackend) Store(_ context.Context, _ int64, _ string, _ io.Reader) error { return nil }

// S3Backend uploads workdir files to an S3 (or S3-compatible) bucket,
// mirroring the connection's UCIX into the object key so archived trees
// stay inspectable per-connection.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures an S3Backend.
type S3Config struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3Backend verifies bucket access and returns a ready S3Backend.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("archive: S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("archive: access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Backend{client: cfg.Client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Store uploads r's contents as a single S3 object keyed by UCIX and name.
func (b *S3Backend) Store(ctx context.Context, ucix int64, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := b.objectKey(ucix, name)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("archive: put object %q: %w", key, err)
	}
	return nil
}

func (b *S3Backend) objectKey(ucix int64, name string) string {
	key := fmt.Sprintf("conn%d/%s", ucix, name)
	if b.prefix != "" {
		return b.prefix + key
	}
	return key
}
