package port

import (
	"context"
	"io"
	"time"
)

// BlobStore is the narrow view of the object storage backend the service
// needs: persist originals and stems, stream them back, and hand out
// time-limited access URLs.
type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
