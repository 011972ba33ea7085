package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the addressed object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore addresses blobs by opaque keys inside a single bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	// Move is a copy followed by a delete of the source; it is not atomic.
	Move(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Options struct {
	Driver    string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Open builds the driver named by opts.Driver ("minio" or "s3").
func Open(ctx context.Context, opts Options) (ObjectStore, error) {
	switch opts.Driver {
	case "", "minio":
		return NewMinIO(ctx, opts)
	case "s3":
		return NewS3(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func move(ctx context.Context, store ObjectStore, srcKey, dstKey string) error {
	if err := store.Copy(ctx, srcKey, dstKey); err != nil {
		return err
	}
	return store.Delete(ctx, srcKey)
}
