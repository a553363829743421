package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Object struct {
	Name string
	Size int64
}

// ObjectReader is the read side of an object store, all that image loading
// and model download need. S3Provider and LocalProvider also offer
// CreateBucket and PutObject for seeding buckets.
type ObjectReader interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	DownloadObject(ctx context.Context, bucket, key, filename string) error

	// ListObjects returns keys under prefix, relative to the bucket.
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}

var (
	_ ObjectReader = (*S3Provider)(nil)
	_ ObjectReader = (*LocalProvider)(nil)
)

// DownloadDir mirrors every object under prefix into dir. Existing files are
// kept unless overwrite is set. onObject, if given, is called after each
// object is handled.
func DownloadDir(ctx context.Context, provider ObjectReader, bucket, prefix, dir string, overwrite bool, onObject ...func(Object)) error {
	objects, err := provider.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return fmt.Errorf("error listing objects in %s/%s: %w", bucket, prefix, err)
	}

	for _, obj := range objects {
		if err := downloadInto(ctx, provider, bucket, prefix, dir, obj, overwrite); err != nil {
			return err
		}
		for _, fn := range onObject {
			fn(obj)
		}
	}

	slog.Info("downloaded directory", "bucket", bucket, "prefix", prefix, "dir", dir, "objects", len(objects))
	return nil
}

func downloadInto(ctx context.Context, provider ObjectReader, bucket, prefix, dir string, obj Object, overwrite bool) error {
	rel := strings.TrimPrefix(strings.TrimPrefix(obj.Name, prefix), "/")
	if rel == "" {
		return nil
	}
	dest := filepath.Join(dir, filepath.FromSlash(rel))

	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			slog.Debug("file already present, skipping download", "path", dest)
			return nil
		}
	}

	return provider.DownloadObject(ctx, bucket, obj.Name, dest)
}
