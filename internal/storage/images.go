package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"strings"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
)

const DefaultImageFetchTimeout = 30 * time.Second

// ImageSource resolves an image identity to bytes. Identities are http(s)
// urls, s3://bucket/key urls served by the object store, file:// urls or
// plain paths.
type ImageSource struct {
	client  *resty.Client
	objects ObjectReader
}

func NewImageSource(objects ObjectReader, timeout time.Duration) *ImageSource {
	if timeout <= 0 {
		timeout = DefaultImageFetchTimeout
	}
	return &ImageSource{
		client:  resty.New().SetTimeout(timeout).SetRetryCount(2),
		objects: objects,
	}
}

func (s *ImageSource) Fetch(ctx context.Context, identity string) ([]byte, error) {
	switch {
	case strings.HasPrefix(identity, "http://"), strings.HasPrefix(identity, "https://"):
		res, err := s.client.R().SetContext(ctx).Get(identity)
		if err != nil {
			return nil, fmt.Errorf("%w: error fetching %s: %v", types.ErrImageLoad, identity, err)
		}
		if res.IsError() {
			return nil, fmt.Errorf("%w: fetching %s returned status %d", types.ErrImageLoad, identity, res.StatusCode())
		}
		return res.Body(), nil

	case strings.HasPrefix(identity, "s3://"):
		if s.objects == nil {
			return nil, fmt.Errorf("%w: no object store configured for %s", types.ErrImageLoad, identity)
		}
		u, err := url.Parse(identity)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid s3 url %s: %v", types.ErrImageLoad, identity, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("%w: s3 url %s must name a bucket and key", types.ErrImageLoad, identity)
		}
		data, err := s.objects.GetObject(ctx, u.Host, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrImageLoad, err)
		}
		return data, nil

	default:
		path := strings.TrimPrefix(identity, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrImageLoad, err)
		}
		return data, nil
	}
}

// Load fetches and decodes a JPEG, PNG or WebP image.
func (s *ImageSource) Load(ctx context.Context, identity string) (image.Image, error) {
	data, err := s.Fetch(ctx, identity)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: error decoding %s: %v", types.ErrImageLoad, identity, err)
	}
	return img, nil
}
