//go:build integration

package integrationtests

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autolabel-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketName = "test-bucket"

func setupS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	provider, err := storage.NewS3Provider(storage.S3ProviderConfig{
		S3EndpointURL:     setupMinioContainer(t, ctx),
		S3AccessKeyID:     minioUsername,
		S3SecretAccessKey: minioPassword,
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)
	require.NoError(t, provider.CreateBucket(ctx, bucketName))
	return provider
}

func TestS3ProviderObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	provider := setupS3Provider(t, ctx)

	require.NoError(t, provider.PutObject(ctx, bucketName, "models/sam/encoder.onnx", strings.NewReader("encoder")))
	require.NoError(t, provider.PutObject(ctx, bucketName, "models/sam/decoder.onnx", strings.NewReader("decoder")))

	data, err := provider.GetObject(ctx, bucketName, "models/sam/encoder.onnx")
	require.NoError(t, err)
	assert.Equal(t, "encoder", string(data))

	objects, err := provider.ListObjects(ctx, bucketName, "models/sam")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	dir := t.TempDir()
	require.NoError(t, storage.DownloadDir(ctx, provider, bucketName, "models/sam", dir, false))

	decoder, err := os.ReadFile(filepath.Join(dir, "decoder.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "decoder", string(decoder))
}

func TestImageSourceFromS3(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	provider := setupS3Provider(t, ctx)

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, provider.PutObject(ctx, bucketName, "images/a.png", &buf))

	source := storage.NewImageSource(provider, 10*time.Second)
	loaded, err := source.Load(ctx, "s3://"+bucketName+"/images/a.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), loaded.Bounds())

	_, err = source.Load(ctx, "s3://"+bucketName+"/images/missing.png")
	assert.Error(t, err)
}
