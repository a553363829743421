package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestPng(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageSourceHttp(t *testing.T) {
	data := encodeTestPng(t, 8, 6)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data) //nolint:errcheck
	}))
	defer server.Close()

	source := NewImageSource(nil, time.Second)

	img, err := source.Load(context.Background(), server.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	_, err = source.Load(context.Background(), server.URL+"/missing.png")
	assert.ErrorIs(t, err, types.ErrImageLoad)
}

func TestImageSourceObjectStore(t *testing.T) {
	provider, err := NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, provider.PutObject(context.Background(), "images", "a/b.png", bytes.NewReader(encodeTestPng(t, 4, 4))))

	source := NewImageSource(provider, time.Second)

	img, err := source.Load(context.Background(), "s3://images/a/b.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = source.Load(context.Background(), "s3://images/missing.png")
	assert.ErrorIs(t, err, types.ErrImageLoad)

	_, err = source.Load(context.Background(), "s3://images")
	assert.ErrorIs(t, err, types.ErrImageLoad)

	_, err = NewImageSource(nil, time.Second).Load(context.Background(), "s3://images/a/b.png")
	assert.ErrorIs(t, err, types.ErrImageLoad)
}

func TestImageSourceLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, encodeTestPng(t, 3, 2), 0o644))

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))

	source := NewImageSource(nil, time.Second)

	img, err := source.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	img, err = source.Load(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, err = source.Load(context.Background(), garbage)
	assert.ErrorIs(t, err, types.ErrImageLoad)

	_, err = source.Load(context.Background(), filepath.Join(dir, "nope.png"))
	assert.ErrorIs(t, err, types.ErrImageLoad)
}

func TestDownloadDir(t *testing.T) {
	provider, err := NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, provider.PutObject(ctx, "models", "sam/encoder.onnx", bytes.NewReader([]byte("enc"))))
	require.NoError(t, provider.PutObject(ctx, "models", "sam/decoder.onnx", bytes.NewReader([]byte("dec"))))
	require.NoError(t, provider.PutObject(ctx, "models", "other/file", bytes.NewReader([]byte("x"))))

	dest := t.TempDir()
	handled := 0
	require.NoError(t, DownloadDir(ctx, provider, "models", "sam/", dest, false, func(Object) { handled++ }))
	assert.Equal(t, 2, handled)

	data, err := os.ReadFile(filepath.Join(dest, "encoder.onnx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("enc"), data)
	_, err = os.Stat(filepath.Join(dest, "decoder.onnx"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "file"))
	assert.True(t, os.IsNotExist(err))

	// Existing files are kept without overwrite.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "encoder.onnx"), []byte("local"), 0o644))
	require.NoError(t, DownloadDir(ctx, provider, "models", "sam/", dest, false))
	data, err = os.ReadFile(filepath.Join(dest, "encoder.onnx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), data)

	require.NoError(t, DownloadDir(ctx, provider, "models", "sam/", dest, true))
	data, err = os.ReadFile(filepath.Join(dest, "encoder.onnx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("enc"), data)
}

// readOnlyStore serves objects from memory and offers no write methods.
type readOnlyStore map[string][]byte

func (s readOnlyStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := s[bucket+"/"+key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (s readOnlyStore) DownloadObject(ctx context.Context, bucket, key, filename string) error {
	data, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func (s readOnlyStore) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object
	for name, data := range s {
		key, ok := strings.CutPrefix(name, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			objects = append(objects, Object{Name: key, Size: int64(len(data))})
		}
	}
	return objects, nil
}

func TestReadOnlyObjectStore(t *testing.T) {
	ctx := context.Background()
	store := readOnlyStore{
		"images/a.png":            encodeTestPng(t, 3, 2),
		"models/sam/encoder.onnx": []byte("enc"),
	}

	img, err := NewImageSource(store, time.Second).Load(ctx, "s3://images/a.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	_, err = NewImageSource(store, time.Second).Load(ctx, "s3://images/missing.png")
	assert.ErrorIs(t, err, types.ErrImageLoad)

	dest := t.TempDir()
	require.NoError(t, DownloadDir(ctx, store, "models", "sam", dest, false))
	data, err := os.ReadFile(filepath.Join(dest, "encoder.onnx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("enc"), data)
}
