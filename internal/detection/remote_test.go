package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteDetectorPredict(t *testing.T) {
	var got predictRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, predictEndpoint, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(predictResponse{Detections: [][]types.Detection{
			{{ClassName: "cat", Confidence: 0.9, XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.3}},
			{},
		}})
	}))
	defer server.Close()

	detector := NewRemoteDetector(server.URL, 5*time.Second)
	detections, err := detector.Predict(context.Background(), []string{"a.jpg", "b.jpg"}, []string{"cat", "dog"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.ImageUrls)
	assert.Equal(t, []string{"cat", "dog"}, got.Classes)
	require.Len(t, detections, 2)
	assert.Equal(t, "cat", detections[0][0].ClassName)
	assert.Empty(t, detections[1])
}

func TestRemoteDetectorErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer failing.Close()

	_, err := NewRemoteDetector(failing.URL, 5*time.Second).Predict(context.Background(), []string{"a.jpg"}, []string{"cat"})
	assert.ErrorIs(t, err, types.ErrInference)

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(predictResponse{Detections: [][]types.Detection{}})
	}))
	defer short.Close()

	_, err = NewRemoteDetector(short.URL, 5*time.Second).Predict(context.Background(), []string{"a.jpg"}, []string{"cat"})
	assert.ErrorIs(t, err, types.ErrInference)
}

func TestRemoteDetectorEmptyBatch(t *testing.T) {
	detections, err := NewRemoteDetector("http://127.0.0.1:1", time.Second).Predict(context.Background(), nil, []string{"cat"})
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestRemoteDetectorBatching(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.ImageUrls), 2)

		res := predictResponse{Detections: make([][]types.Detection, len(req.ImageUrls))}
		for i, url := range req.ImageUrls {
			res.Detections[i] = []types.Detection{{ClassName: url, Confidence: 1}}
		}
		_ = json.NewEncoder(w).Encode(res)
	}))
	defer server.Close()

	urls := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}
	detector := NewRemoteDetector(server.URL, 5*time.Second).WithBatching(2, 3)
	detections, err := detector.Predict(context.Background(), urls, []string{"cat"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, detections, len(urls))
	for i, url := range urls {
		assert.Equal(t, url, detections[i][0].ClassName)
	}
}

func TestRemoteDetectorBatchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ImageUrls[0] == "c.jpg" {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(predictResponse{Detections: make([][]types.Detection, len(req.ImageUrls))})
	}))
	defer server.Close()

	detector := NewRemoteDetector(server.URL, 5*time.Second).WithBatching(2, 2)
	_, err := detector.Predict(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}, []string{"cat"})
	assert.ErrorIs(t, err, types.ErrInference)
}
