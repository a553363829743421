package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/core/utils"

	"github.com/go-resty/resty/v2"
)

const (
	predictEndpoint = "/predict"

	DefaultBatchSize   = 32
	DefaultParallelism = 2
)

// RemoteDetector calls a detector model server over http. Large image lists
// are split into batches that are sent concurrently.
type RemoteDetector struct {
	client      *resty.Client
	batchSize   int
	parallelism int
}

func NewRemoteDetector(baseUrl string, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		client:      resty.New().SetBaseURL(baseUrl).SetTimeout(timeout),
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
	}
}

func (d *RemoteDetector) WithBatching(batchSize, parallelism int) *RemoteDetector {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	if parallelism > 0 {
		d.parallelism = parallelism
	}
	return d
}

type predictRequest struct {
	ImageUrls []string `json:"image_urls"`
	Classes   []string `json:"classes"`
}

type predictResponse struct {
	Detections [][]types.Detection `json:"detections"`
}

func (d *RemoteDetector) Predict(ctx context.Context, imageUrls []string, classes []string) ([][]types.Detection, error) {
	if len(imageUrls) == 0 {
		return [][]types.Detection{}, nil
	}

	batches := utils.Chunk(imageUrls, d.batchSize)
	if len(batches) == 1 {
		return d.predictBatch(ctx, imageUrls, classes)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker := func(batch []string) ([][]types.Detection, error) {
		return d.predictBatch(ctx, batch, classes)
	}

	results := make([][][]types.Detection, len(batches))
	var firstErr error
	for completed := range utils.RunInPool(worker, batches, d.parallelism) {
		if completed.Error != nil {
			if firstErr == nil {
				firstErr = completed.Error
				cancel()
			}
			continue
		}
		results[completed.Index] = completed.Result
	}
	if firstErr != nil {
		return nil, firstErr
	}

	detections := make([][]types.Detection, 0, len(imageUrls))
	for _, batch := range results {
		detections = append(detections, batch...)
	}
	return detections, nil
}

func (d *RemoteDetector) predictBatch(ctx context.Context, imageUrls []string, classes []string) ([][]types.Detection, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(predictRequest{ImageUrls: imageUrls, Classes: classes}).
		Post(predictEndpoint)
	if err != nil {
		slog.Error("unable to reach detector", "error", err)
		return nil, fmt.Errorf("%w: detector request failed: %v", types.ErrInference, err)
	}

	if !res.IsSuccess() {
		slog.Error("detector returned error", "status_code", res.StatusCode(), "body", res.String())
		return nil, fmt.Errorf("%w: detector returned status %d", types.ErrInference, res.StatusCode())
	}

	var parsed predictResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("%w: error parsing detector response: %v", types.ErrInference, err)
	}

	if len(parsed.Detections) != len(imageUrls) {
		return nil, fmt.Errorf("%w: detector returned results for %d of %d images", types.ErrInference, len(parsed.Detections), len(imageUrls))
	}

	return parsed.Detections, nil
}
