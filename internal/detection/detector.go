package detection

import (
	"context"

	"autolabel-backend/internal/core/types"
)

// Detector runs open vocabulary detection over a batch of images. The result
// has one detection list per image url, in order.
type Detector interface {
	Predict(ctx context.Context, imageUrls []string, classes []string) ([][]types.Detection, error)
}
