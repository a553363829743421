package core

import (
	"fmt"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
)

// LabelsFromDetections maps detector output onto dataset labels.
// detections[i] belongs to resolved.ImageIds[i]. A class outside the dataset
// vocabulary fails the whole batch.
func LabelsFromDetections(datasetId uuid.UUID, resolved types.ResolvedScope, detections [][]types.Detection) ([]types.Label, error) {
	if len(detections) != len(resolved.ImageIds) {
		return nil, fmt.Errorf("%w: got detections for %d of %d images", types.ErrInference, len(detections), len(resolved.ImageIds))
	}

	now := time.Now().UTC()
	labels := make([]types.Label, 0)
	for i, perImage := range detections {
		for _, det := range perImage {
			classId, ok := resolved.Vocabulary[det.ClassName]
			if !ok {
				return nil, fmt.Errorf("%w: %q", types.ErrClassVocabulary, det.ClassName)
			}

			labels = append(labels, types.Label{
				Id:          uuid.New(),
				DatasetId:   datasetId,
				ImageId:     resolved.ImageIds[i],
				ClassId:     classId,
				XCenter:     det.XCenter,
				YCenter:     det.YCenter,
				Width:       det.Width,
				Height:      det.Height,
				Confidence:  det.Confidence,
				GeneratedBy: types.GeneratedByYolo,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
	}
	return labels, nil
}
