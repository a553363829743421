package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const labelInsertBatchSize = 500

type DatasetStore struct {
	db *gorm.DB
}

func NewDatasetStore(db *gorm.DB) *DatasetStore {
	return &DatasetStore{db: db}
}

// ResolveScope loads the class vocabulary of the dataset and the images the
// scope covers.
func (s *DatasetStore) ResolveScope(ctx context.Context, scope types.Scope) (types.ResolvedScope, error) {
	if !scope.DatasetId.Valid {
		return types.ResolvedScope{}, fmt.Errorf("%w: scope has no dataset", types.ErrValidation)
	}
	datasetId := scope.DatasetId.UUID

	var dataset Dataset
	if err := s.db.WithContext(ctx).Preload("Classes").First(&dataset, "id = ?", datasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ResolvedScope{}, fmt.Errorf("%w: dataset %s", types.ErrDatasetNotFound, datasetId)
		}
		slog.Error("error loading dataset", "dataset_id", datasetId, "error", err)
		return types.ResolvedScope{}, fmt.Errorf("%w: error loading dataset: %v", types.ErrPersistence, err)
	}

	vocabulary := make(map[string]int, len(dataset.Classes))
	for _, class := range dataset.Classes {
		vocabulary[class.Name] = class.ClassId
	}

	query := s.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if scope.Kind() == types.ImageScope {
		query = query.Where("id = ?", scope.ImageId.UUID)
	}

	var images []Image
	if err := query.Order("created_at, id").Find(&images).Error; err != nil {
		slog.Error("error loading images", "dataset_id", datasetId, "error", err)
		return types.ResolvedScope{}, fmt.Errorf("%w: error loading images: %v", types.ErrPersistence, err)
	}

	if scope.Kind() == types.ImageScope && len(images) == 0 {
		return types.ResolvedScope{}, fmt.Errorf("%w: image %s in dataset %s", types.ErrDatasetNotFound, scope.ImageId.UUID, datasetId)
	}

	resolved := types.ResolvedScope{
		Vocabulary: vocabulary,
		ImageUrls:  make([]string, 0, len(images)),
		ImageIds:   make([]uuid.UUID, 0, len(images)),
	}
	for _, image := range images {
		resolved.ImageUrls = append(resolved.ImageUrls, image.Url)
		resolved.ImageIds = append(resolved.ImageIds, image.Id)
	}
	return resolved, nil
}

// InsertLabels persists all labels or none.
func (s *DatasetStore) InsertLabels(ctx context.Context, labels []types.Label) error {
	if len(labels) == 0 {
		return nil
	}

	rows := make([]Label, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, Label{
			Id:          label.Id,
			DatasetId:   label.DatasetId,
			ImageId:     label.ImageId,
			ClassId:     label.ClassId,
			XCenter:     label.XCenter,
			YCenter:     label.YCenter,
			Width:       label.Width,
			Height:      label.Height,
			Confidence:  label.Confidence,
			GeneratedBy: label.GeneratedBy,
			CreatedAt:   label.CreatedAt,
			UpdatedAt:   label.UpdatedAt,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		return txn.CreateInBatches(&rows, labelInsertBatchSize).Error
	})
	if err != nil {
		slog.Error("error inserting labels", "count", len(rows), "error", err)
		return fmt.Errorf("%w: error inserting labels: %v", types.ErrPersistence, err)
	}
	return nil
}

func (s *DatasetStore) ListLabels(ctx context.Context, imageId uuid.UUID) ([]Label, error) {
	var labels []Label
	if err := s.db.WithContext(ctx).Where("image_id = ?", imageId).Order("class_id, x_center").Find(&labels).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return labels, nil
}

// CreateDataset registers a dataset with its class vocabulary (class ids
// follow the order of classNames) and image urls.
func (s *DatasetStore) CreateDataset(ctx context.Context, name string, classNames []string, imageUrls []string) (Dataset, error) {
	dataset := Dataset{Id: uuid.New(), Name: name}
	for i, className := range classNames {
		dataset.Classes = append(dataset.Classes, DatasetClass{DatasetId: dataset.Id, ClassId: i, Name: className})
	}
	for _, url := range imageUrls {
		dataset.Images = append(dataset.Images, Image{Id: uuid.New(), DatasetId: dataset.Id, Url: url})
	}

	if err := s.db.WithContext(ctx).Create(&dataset).Error; err != nil {
		slog.Error("error creating dataset", "name", name, "error", err)
		return Dataset{}, fmt.Errorf("%w: error creating dataset: %v", types.ErrPersistence, err)
	}
	return dataset, nil
}
