package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a job in the created state.
func (s *JobStore) Create(ctx context.Context, ownerId uuid.UUID, model string, scope types.Scope, payload []byte) (Job, error) {
	job := Job{
		Id:      uuid.New(),
		OwnerId: ownerId,
		Status:  JobCreated,
		Model:   model,
		Payload: datatypes.JSON(payload),
	}

	// The job target names one entity, the image for image scope.
	if scope.Kind() == types.ImageScope {
		job.ImageId = scope.ImageId
	} else {
		job.DatasetId = scope.DatasetId
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating job", "owner_id", ownerId, "model", model, "error", err)
		return Job{}, fmt.Errorf("%w: %v", types.ErrJobCreation, err)
	}
	return job, nil
}

func (s *JobStore) SetPayload(ctx context.Context, jobId uuid.UUID, payload []byte) error {
	if err := s.db.WithContext(ctx).Model(&Job{Id: jobId}).Update("payload", datatypes.JSON(payload)).Error; err != nil {
		slog.Error("error saving job payload", "job_id", jobId, "error", err)
		return fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return nil
}

func (s *JobStore) SetStatus(ctx context.Context, jobId uuid.UUID, status string) error {
	return UpdateJobStatus(ctx, s.db, jobId, status, "")
}

func (s *JobStore) SetFailed(ctx context.Context, jobId uuid.UUID, reason string) error {
	return UpdateJobStatus(ctx, s.db, jobId, JobFailed, reason)
}

func (s *JobStore) Get(ctx context.Context, jobId uuid.UUID) (Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Job{}, fmt.Errorf("%w: %s", types.ErrJobNotFound, jobId)
		}
		slog.Error("error loading job", "job_id", jobId, "error", err)
		return Job{}, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return job, nil
}

type JobFilter struct {
	OwnerId uuid.NullUUID
	Status  string
}

// List returns matching jobs, newest first.
func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := s.db.WithContext(ctx).Model(&Job{})
	if filter.OwnerId.Valid {
		query = query.Where("owner_id = ?", filter.OwnerId.UUID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var jobs []Job
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		slog.Error("error listing jobs", "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return jobs, nil
}

// ListCreated returns jobs that were never picked up by a worker.
func (s *JobStore) ListCreated(ctx context.Context) ([]Job, error) {
	return s.List(ctx, JobFilter{Status: JobCreated})
}
