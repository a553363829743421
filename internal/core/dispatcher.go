package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/messaging"

	"github.com/google/uuid"
)

type SubmitRequest struct {
	OwnerId uuid.UUID
	Model   string
	Scope   types.Scope
}

func (r SubmitRequest) Validate() error {
	if r.OwnerId == uuid.Nil {
		return fmt.Errorf("%w: owner_id is required", types.ErrValidation)
	}
	model, ok := registeredModels[r.Model]
	if !ok {
		return fmt.Errorf("%w: unknown model %q", types.ErrValidation, r.Model)
	}
	if !model.Batch {
		return fmt.Errorf("%w: model %q does not support batch prediction", types.ErrValidation, r.Model)
	}
	if !r.Scope.DatasetId.Valid || r.Scope.DatasetId.UUID == uuid.Nil {
		return fmt.Errorf("%w: dataset_id is required", types.ErrValidation)
	}
	if r.Scope.ImageId.Valid && r.Scope.ImageId.UUID == uuid.Nil {
		return fmt.Errorf("%w: image_id must not be empty", types.ErrValidation)
	}
	return nil
}

type Dispatcher struct {
	jobs      JobStore
	publisher *messaging.TaskPublisher
}

func NewDispatcher(jobs JobStore, publisher *messaging.TaskPublisher) *Dispatcher {
	return &Dispatcher{jobs: jobs, publisher: publisher}
}

func taskPayloadFor(jobId uuid.UUID, scope types.Scope) messaging.PredictionTask {
	if scope.Kind() == types.ImageScope {
		return messaging.ImageTaskPayload{DatasetId: scope.DatasetId.UUID, ImageId: scope.ImageId.UUID, JobId: jobId}
	}
	return messaging.DatasetTaskPayload{DatasetId: scope.DatasetId.UUID, JobId: jobId}
}

func (d *Dispatcher) publish(ctx context.Context, model messaging.ModelName, payload messaging.PredictionTask) error {
	var err error
	switch p := payload.(type) {
	case messaging.ImageTaskPayload:
		err = d.publisher.PublishImageTask(ctx, model, p)
	case messaging.DatasetTaskPayload:
		err = d.publisher.PublishDatasetTask(ctx, model, p)
	default:
		return fmt.Errorf("%w: unsupported task payload %T", types.ErrValidation, payload)
	}

	if err != nil && !errors.Is(err, types.ErrDispatch) {
		return fmt.Errorf("%w: %v", types.ErrDispatch, err)
	}
	return err
}

// Submit records a job and hands it to the workers without waiting for it.
// When publishing fails the job id is still returned with the error and the
// job stays in the created state.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	job, err := d.jobs.Create(ctx, req.OwnerId, req.Model, req.Scope, nil)
	if err != nil {
		return uuid.Nil, err
	}

	payload := taskPayloadFor(job.Id, req.Scope)
	if body, err := json.Marshal(payload); err != nil {
		slog.Error("error encoding job payload", "job_id", job.Id, "error", err)
	} else if err := d.jobs.SetPayload(ctx, job.Id, body); err != nil {
		slog.Warn("job payload not stored, job cannot be resumed", "job_id", job.Id, "error", err)
	}

	if err := d.publish(ctx, registeredModels[req.Model].Topic, payload); err != nil {
		slog.Error("error dispatching job", "job_id", job.Id, "model", req.Model, "error", err)
		return job.Id, err
	}

	slog.Info("job dispatched", "job_id", job.Id, "model", req.Model, "scope", req.Scope.Kind())
	return job.Id, nil
}

// PredictInteractive sends a segmentation request and waits for its reply.
func (d *Dispatcher) PredictInteractive(ctx context.Context, payload messaging.PromptTaskPayload) (types.PredictResult, error) {
	if err := payload.Validate(); err != nil {
		return types.PredictResult{}, err
	}
	return d.publisher.RequestPrompt(ctx, payload)
}

func (d *Dispatcher) GetJob(ctx context.Context, jobId uuid.UUID) (database.Job, error) {
	return d.jobs.Get(ctx, jobId)
}

func (d *Dispatcher) ListJobs(ctx context.Context, filter database.JobFilter) ([]database.Job, error) {
	if filter.Status != "" && !isKnownStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", types.ErrValidation, filter.Status)
	}
	return d.jobs.List(ctx, filter)
}

func isKnownStatus(status string) bool {
	switch status {
	case database.JobCreated, database.JobRunning, database.JobDone, database.JobFailed:
		return true
	}
	return false
}

// ResumeCreated republishes jobs still in the created state from their stored
// payload. Jobs without a usable payload are marked failed. It returns the
// number of jobs republished.
func (d *Dispatcher) ResumeCreated(ctx context.Context) (int, error) {
	jobs, err := d.jobs.ListCreated(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, job := range jobs {
		payload, err := storedPayload(job)
		if err != nil {
			slog.Error("cannot resume job", "job_id", job.Id, "error", err)
			if err := d.jobs.SetFailed(ctx, job.Id, err.Error()); err != nil {
				slog.Error("error marking job failed", "job_id", job.Id, "error", err)
			}
			continue
		}

		if err := d.publish(ctx, registeredModels[job.Model].Topic, payload); err != nil {
			return resumed, err
		}
		resumed++
	}

	slog.Info("resumed created jobs", "count", resumed)
	return resumed, nil
}

func storedPayload(job database.Job) (messaging.PredictionTask, error) {
	if model, ok := registeredModels[job.Model]; !ok || !model.Batch {
		return nil, fmt.Errorf("%w: model %q cannot be resumed", types.ErrValidation, job.Model)
	}
	if len(job.Payload) == 0 {
		return nil, fmt.Errorf("%w: job has no stored payload", types.ErrValidation)
	}

	var payload messaging.PredictionTask
	if job.ImageId.Valid {
		var p messaging.ImageTaskPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
		payload = p
	} else {
		var p messaging.DatasetTaskPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
		payload = p
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}
