package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"autolabel-backend/internal/core"
	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/messaging"
	"autolabel-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DefaultModel is used when a prediction request names no model.
const DefaultModel = database.ModelYoloWorld

type BackendService struct {
	dispatcher *core.Dispatcher
}

func NewBackendService(dispatcher *core.Dispatcher) *BackendService {
	return &BackendService{dispatcher: dispatcher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/predict", func(r chi.Router) {
		r.Post("/dataset", RestHandler(s.PredictDataset))
		r.Post("/image", RestHandler(s.PredictImage))
		r.Post("/sam", RestHandler(s.PredictSam))
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListJobs))
		r.Get("/{job_id}", RestHandler(s.GetJob))
	})
}

func modelOrDefault(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}

func (s *BackendService) submit(r *http.Request, req core.SubmitRequest) (any, error) {
	jobId, err := s.dispatcher.Submit(r.Context(), req)
	if err != nil {
		if jobId != uuid.Nil {
			return nil, CodedError(StatusFor(err), fmt.Errorf("job %s created but not dispatched: %w", jobId, err))
		}
		return nil, err
	}
	return api.SubmitJobResponse{JobId: jobId}, nil
}

func (s *BackendService) PredictDataset(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictDatasetRequest](r)
	if err != nil {
		return nil, err
	}

	return s.submit(r, core.SubmitRequest{
		OwnerId: req.OwnerId,
		Model:   modelOrDefault(req.Model),
		Scope:   types.DatasetScopeOf(req.DatasetId),
	})
}

func (s *BackendService) PredictImage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictImageRequest](r)
	if err != nil {
		return nil, err
	}

	if req.ImageId == uuid.Nil {
		return nil, CodedErrorf(http.StatusBadRequest, "image_id is required")
	}

	return s.submit(r, core.SubmitRequest{
		OwnerId: req.OwnerId,
		Model:   modelOrDefault(req.Model),
		Scope:   types.ImageScopeOf(req.DatasetId, req.ImageId),
	})
}

func (s *BackendService) PredictSam(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictSamRequest](r)
	if err != nil {
		return nil, err
	}

	result, err := s.dispatcher.PredictInteractive(r.Context(), messaging.PromptTaskPayload{
		ImageUrl: req.ImageUrl,
		Points:   req.Points,
		Labels:   req.Labels,
	})
	if err != nil {
		slog.Error("interactive prediction failed", "image_url", req.ImageUrl, "error", err)
		return nil, err
	}

	return api.PredictSamResponse{Boxes: result.Boxes, Masks: result.Masks}, nil
}

func (s *BackendService) GetJob(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := s.dispatcher.GetJob(r.Context(), jobId)
	if err != nil {
		return nil, err
	}
	return convertJob(job), nil
}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListJobsParams](r)
	if err != nil {
		return nil, err
	}

	var filter database.JobFilter
	if params.OwnerId != "" {
		ownerId, err := uuid.Parse(params.OwnerId)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid owner_id: %v", err)
		}
		filter.OwnerId = uuid.NullUUID{UUID: ownerId, Valid: true}
	}
	filter.Status = params.Status

	jobs, err := s.dispatcher.ListJobs(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	return convertJobs(jobs), nil
}
