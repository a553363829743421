package core

import (
	"context"

	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/sam"

	"github.com/google/uuid"
)

type JobStatusStore interface {
	SetStatus(ctx context.Context, jobId uuid.UUID, status string) error
	SetFailed(ctx context.Context, jobId uuid.UUID, reason string) error
}

type JobStore interface {
	JobStatusStore

	Create(ctx context.Context, ownerId uuid.UUID, model string, scope types.Scope, payload []byte) (database.Job, error)
	SetPayload(ctx context.Context, jobId uuid.UUID, payload []byte) error
	Get(ctx context.Context, jobId uuid.UUID) (database.Job, error)
	List(ctx context.Context, filter database.JobFilter) ([]database.Job, error)
	ListCreated(ctx context.Context) ([]database.Job, error)
}

type DatasetStore interface {
	ResolveScope(ctx context.Context, scope types.Scope) (types.ResolvedScope, error)
	InsertLabels(ctx context.Context, labels []types.Label) error
}

// Segmenter answers interactive prompts. sam.Predictor is the implementation.
type Segmenter interface {
	Predict(ctx context.Context, identity string, prompts []sam.Prompt) (types.PredictResult, error)
}
