//go:build integration

package integrationtests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	backend "autolabel-backend/internal/api"
	"autolabel-backend/internal/core"
	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/messaging"
	"autolabel-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDetector struct{}

func (staticDetector) Predict(ctx context.Context, imageUrls []string, classes []string) ([][]types.Detection, error) {
	out := make([][]types.Detection, len(imageUrls))
	for i := range imageUrls {
		out[i] = []types.Detection{{ClassName: classes[len(classes)-1], Confidence: 0.9, XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.2}}
	}
	return out, nil
}

// TestDatasetPredictionWorkflow runs the gateway and a detector worker over
// postgres and rabbitmq.
func TestDatasetPredictionWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)
	bus, err := messaging.NewRabbitMQBus(setupRabbitMQContainer(t, ctx), 1)
	require.NoError(t, err)
	defer bus.Close()

	datasets := database.NewDatasetStore(db)
	jobs := database.NewJobStore(db)

	dataset, err := datasets.CreateDataset(ctx, "animals", []string{"cat", "dog"}, []string{"a.jpg", "b.jpg", "c.jpg"})
	require.NoError(t, err)

	reciever, err := bus.Subscribe(
		messaging.Topic(types.DatasetScope, messaging.YoloModel),
		messaging.Topic(types.ImageScope, messaging.YoloModel),
	)
	require.NoError(t, err)

	worker := core.NewTaskProcessor(reciever, core.TaskProcessorOptions{
		Jobs:        jobs,
		Datasets:    datasets,
		Detector:    staticDetector{},
		Concurrency: 2,
	})
	go worker.Start()
	defer worker.Stop()

	router := chi.NewRouter()
	backend.NewBackendService(core.NewDispatcher(jobs, messaging.NewTaskPublisher(bus, 10*time.Second))).AddRoutes(router)

	var submitted api.SubmitJobResponse
	require.NoError(t, httpRequest(router, http.MethodPost, "/predict/dataset", api.PredictDatasetRequest{
		OwnerId:   uuid.New(),
		DatasetId: dataset.Id,
	}, &submitted))

	var job api.Job
	require.Eventually(t, func() bool {
		err := httpRequest(router, http.MethodGet, fmt.Sprintf("/jobs/%s", submitted.JobId), nil, &job)
		return err == nil && job.Status == database.JobDone
	}, 30*time.Second, 200*time.Millisecond)
	assert.NotNil(t, job.CompletionTime)

	for _, img := range dataset.Images {
		labels, err := datasets.ListLabels(ctx, img.Id)
		require.NoError(t, err)
		require.Len(t, labels, 1)
		assert.Equal(t, 1, labels[0].ClassId)
	}
}
