package database

import (
	"context"
	"testing"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.Close()
	})

	return db
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	owner := uuid.New()
	datasetId := uuid.New()
	job, err := store.Create(ctx, owner, ModelYoloWorld, types.DatasetScopeOf(datasetId), []byte(`{"dataset_id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, JobCreated, job.Status)
	assert.Equal(t, datasetId, job.DatasetId.UUID)
	assert.False(t, job.ImageId.Valid)

	require.NoError(t, store.SetStatus(ctx, job.Id, JobRunning))
	require.NoError(t, store.SetStatus(ctx, job.Id, JobDone))

	job, err = store.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, JobDone, job.Status)
	assert.True(t, job.CompletionTime.Valid)
	assert.JSONEq(t, `{"dataset_id":"x"}`, string(job.Payload))

	err = store.SetFailed(ctx, job.Id, "late failure")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	job, err = store.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, JobDone, job.Status)
	assert.False(t, job.ErrorMessage.Valid)
}

func TestImageJobTarget(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	imageId := uuid.New()
	job, err := store.Create(ctx, uuid.New(), ModelYoloWorld, types.ImageScopeOf(uuid.New(), imageId), nil)
	require.NoError(t, err)
	assert.Equal(t, imageId, job.ImageId.UUID)
	assert.False(t, job.DatasetId.Valid)
}

func TestSetFailed(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	job, err := store.Create(ctx, uuid.New(), ModelYoloWorld, types.DatasetScopeOf(uuid.New()), nil)
	require.NoError(t, err)

	require.NoError(t, store.SetFailed(ctx, job.Id, "model exploded"))

	job, err = store.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "model exploded", job.ErrorMessage.String)

	assert.ErrorIs(t, store.SetStatus(ctx, job.Id, JobRunning), types.ErrInvalidTransition)
	assert.ErrorIs(t, store.SetStatus(ctx, job.Id, JobDone), types.ErrInvalidTransition)
}

func TestStatusNeverLeavesTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	sequences := [][]string{
		{JobDone, JobRunning, JobFailed, JobCreated},
		{JobFailed, JobDone, JobRunning},
		{JobRunning, JobRunning, JobDone, JobFailed},
		{JobRunning, JobFailed, JobDone},
		{JobCreated, JobDone},
	}

	for _, sequence := range sequences {
		job, err := store.Create(ctx, uuid.New(), ModelYoloWorld, types.DatasetScopeOf(uuid.New()), nil)
		require.NoError(t, err)

		expected := JobCreated
		for _, status := range sequence {
			err := store.SetStatus(ctx, job.Id, status)
			allowed := false
			for _, prior := range allowedPriorStatus[status] {
				if prior == expected {
					allowed = true
				}
			}
			if allowed {
				require.NoError(t, err)
				expected = status
			} else {
				assert.ErrorIs(t, err, types.ErrInvalidTransition)
			}

			job, err := store.Get(ctx, job.Id)
			require.NoError(t, err)
			assert.Equal(t, expected, job.Status)
		}
	}
}

func TestUnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, types.ErrJobNotFound)

	assert.ErrorIs(t, store.SetStatus(ctx, uuid.New(), JobDone), types.ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(createDB(t))

	owner1, owner2 := uuid.New(), uuid.New()
	j1, err := store.Create(ctx, owner1, ModelYoloWorld, types.DatasetScopeOf(uuid.New()), nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	j2, err := store.Create(ctx, owner1, ModelYoloWorld, types.DatasetScopeOf(uuid.New()), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, owner2, ModelYoloWorld, types.DatasetScopeOf(uuid.New()), nil)
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, j1.Id, JobDone))

	jobs, err := store.List(ctx, JobFilter{OwnerId: uuid.NullUUID{UUID: owner1, Valid: true}})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j2.Id, jobs[0].Id)
	assert.Equal(t, j1.Id, jobs[1].Id)

	jobs, err = store.List(ctx, JobFilter{OwnerId: uuid.NullUUID{UUID: owner1, Valid: true}, Status: JobDone})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, j1.Id, jobs[0].Id)

	created, err := store.ListCreated(ctx)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	all, err := store.List(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResolveScope(t *testing.T) {
	ctx := context.Background()
	store := NewDatasetStore(createDB(t))

	dataset, err := store.CreateDataset(ctx, "animals", []string{"cat", "dog"}, []string{"http://img/1.jpg", "http://img/2.jpg"})
	require.NoError(t, err)

	resolved, err := store.ResolveScope(ctx, types.DatasetScopeOf(dataset.Id))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cat": 0, "dog": 1}, resolved.Vocabulary)
	assert.Equal(t, []string{"cat", "dog"}, resolved.ClassNames())
	assert.ElementsMatch(t, []string{"http://img/1.jpg", "http://img/2.jpg"}, resolved.ImageUrls)
	require.Len(t, resolved.ImageIds, 2)

	image := dataset.Images[1]
	resolved, err = store.ResolveScope(ctx, types.ImageScopeOf(dataset.Id, image.Id))
	require.NoError(t, err)
	assert.Equal(t, []string{image.Url}, resolved.ImageUrls)
	assert.Equal(t, []uuid.UUID{image.Id}, resolved.ImageIds)

	_, err = store.ResolveScope(ctx, types.DatasetScopeOf(uuid.New()))
	assert.ErrorIs(t, err, types.ErrDatasetNotFound)

	_, err = store.ResolveScope(ctx, types.ImageScopeOf(dataset.Id, uuid.New()))
	assert.ErrorIs(t, err, types.ErrDatasetNotFound)
}

func TestInsertLabels(t *testing.T) {
	ctx := context.Background()
	store := NewDatasetStore(createDB(t))

	dataset, err := store.CreateDataset(ctx, "animals", []string{"cat", "dog"}, []string{"http://img/1.jpg"})
	require.NoError(t, err)
	imageId := dataset.Images[0].Id

	require.NoError(t, store.InsertLabels(ctx, nil))

	now := time.Now().UTC()
	labels := []types.Label{
		{Id: uuid.New(), DatasetId: dataset.Id, ImageId: imageId, ClassId: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.2, Confidence: 0.9, GeneratedBy: types.GeneratedByYolo, CreatedAt: now, UpdatedAt: now},
		{Id: uuid.New(), DatasetId: dataset.Id, ImageId: imageId, ClassId: 1, XCenter: 0.1, YCenter: 0.2, Width: 0.1, Height: 0.1, Confidence: 0.4, GeneratedBy: types.GeneratedByYolo, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, store.InsertLabels(ctx, labels))

	stored, err := store.ListLabels(ctx, imageId)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 0, stored[0].ClassId)
	assert.Equal(t, 1, stored[1].ClassId)
	assert.Equal(t, types.GeneratedByYolo, stored[0].GeneratedBy)

	// Duplicate ids fail the whole batch.
	err = store.InsertLabels(ctx, []types.Label{
		{Id: uuid.New(), DatasetId: dataset.Id, ImageId: imageId, ClassId: 0, GeneratedBy: types.GeneratedByYolo},
		labels[0],
	})
	assert.ErrorIs(t, err, types.ErrPersistence)

	stored, err = store.ListLabels(ctx, imageId)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
