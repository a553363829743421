package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/detection"
	"autolabel-backend/internal/messaging"
	"autolabel-backend/internal/sam"

	"github.com/google/uuid"
)

type TaskProcessorOptions struct {
	Jobs     JobStatusStore
	Datasets DatasetStore

	// Detector serves the batch topics, Segmenter the interactive one. A
	// worker only needs the one matching its subscription.
	Detector  detection.Detector
	Segmenter Segmenter

	// Concurrency is the number of tasks handled at once, 1 is sequential.
	Concurrency int
}

type TaskProcessor struct {
	reciever  messaging.Reciever
	jobs      JobStatusStore
	datasets  DatasetStore
	detector  detection.Detector
	segmenter Segmenter

	concurrency int

	// inferenceLock serializes model calls and the session cache.
	inferenceLock sync.Mutex

	started atomic.Bool
	done    chan struct{}
}

func NewTaskProcessor(reciever messaging.Reciever, opts TaskProcessorOptions) *TaskProcessor {
	return &TaskProcessor{
		reciever:    reciever,
		jobs:        opts.Jobs,
		datasets:    opts.Datasets,
		detector:    opts.Detector,
		segmenter:   opts.Segmenter,
		concurrency: max(opts.Concurrency, 1),
		done:        make(chan struct{}),
	}
}

// Start consumes tasks until the reciever is closed.
func (proc *TaskProcessor) Start() {
	proc.started.Store(true)
	defer close(proc.done)

	slog.Info("starting task processor", "concurrency", proc.concurrency)

	if proc.concurrency == 1 {
		for task := range proc.reciever.Tasks() {
			proc.ProcessTask(task)
		}
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < proc.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range proc.reciever.Tasks() {
				proc.ProcessTask(task)
			}
		}()
	}
	wg.Wait()
}

// Stop closes the subscription and waits for in flight tasks to finish.
func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.reciever.Close()
	if proc.started.Load() {
		<-proc.done
	}
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()
	topic := task.Type()

	decoded, err := messaging.DecodeTask(topic, task.Payload())
	if err != nil {
		slog.Error("error decoding task", "topic", topic, "error", err)
		proc.markFailed(ctx, jobIdOf(task.Payload()), err)
		proc.replyError(ctx, task, err)
		if err := task.Reject(); err != nil { // Discard malformed message
			slog.Error("error rejecting message", "topic", topic, "error", err)
		}
		return
	}

	switch payload := decoded.(type) {
	case messaging.DatasetTaskPayload:
		err = proc.processBatchTask(ctx, topic, payload.JobId, types.DatasetScopeOf(payload.DatasetId))
	case messaging.ImageTaskPayload:
		err = proc.processBatchTask(ctx, topic, payload.JobId, types.ImageScopeOf(payload.DatasetId, payload.ImageId))
	case messaging.PromptTaskPayload:
		err = proc.processPromptTask(ctx, task, payload)
	default:
		err = fmt.Errorf("%w: unsupported task %T", types.ErrValidation, decoded)
	}

	if err != nil {
		slog.Error("error processing task", "topic", topic, "error", err)
	} else {
		slog.Info("successfully processed task", "topic", topic)
	}

	// Failures are recorded on the job, the message is never redelivered.
	if err := task.Ack(); err != nil {
		slog.Error("error acknowledging message", "topic", topic, "error", err)
	}
}

// jobIdOf digs the job id out of a payload that failed to decode.
func jobIdOf(data []byte) uuid.UUID {
	var partial struct {
		JobId string `json:"job_id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(partial.JobId)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (proc *TaskProcessor) markFailed(ctx context.Context, jobId uuid.UUID, cause error) {
	if jobId == uuid.Nil || proc.jobs == nil {
		return
	}
	if err := proc.jobs.SetFailed(ctx, jobId, cause.Error()); err != nil {
		slog.Error("error marking job failed", "job_id", jobId, "error", err)
	}
}

func (proc *TaskProcessor) replyError(ctx context.Context, task messaging.Task, cause error) {
	if task.Type() != messaging.InteractiveSamTopic {
		return
	}
	if err := task.Respond(ctx, messaging.EncodeErrorReply(cause)); err != nil {
		slog.Error("error sending error reply", "topic", task.Type(), "error", err)
	}
}

func (proc *TaskProcessor) processBatchTask(ctx context.Context, topic string, jobId uuid.UUID, scope types.Scope) error {
	slog.Info("processing prediction job", "job_id", jobId, "topic", topic)

	_, model, err := messaging.ParseTopic(topic)
	if err != nil {
		proc.markFailed(ctx, jobId, err)
		return err
	}
	if model != messaging.YoloModel || proc.detector == nil || proc.datasets == nil {
		err := fmt.Errorf("%w: worker cannot serve %s", types.ErrInference, topic)
		proc.markFailed(ctx, jobId, err)
		return err
	}

	if err := proc.jobs.SetStatus(ctx, jobId, database.JobRunning); err != nil {
		if errors.Is(err, types.ErrInvalidTransition) || errors.Is(err, types.ErrJobNotFound) {
			slog.Warn("skipping task for job that cannot run", "job_id", jobId, "error", err)
			return nil
		}
		slog.Error("error marking job running", "job_id", jobId, "error", err)
	}

	labels, err := proc.detect(ctx, scope)
	if err != nil {
		proc.markFailed(ctx, jobId, err)
		return err
	}

	if err := proc.datasets.InsertLabels(ctx, labels); err != nil {
		proc.markFailed(ctx, jobId, err)
		return err
	}

	if err := proc.jobs.SetStatus(ctx, jobId, database.JobDone); err != nil {
		slog.Error("error marking job done", "job_id", jobId, "error", err)
		return err
	}

	slog.Info("prediction job done", "job_id", jobId, "labels", len(labels))
	return nil
}

func (proc *TaskProcessor) detect(ctx context.Context, scope types.Scope) ([]types.Label, error) {
	resolved, err := proc.datasets.ResolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(resolved.ImageUrls) == 0 {
		return nil, nil
	}

	proc.inferenceLock.Lock()
	detections, err := proc.detector.Predict(ctx, resolved.ImageUrls, resolved.ClassNames())
	proc.inferenceLock.Unlock()
	if err != nil {
		return nil, err
	}

	return LabelsFromDetections(scope.DatasetId.UUID, resolved, detections)
}

func (proc *TaskProcessor) processPromptTask(ctx context.Context, task messaging.Task, payload messaging.PromptTaskPayload) error {
	if proc.segmenter == nil {
		err := fmt.Errorf("%w: worker cannot serve %s", types.ErrInference, task.Type())
		proc.replyError(ctx, task, err)
		return err
	}

	prompts := sam.PromptsFromPayload(payload.Points, payload.Labels)

	proc.inferenceLock.Lock()
	result, err := proc.segmenter.Predict(ctx, payload.ImageUrl, prompts)
	proc.inferenceLock.Unlock()
	if err != nil {
		proc.replyError(ctx, task, err)
		return err
	}

	body, err := messaging.EncodeReply(result)
	if err != nil {
		proc.replyError(ctx, task, err)
		return fmt.Errorf("error encoding reply: %w", err)
	}

	if err := task.Respond(ctx, body); err != nil {
		return fmt.Errorf("error sending reply: %w", err)
	}
	return nil
}
