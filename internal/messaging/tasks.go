package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
)

// PredictionTask is one of DatasetTaskPayload, ImageTaskPayload or
// PromptTaskPayload. The topic a task travels on decides which.
type PredictionTask interface {
	Validate() error
}

type DatasetTaskPayload struct {
	DatasetId uuid.UUID `json:"dataset_id"`
	JobId     uuid.UUID `json:"job_id"`
}

func (p DatasetTaskPayload) Validate() error {
	if p.DatasetId == uuid.Nil {
		return fmt.Errorf("%w: dataset_id is required", types.ErrValidation)
	}
	if p.JobId == uuid.Nil {
		return fmt.Errorf("%w: job_id is required", types.ErrValidation)
	}
	return nil
}

type ImageTaskPayload struct {
	DatasetId uuid.UUID `json:"dataset_id"`
	ImageId   uuid.UUID `json:"image_id"`
	JobId     uuid.UUID `json:"job_id"`
}

func (p ImageTaskPayload) Validate() error {
	if p.DatasetId == uuid.Nil {
		return fmt.Errorf("%w: dataset_id is required", types.ErrValidation)
	}
	if p.ImageId == uuid.Nil {
		return fmt.Errorf("%w: image_id is required", types.ErrValidation)
	}
	if p.JobId == uuid.Nil {
		return fmt.Errorf("%w: job_id is required", types.ErrValidation)
	}
	return nil
}

// PromptTaskPayload carries click prompts for one image. Points[i] is the
// prompt of object i and Labels[i][j] marks Points[i][j] as foreground (1) or
// background (0).
type PromptTaskPayload struct {
	ImageUrl string        `json:"image_url"`
	Points   [][][]float64 `json:"points"`
	Labels   [][]int       `json:"labels"`
}

func (p PromptTaskPayload) Validate() error {
	if p.ImageUrl == "" {
		return fmt.Errorf("%w: image_url is required", types.ErrValidation)
	}
	if len(p.Points) != len(p.Labels) {
		return fmt.Errorf("%w: got %d point groups but %d label groups", types.ErrValidation, len(p.Points), len(p.Labels))
	}
	for i, group := range p.Points {
		if len(group) != len(p.Labels[i]) {
			return fmt.Errorf("%w: prompt %d has %d points but %d labels", types.ErrValidation, i, len(group), len(p.Labels[i]))
		}
		for j, point := range group {
			if len(point) != 2 {
				return fmt.Errorf("%w: point %d of prompt %d must have 2 coordinates, got %d", types.ErrValidation, j, i, len(point))
			}
		}
		for j, label := range p.Labels[i] {
			if label != 0 && label != 1 {
				return fmt.Errorf("%w: label %d of prompt %d must be 0 or 1, got %d", types.ErrValidation, j, i, label)
			}
		}
	}
	return nil
}

func decodeStrict(data []byte, dst PredictionTask) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	return nil
}

// DecodeTask decodes and validates the payload carried on topic.
func DecodeTask(topic string, data []byte) (PredictionTask, error) {
	scope, _, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}

	var task PredictionTask
	switch {
	case topic == InteractiveSamTopic:
		var p PromptTaskPayload
		if err := decodeStrict(data, &p); err != nil {
			return nil, err
		}
		task = p
	case scope == types.DatasetScope:
		var p DatasetTaskPayload
		if err := decodeStrict(data, &p); err != nil {
			return nil, err
		}
		task = p
	default:
		var p ImageTaskPayload
		if err := decodeStrict(data, &p); err != nil {
			return nil, err
		}
		task = p
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

type promptReply struct {
	Boxes *[][4]float64   `json:"boxes,omitempty"`
	Masks *[][][2]float64 `json:"masks,omitempty"`
	Error *string         `json:"error,omitempty"`
}

func EncodeReply(result types.PredictResult) ([]byte, error) {
	boxes, masks := result.Boxes, result.Masks
	if boxes == nil {
		boxes = [][4]float64{}
	}
	if masks == nil {
		masks = [][][2]float64{}
	}
	return json.Marshal(promptReply{Boxes: &boxes, Masks: &masks})
}

func EncodeErrorReply(err error) []byte {
	msg := err.Error()
	body, _ := json.Marshal(promptReply{Error: &msg})
	return body
}

// DecodeReply turns an error reply into an ErrInference wrapped error.
func DecodeReply(data []byte) (types.PredictResult, error) {
	var reply promptReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return types.PredictResult{}, fmt.Errorf("%w: malformed reply: %v", types.ErrInference, err)
	}
	if reply.Error != nil {
		return types.PredictResult{}, fmt.Errorf("%w: %s", types.ErrInference, *reply.Error)
	}
	if reply.Boxes == nil || reply.Masks == nil {
		return types.PredictResult{}, fmt.Errorf("%w: reply has neither result nor error", types.ErrInference)
	}
	return types.PredictResult{Boxes: *reply.Boxes, Masks: *reply.Masks}, nil
}

// TaskPublisher is the typed producer side of the bus.
type TaskPublisher struct {
	bus            Bus
	requestTimeout time.Duration
}

func NewTaskPublisher(bus Bus, requestTimeout time.Duration) *TaskPublisher {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &TaskPublisher{bus: bus, requestTimeout: requestTimeout}
}

func (p *TaskPublisher) publishTaskInternal(ctx context.Context, topic string, payload PredictionTask) error {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal payload", "topic", topic, "error", err)
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	if err := p.bus.Publish(ctx, topic, body); err != nil {
		slog.Error("failed to publish task", "topic", topic, "error", err)
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

func (p *TaskPublisher) PublishDatasetTask(ctx context.Context, model ModelName, payload DatasetTaskPayload) error {
	return p.publishTaskInternal(ctx, Topic(types.DatasetScope, model), payload)
}

func (p *TaskPublisher) PublishImageTask(ctx context.Context, model ModelName, payload ImageTaskPayload) error {
	return p.publishTaskInternal(ctx, Topic(types.ImageScope, model), payload)
}

// RequestPrompt sends an interactive segmentation request and waits for the
// worker's reply.
func (p *TaskPublisher) RequestPrompt(ctx context.Context, payload PromptTaskPayload) (types.PredictResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return types.PredictResult{}, fmt.Errorf("failed to marshal prompt payload: %w", err)
	}

	reply, err := p.bus.Request(ctx, InteractiveSamTopic, body, p.requestTimeout)
	if err != nil {
		if !errors.Is(err, types.ErrTimeout) {
			slog.Error("prompt request failed", "topic", InteractiveSamTopic, "error", err)
		}
		return types.PredictResult{}, err
	}

	return DecodeReply(reply)
}
