package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autolabel-backend/internal/core/types"
)

const (
	TopicPrefix           = "predict"
	RetryDelay            = 5 * time.Second
	MaxConnectRetry       = 5
	DefaultRequestTimeout = 10 * time.Second
)

// ModelName is the model family segment of a topic.
type ModelName string

const (
	YoloModel ModelName = "yolo"
	SamModel  ModelName = "sam"
)

// Topic builds predict.<scope>.<model>.
func Topic(scope types.ScopeKind, model ModelName) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, scope, model)
}

// InteractiveSamTopic is the request/reply subject of the segmentation worker.
var InteractiveSamTopic = Topic(types.ImageScope, SamModel)

// ParseTopic splits a topic into its scope and model segments.
func ParseTopic(topic string) (types.ScopeKind, ModelName, error) {
	parts := strings.Split(topic, ".")
	if len(parts) != 3 || parts[0] != TopicPrefix {
		return "", "", fmt.Errorf("%w: malformed topic %q", types.ErrValidation, topic)
	}
	scope := types.ScopeKind(parts[1])
	if scope != types.ImageScope && scope != types.DatasetScope {
		return "", "", fmt.Errorf("%w: unsupported scope %q in topic %q", types.ErrValidation, parts[1], topic)
	}
	return scope, ModelName(parts[2]), nil
}

var ErrNoReplyAddress = errors.New("task has no reply address")

// Task is one delivery taken from the bus.
type Task interface {
	// Type returns the topic the task was delivered on.
	Type() string

	Payload() []byte

	// Respond sends a reply to the requester. It fails with ErrNoReplyAddress
	// for fire-and-forget deliveries.
	Respond(ctx context.Context, body []byte) error

	Ack() error

	// Reject consumes the delivery without requeueing it.
	Reject() error
}

type Reciever interface {
	Tasks() <-chan Task

	// Close stops new deliveries. Tasks() is closed once buffered deliveries
	// have been handed out.
	Close()
}

// Bus is a topic addressed transport supporting fire-and-forget publish and
// request/reply.
type Bus interface {
	Publish(ctx context.Context, topic string, body []byte) error

	// Request publishes body with a reply address and waits at most timeout
	// for the first reply. It never resends.
	Request(ctx context.Context, topic string, body []byte, timeout time.Duration) ([]byte, error)

	Subscribe(topics ...string) (Reciever, error)

	Close()
}

func timeoutError(topic string, timeout time.Duration) error {
	return fmt.Errorf("%w: no reply on %s within %v", types.ErrTimeout, topic, timeout)
}
