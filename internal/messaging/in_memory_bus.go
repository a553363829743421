package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autolabel-backend/internal/core/types"
)

const inMemoryBufferSize = 100

type inMemoryTask struct {
	topic   string
	payload []byte
	reply   chan []byte
}

func (t *inMemoryTask) Type() string {
	return t.topic
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Respond(ctx context.Context, body []byte) error {
	if t.reply == nil {
		return ErrNoReplyAddress
	}
	select {
	case t.reply <- body:
	default:
		// A reply was already delivered; later replies are discarded.
	}
	return nil
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

type inMemoryReciever struct {
	bus    *InMemoryBus
	topics []string
	tasks  chan Task
	done   chan struct{}
	once   sync.Once
}

func (r *inMemoryReciever) Tasks() <-chan Task {
	return r.tasks
}

func (r *inMemoryReciever) Close() {
	r.once.Do(func() {
		close(r.done)
		r.bus.unsubscribe(r)
		close(r.tasks)
	})
}

func (r *inMemoryReciever) deliver(ctx context.Context, task Task) error {
	select {
	case r.tasks <- task:
		return nil
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InMemoryBus is a process local Bus used by the single binary deployment and
// tests. Delivery is fan-out to every reciever subscribed to the topic.
type InMemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*inMemoryReciever
	closed bool
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]*inMemoryReciever)}
}

func (b *InMemoryBus) publishInternal(ctx context.Context, task *inMemoryTask) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("%w: in-memory bus is closed", types.ErrDispatch)
	}

	subs := b.subs[task.topic]
	for _, sub := range subs {
		if err := sub.deliver(ctx, task); err != nil {
			return 0, fmt.Errorf("%w: %v", types.ErrDispatch, err)
		}
	}
	return len(subs), nil
}

func (b *InMemoryBus) Publish(ctx context.Context, topic string, body []byte) error {
	_, err := b.publishInternal(ctx, &inMemoryTask{topic: topic, payload: body})
	return err
}

func (b *InMemoryBus) Request(ctx context.Context, topic string, body []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task := &inMemoryTask{topic: topic, payload: body, reply: make(chan []byte, 1)}
	n, err := b.publishInternal(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(topic, timeout)
		}
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no responders on %s", types.ErrDispatch, topic)
	}

	select {
	case reply := <-task.reply:
		return reply, nil
	case <-ctx.Done():
		return nil, timeoutError(topic, timeout)
	}
}

func (b *InMemoryBus) Subscribe(topics ...string) (Reciever, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("in-memory bus is closed")
	}

	r := &inMemoryReciever{
		bus:    b,
		topics: topics,
		tasks:  make(chan Task, inMemoryBufferSize),
		done:   make(chan struct{}),
	}
	for _, topic := range topics {
		b.subs[topic] = append(b.subs[topic], r)
	}
	return r, nil
}

func (b *InMemoryBus) unsubscribe(r *inMemoryReciever) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range r.topics {
		subs := b.subs[topic]
		for i, sub := range subs {
			if sub == r {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
