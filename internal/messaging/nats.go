package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/nats-io/nats.go"
)

const (
	natsFlushTimeout = 5 * time.Second
	natsDrainTimeout = 30 * time.Second
)

func connectToNats(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("autolabel-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(RetryDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats connection lost, attempting to reconnect", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("successfully reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Info("nats connection closed")
		}),
	}

	var conn *nats.Conn
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = nats.Connect(url, opts...)
		if err == nil {
			slog.Info("connected to nats", "url", conn.ConnectedUrl())
			return conn, nil
		}
		slog.Warn("failed to connect to nats", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	slog.Error("failed to connect to nats", "attempts", MaxConnectRetry, "error", err)
	return nil, fmt.Errorf("failed to connect to nats after %d attempts: %w", MaxConnectRetry, err)
}

type natsTask struct {
	msg *nats.Msg
}

func (t *natsTask) Type() string {
	return t.msg.Subject
}

func (t *natsTask) Payload() []byte {
	return t.msg.Data
}

func (t *natsTask) Respond(ctx context.Context, body []byte) error {
	if t.msg.Reply == "" {
		return ErrNoReplyAddress
	}
	return t.msg.Respond(body)
}

// Core nats has no acknowledgements, every delivery is at most once.
func (t *natsTask) Ack() error {
	return nil
}

func (t *natsTask) Reject() error {
	return nil
}

type natsReciever struct {
	mu     sync.RWMutex
	subs   []*nats.Subscription
	tasks  chan Task
	done   chan struct{}
	closed bool
	once   sync.Once
}

func (r *natsReciever) handle(msg *nats.Msg) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.tasks <- &natsTask{msg: msg}:
	case <-r.done:
		slog.Warn("dropping nats message received after close", "subject", msg.Subject)
	}
}

func (r *natsReciever) Tasks() <-chan Task {
	return r.tasks
}

func (r *natsReciever) Close() {
	r.once.Do(func() {
		for _, sub := range r.subs {
			if err := sub.Drain(); err != nil {
				slog.Error("error draining nats subscription", "subject", sub.Subject, "error", err)
			}
		}

		deadline := time.Now().Add(natsDrainTimeout)
		for _, sub := range r.subs {
			for sub.IsValid() && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
		}

		close(r.done)

		r.mu.Lock()
		r.closed = true
		close(r.tasks)
		r.mu.Unlock()
	})
}

// NatsBus maps topics directly to nats subjects. Requests use the nats inbox
// mechanism for replies.
type NatsBus struct {
	conn       *nats.Conn
	destructor sync.Once
}

func NewNatsBus(url string) (*NatsBus, error) {
	conn, err := connectToNats(url)
	if err != nil {
		return nil, err
	}
	return &NatsBus{conn: conn}, nil
}

func (b *NatsBus) Publish(ctx context.Context, topic string, body []byte) error {
	if err := b.conn.Publish(topic, body); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDispatch, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, natsFlushTimeout)
	defer cancel()
	if err := b.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDispatch, err)
	}
	return nil
}

func (b *NatsBus) Request(ctx context.Context, topic string, body []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := b.conn.RequestWithContext(ctx, topic, body)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			return nil, timeoutError(topic, timeout)
		case errors.Is(err, nats.ErrNoResponders):
			return nil, fmt.Errorf("%w: no responders on %s", types.ErrDispatch, topic)
		default:
			return nil, fmt.Errorf("%w: %v", types.ErrDispatch, err)
		}
	}
	return msg.Data, nil
}

func (b *NatsBus) Subscribe(topics ...string) (Reciever, error) {
	r := &natsReciever{
		tasks: make(chan Task, inMemoryBufferSize),
		done:  make(chan struct{}),
	}

	for _, topic := range topics {
		// The topic doubles as queue group, replicas compete for messages.
		sub, err := b.conn.QueueSubscribe(topic, topic, r.handle)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		r.subs = append(r.subs, sub)
	}

	if err := b.conn.Flush(); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to flush nats subscriptions: %w", err)
	}

	slog.Info("subscribed to nats subjects", "subjects", topics)
	return r, nil
}

func (b *NatsBus) Close() {
	b.destructor.Do(func() {
		if err := b.conn.Drain(); err != nil {
			slog.Error("error draining nats connection", "error", err)
			b.conn.Close()
		}
	})
}
