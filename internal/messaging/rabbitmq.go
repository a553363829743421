package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	PredictExchange = "predict"
	directReplyTo   = "amq.rabbitmq.reply-to"
)

func connectToRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	slog.Error("failed to connect to rabbitmq", "attempts", MaxConnectRetry, "error", err)
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", MaxConnectRetry, err)
}

func declareExchange(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(PredictExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare rabbitmq exchange %s: %w", PredictExchange, err)
	}
	return nil
}

// RabbitMQBus routes topics through a topic exchange. Every topic is bound to a
// durable queue of the same name so fire-and-forget tasks survive worker
// restarts.
type RabbitMQBus struct {
	connLock   sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	url        string
	prefetch   int
	recievers  []*RabbitMQReceiver
	destructor sync.Once
}

func NewRabbitMQBus(rabbitMQURL string, prefetch int) (*RabbitMQBus, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	b := &RabbitMQBus{url: rabbitMQURL, prefetch: prefetch}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RabbitMQBus) connect() error {
	var err error
	b.conn, err = connectToRabbitMQ(b.url)
	if err != nil {
		return err
	}

	b.channel, err = b.conn.Channel()
	if err != nil {
		b.conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := declareExchange(b.channel); err != nil {
		b.conn.Close()
		return err
	}

	slog.Info("rabbitmq channel opened and exchange declared")

	go b.handleReconnect()

	return nil
}

func (b *RabbitMQBus) handleReconnect() {
	notifyClose := make(chan *amqp.Error, 1)
	b.channel.NotifyClose(notifyClose)

	err, ok := <-notifyClose
	if !ok {
		slog.Info("rabbitmq connection closed", "error", err)
		return
	}

	slog.Warn("rabbit connection closed, attempting to reconnect", "error", err)

	b.connLock.Lock()
	defer b.connLock.Unlock()

	b.channel = nil
	b.conn = nil
	for {
		if b.connect() == nil {
			slog.Info("successfully reconnected to rabbitmq.")
			return
		}
		time.Sleep(RetryDelay * 10)
	}
}

func (b *RabbitMQBus) Publish(ctx context.Context, topic string, body []byte) error {
	b.connLock.RLock()
	defer b.connLock.RUnlock()

	if b.channel == nil || b.channel.IsClosed() {
		return fmt.Errorf("%w: rabbitmq connection is closed", types.ErrDispatch)
	}

	err := b.channel.PublishWithContext(ctx,
		PredictExchange,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		slog.Error("failed to publish task, potential connection issue", "topic", topic, "error", err)
		return fmt.Errorf("%w: failed to publish %s: %v", types.ErrDispatch, topic, err)
	}
	return nil
}

// Request uses rabbitmq direct reply-to, so the reply consumer must live on
// the same channel as the publish.
func (b *RabbitMQBus) Request(ctx context.Context, topic string, body []byte, timeout time.Duration) ([]byte, error) {
	b.connLock.RLock()
	conn := b.conn
	b.connLock.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("%w: rabbitmq connection is closed", types.ErrDispatch)
	}

	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open rabbitmq channel: %v", types.ErrDispatch, err)
	}
	defer channel.Close()

	replies, err := channel.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to consume replies: %v", types.ErrDispatch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	correlationId := uuid.NewString()
	err = channel.PublishWithContext(ctx,
		PredictExchange,
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationId,
			ReplyTo:       directReplyTo,
			Expiration:    strconv.FormatInt(timeout.Milliseconds(), 10),
			Body:          body,
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(topic, timeout)
		}
		return nil, fmt.Errorf("%w: failed to publish %s: %v", types.ErrDispatch, topic, err)
	}

	for {
		select {
		case d, ok := <-replies:
			if !ok {
				return nil, fmt.Errorf("%w: reply channel closed", types.ErrDispatch)
			}
			if d.CorrelationId == correlationId {
				return d.Body, nil
			}
		case <-ctx.Done():
			return nil, timeoutError(topic, timeout)
		}
	}
}

func (b *RabbitMQBus) Subscribe(topics ...string) (Reciever, error) {
	r, err := NewRabbitMQReceiver(b.url, b.prefetch, topics)
	if err != nil {
		return nil, err
	}

	b.connLock.Lock()
	b.recievers = append(b.recievers, r)
	b.connLock.Unlock()

	return r, nil
}

func (b *RabbitMQBus) Close() {
	b.destructor.Do(func() {
		b.connLock.Lock()
		defer b.connLock.Unlock()

		for _, r := range b.recievers {
			r.closeConn()
		}
		if b.conn != nil {
			if err := b.conn.Close(); err != nil {
				slog.Error("error closing rabbitmq connection", "error", err)
			}
		}
	})
}

type RabbitMQTask struct {
	d       amqp.Delivery
	channel *amqp.Channel
}

func (t *RabbitMQTask) Type() string {
	return t.d.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.d.Body
}

func (t *RabbitMQTask) Respond(ctx context.Context, body []byte) error {
	if t.d.ReplyTo == "" {
		return ErrNoReplyAddress
	}
	return t.channel.PublishWithContext(ctx,
		"", // default exchange
		t.d.ReplyTo,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: t.d.CorrelationId,
			Body:          body,
		})
}

func (t *RabbitMQTask) Ack() error {
	return t.d.Ack(false)
}

func (t *RabbitMQTask) Reject() error {
	return t.d.Reject(false)
}

type RabbitMQReceiver struct {
	tasks    chan Task
	url      string
	prefetch int
	topics   []string
	stop     chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	conn         *amqp.Connection
	channel      *amqp.Channel
	consumerTags []string
	consumers    sync.WaitGroup
}

func NewRabbitMQReceiver(rabbitMQURL string, prefetch int, topics []string) (*RabbitMQReceiver, error) {
	c := &RabbitMQReceiver{
		tasks:    make(chan Task),
		url:      rabbitMQURL,
		prefetch: prefetch,
		topics:   topics,
		stop:     make(chan struct{}),
	}

	if err := c.receiveTasks(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RabbitMQReceiver) consume(msgs <-chan amqp.Delivery, channel *amqp.Channel) {
	defer c.consumers.Done()
	for d := range msgs {
		c.tasks <- &RabbitMQTask{d: d, channel: channel}
	}
}

func (c *RabbitMQReceiver) receiveTasks() error {
	conn, err := connectToRabbitMQ(c.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open rabbitmq channel", "error", err)
		conn.Close()
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := channel.Qos(c.prefetch, 0, false); err != nil {
		slog.Error("failed to set channel qos", "error", err)
		conn.Close()
		return fmt.Errorf("failed to set channel qos: %w", err)
	}

	if err := declareExchange(channel); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stop:
		conn.Close()
		return nil
	default:
	}

	c.consumerTags = c.consumerTags[:0]
	for _, topic := range c.topics {
		if _, err := channel.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("failed to declare rabbitmq queue %s: %w", topic, err)
		}
		if err := channel.QueueBind(topic, topic, PredictExchange, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("failed to bind rabbitmq queue %s: %w", topic, err)
		}

		tag := fmt.Sprintf("%s-%s", topic, uuid.NewString())
		msgs, err := channel.Consume(topic, tag, false, false, false, false, nil)
		if err != nil {
			slog.Error("failed to consume from rabbitmq queue", "queue", topic, "error", err)
			conn.Close()
			return fmt.Errorf("failed to consume from rabbitmq queue %s: %w", topic, err)
		}
		c.consumerTags = append(c.consumerTags, tag)

		c.consumers.Add(1)
		go c.consume(msgs, channel)
	}

	c.conn = conn
	c.channel = channel

	go c.handleReconnect(channel)

	return nil
}

func (c *RabbitMQReceiver) handleReconnect(channel *amqp.Channel) {
	notifyClose := make(chan *amqp.Error, 1)
	channel.NotifyClose(notifyClose)

	select {
	case err, ok := <-notifyClose:
		if !ok {
			slog.Info("rabbitmq connection closed", "error", err)
			return
		}

		slog.Warn("rabbit connection closed, attempting to reconnect", "error", err)

		for {
			select {
			case <-c.stop:
				return
			default:
			}
			if c.receiveTasks() == nil {
				slog.Info("successfully restarted rabbitmq consumer")
				return
			}
			time.Sleep(RetryDelay * 10)
		}
	case <-c.stop:
		slog.Info("stopping rabbitmq consumer")
		return
	}
}

func (c *RabbitMQReceiver) Tasks() <-chan Task {
	return c.tasks
}

// Close cancels the consumers. The connection stays open so in flight tasks
// can still be acked, it is released by RabbitMQBus.Close.
func (c *RabbitMQReceiver) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		if c.channel != nil {
			for _, tag := range c.consumerTags {
				if err := c.channel.Cancel(tag, false); err != nil {
					slog.Error("error cancelling rabbitmq consumer", "consumer", tag, "error", err)
				}
			}
		}
		c.mu.Unlock()

		go func() {
			c.consumers.Wait()
			close(c.tasks)
		}()
	})
}

func (c *RabbitMQReceiver) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq conn", "error", err)
		}
	}
}
