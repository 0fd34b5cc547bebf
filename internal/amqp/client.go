// Package amqp publishes and consumes ledger events over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/ledger"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	maxRetries     = 3
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrDeliveriesClosed means the broker closed the consumer channel.
	ErrDeliveriesClosed = errors.New("message channel closed")
)

// Client is a ledger.EventPublisher backed by a durable direct exchange.
// The connection is re-dialed on demand after it drops.
type Client struct {
	url          string
	exchangeName string
	routingKey   string
	queueName    string
	// transient clients consume from a broker-named exclusive queue that
	// gets its own copy of every event and disappears with the connection.
	transient bool

	backoff func(attempt int) time.Duration

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

var _ ledger.EventPublisher = (*Client)(nil)

// NewClient connects to the broker and declares the durable work queue
// queueName. Events are routed with queueName as the key.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	return dial(&Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   queueName,
		queueName:    queueName,
		backoff:      exponentialBackoff,
	})
}

// NewSubscriber connects a consumer that receives every event routed with
// routingKey alongside the work queue consumers, without taking messages
// from them. Used by processes that only react to events, such as cache
// invalidation in the API.
func NewSubscriber(url, exchangeName, routingKey string) (*Client, error) {
	return dial(&Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		transient:    true,
		backoff:      exponentialBackoff,
	})
}

func dial(c *Client) (*Client, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, channel

	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	name := c.queueName
	if c.transient {
		name = ""
	}
	q, err := c.channel.QueueDeclare(
		name,         // name, broker-assigned when empty
		!c.transient, // durable
		c.transient,  // delete when unused
		c.transient,  // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.queueName = q.Name

	if err := c.channel.QueueBind(c.queueName, c.routingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish sends e to the exchange, reconnecting with backoff on connection errors.
func (c *Client) Publish(ctx context.Context, e ledger.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", e.Kind, ErrCircuitOpen)
	}

	body, err := NewLedgerEventMessage(e).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publishOnce(ctx, body)
		if lastErr == nil {
			c.recordSuccess()
			slog.DebugContext(ctx, "Published ledger event",
				"kind", e.Kind,
				"exchange", c.exchangeName,
				"routing_key", c.routingKey)
			return nil
		}
		if !isConnectionError(lastErr) {
			break
		}
		slog.WarnContext(ctx, "AMQP connection lost, retrying",
			"attempt", attempt+1,
			"error", lastErr)
	}

	c.recordFailure()
	return fmt.Errorf("publish %s: %w", e.Kind, lastErr)
}

func (c *Client) publishOnce(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeEvents delivers events to handler until ctx is done. Messages that
// cannot be decoded are dropped; handler errors requeue the message. A lost
// connection is re-dialed with backoff and the subscription resumed.
func (c *Client) ConsumeEvents(ctx context.Context, handler func(context.Context, ledger.Event) error) error {
	return c.consumeLoop(ctx, func(ctx context.Context) error {
		return c.consumeSession(ctx, handler)
	})
}

// consumeLoop restarts session until ctx is done. A session that ran long
// enough to deliver resets the backoff.
func (c *Client) consumeLoop(ctx context.Context, session func(context.Context) error) error {
	backoff := c.backoff
	if backoff == nil {
		backoff = exponentialBackoff
	}
	attempt := 0
	for {
		started := time.Now()
		err := session(ctx)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if time.Since(started) > maxBackoff {
			attempt = 0
		}
		wait := backoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer interrupted, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"retry_in", wait)
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeSession(ctx context.Context, handler func(context.Context, ledger.Event) error) error {
	c.mu.Lock()
	if err := c.connectLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	channel, queue := c.channel, c.queueName
	c.mu.Unlock()

	msgs, err := channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger events", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, ledger.Event) error) {
	msg, err := LedgerEventMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
		delivery.Nack(false, false)
		return
	}
	event, err := msg.Event()
	if err != nil {
		slog.ErrorContext(ctx, "Dropping malformed ledger event", "kind", msg.Kind, "error", err)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to handle ledger event",
			"kind", event.Kind,
			"error", err)
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
	slog.DebugContext(ctx, "Processed ledger event", "kind", event.Kind)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", atomic.LoadInt64(&c.failureCount))
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "closed network connection", "dial AMQP"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
