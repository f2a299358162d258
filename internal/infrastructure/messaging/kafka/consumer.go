package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
)

// Handler processes one consumed message.
type Handler func(ctx context.Context, msg *Message) error

// RetryConfig defines retry behaviour for failing handlers.
type RetryConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	DeadLetter      bool
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterWriter receives messages whose handler kept failing.
type DeadLetterWriter interface {
	PublishMessages(ctx context.Context, msgs ...*Message) error
}

// Consumer reads a consumer group and dispatches by topic.
type Consumer struct {
	reader ReaderInterface
	retry  RetryConfig
	logger logging.Logger

	handlers map[string]Handler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	deadLetter DeadLetterWriter
	metrics    *ConsumerMetrics
}

// NewConsumer builds a group consumer over topics. dlq may be nil, which
// drops messages after the last retry.
func NewConsumer(cfg config.KafkaConfig, topics []string, dlq DeadLetterWriter, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg, topics); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       topics,
		MinBytes:          1,
		MaxBytes:          10 * 1024 * 1024,
		MaxWait:           time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       kafka.FirstOffset,
		Dialer: &kafka.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
	retry := RetryConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		DeadLetter:   cfg.EnableDLQ && dlq != nil,
	}
	return newConsumer(reader, retry, dlq, logger), nil
}

func newConsumer(r ReaderInterface, retry RetryConfig, dlq DeadLetterWriter, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if retry.RetryBackoff <= 0 {
		retry.RetryBackoff = time.Second
	}
	if retry.MaxRetryBackoff <= 0 {
		retry.MaxRetryBackoff = 30 * time.Second
	}
	return &Consumer{
		reader:     r,
		retry:      retry,
		logger:     logger,
		handlers:   make(map[string]Handler),
		deadLetter: dlq,
		metrics:    &ConsumerMetrics{},
	}
}

// Subscribe registers handler for topic.
func (c *Consumer) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("Subscribed to topic", logging.String("topic", topic))
}

// Start launches the consume loop. It returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("Kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.MessagesConsumed.Add(1)

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("No handler for topic", logging.String("topic", m.Topic))
		} else if err := c.processMessage(ctx, msg, handler); err != nil {
			// context cancelled mid-retry; leave the offset for the next owner
			return
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err))
		}
	}
}

// processMessage runs handler with exponential backoff retries. Validation
// failures are permanent and skip the retries. It only returns an error when
// ctx ends before the message is settled.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler Handler) error {
	err := handler(ctx, msg)
	attempts := 1
	backoff := c.retry.RetryBackoff
	for err != nil && !errors.IsValidation(err) && attempts <= c.retry.MaxRetries {
		c.metrics.MessagesRetried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		err = handler(ctx, msg)
		attempts++
		backoff *= 2
		if backoff > c.retry.MaxRetryBackoff {
			backoff = c.retry.MaxRetryBackoff
		}
	}
	if err == nil {
		c.metrics.MessagesProcessed.Add(1)
		return nil
	}

	c.metrics.MessagesFailed.Add(1)
	c.logger.Error("Message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))

	if c.retry.DeadLetter && c.deadLetter != nil {
		headers := make(map[string]string, len(msg.Headers)+3)
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers[HeaderOriginalTopic] = msg.Topic
		headers[HeaderError] = err.Error()
		headers[HeaderAttempts] = strconv.Itoa(attempts)
		dl := &Message{
			Topic:   DeadLetterTopic(msg.Topic),
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: headers,
		}
		if dlErr := c.deadLetter.PublishMessages(ctx, dl); dlErr != nil {
			c.logger.Error("Failed to send to dead letter queue", logging.Err(dlErr))
			return nil
		}
		c.metrics.MessagesDeadLettered.Add(1)
	}
	return nil
}

// Stats returns consumed, processed, failed and dead-lettered counts.
func (c *Consumer) Stats() (consumed, processed, failed, deadLettered int64) {
	return c.metrics.MessagesConsumed.Load(),
		c.metrics.MessagesProcessed.Load(),
		c.metrics.MessagesFailed.Load(),
		c.metrics.MessagesDeadLettered.Load()
}

// Close stops the loop and closes the reader. It is idempotent.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed", logging.Int64("consumed", c.metrics.MessagesConsumed.Load()))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// ValidateConsumerConfig checks the settings the reader needs.
func ValidateConsumerConfig(cfg config.KafkaConfig, topics []string) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "group_id required")
	}
	if len(topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "max_retries must be >= 0")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

// DeliveryRecorder records reminder delivery acknowledgements.
type DeliveryRecorder interface {
	HandleReminderDelivered(ctx context.Context, d app.ReminderDelivery) error
}

// ReminderDeliveredHandler decodes delivery envelopes and forwards them to
// rec. A missing delivery time defaults to the envelope timestamp.
func ReminderDeliveredHandler(rec DeliveryRecorder) Handler {
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			return err
		}
		var d app.ReminderDelivery
		if err := env.DecodePayload(&d); err != nil {
			return err
		}
		if d.DeliveredAt.IsZero() {
			d.DeliveredAt = env.Timestamp
		}
		return rec.HandleReminderDelivered(ctx, d)
	}
}

//Personal.AI order the ending
