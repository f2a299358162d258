package kafka

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

var (
	ErrProducerClosed = errors.New(errors.ErrCodeMessageQueue, "producer closed")
)

// maxMessageBytes caps a single encoded envelope.
const maxMessageBytes = 1024 * 1024

// Message is a record produced to or consumed from Kafka.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMetrics holds producer counters.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
	LastSentAt     atomic.Value // time.Time
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events. It implements the application
// EventPublisher.
type Producer struct {
	writer  WriterInterface
	prefix  string
	source  string
	logger  logging.Logger
	closed  atomic.Bool
	metrics *ProducerMetrics
}

var _ app.EventPublisher = (*Producer)(nil)

// NewProducer builds a producer from cfg.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "one":
		requiredAcks = kafka.RequireOne
	default:
		requiredAcks = kafka.RequireAll
	}

	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	}

	source := cfg.ClientID
	if source == "" {
		source = DefaultSource
	}

	writer := &kafka.Writer{
		Addr:            kafka.TCP(cfg.Brokers...),
		Balancer:        &kafka.Hash{},
		MaxAttempts:     cfg.MaxRetries + 1,
		BatchSize:       cfg.BatchSize,
		BatchTimeout:    cfg.BatchTimeout,
		WriteBackoffMin: cfg.RetryBackoff,
		RequiredAcks:    requiredAcks,
		Compression:     compression,
		Transport:       &kafka.Transport{ClientID: source, DialTimeout: 10 * time.Second},
	}

	return newProducer(writer, cfg.TopicPrefix, source, logger), nil
}

func newProducer(w WriterInterface, prefix, source string, logger logging.Logger) *Producer {
	return &Producer{
		writer:  w,
		prefix:  prefix,
		source:  source,
		logger:  logger,
		metrics: &ProducerMetrics{},
	}
}

// Publish wraps each event in an envelope and writes them in one batch. The
// event Key becomes the message key so events of one instance stay ordered.
func (p *Producer) Publish(ctx context.Context, events ...app.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*Message, 0, len(events))
	for _, e := range events {
		env, err := NewEventEnvelope(e, p.source)
		if err != nil {
			return err
		}
		msg, err := env.ToMessage(TopicFor(p.prefix, e.Type), e.Key)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.PublishMessages(ctx, msgs...)
}

// PublishMessages writes raw messages. The consumer uses it for dead
// lettering.
func (p *Producer) PublishMessages(ctx context.Context, msgs ...*Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	kMsgs := make([]kafka.Message, 0, len(msgs))
	var bytes int64
	for _, msg := range msgs {
		if msg.Topic == "" {
			return errors.New(errors.ErrCodeValidation, "topic required")
		}
		if len(msg.Value) == 0 {
			return errors.New(errors.ErrCodeValidation, "value required")
		}
		if len(msg.Value) > maxMessageBytes {
			return errors.New(errors.ErrCodeValidation, "message too large").WithDetailf("topic=%s", msg.Topic)
		}
		kMsgs = append(kMsgs, toKafkaMessage(msg))
		bytes += int64(len(msg.Value))
	}
	if len(kMsgs) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, kMsgs...); err != nil {
		failed := len(kMsgs)
		var writeErrs kafka.WriteErrors
		if stderrors.As(err, &writeErrs) {
			failed = writeErrs.Count()
		}
		p.metrics.MessagesFailed.Add(int64(failed))
		p.metrics.MessagesSent.Add(int64(len(kMsgs) - failed))
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "publish failed").WithDetailf("failed=%d of %d", failed, len(kMsgs))
	}

	p.metrics.MessagesSent.Add(int64(len(kMsgs)))
	p.metrics.BytesSent.Add(bytes)
	p.metrics.LastSentAt.Store(time.Now())

	p.logger.Debug("Messages published",
		logging.Int("count", len(kMsgs)),
		logging.Duration("latency", time.Since(start)))
	return nil
}

// GetMetrics returns a snapshot of the counters.
func (p *Producer) GetMetrics() (sent, failed, bytes int64) {
	return p.metrics.MessagesSent.Load(), p.metrics.MessagesFailed.Load(), p.metrics.BytesSent.Load()
}

// Close flushes and closes the writer. It is idempotent.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("Kafka producer closed", logging.Int64("sent", p.metrics.MessagesSent.Load()))
	return err
}

func toKafkaMessage(msg *Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

// ValidateProducerConfig checks the settings the writer needs.
func ValidateProducerConfig(cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "max_retries must be >= 0")
	}
	return nil
}

//Personal.AI order the ending
