// Package kafka publishes obligation domain events to Kafka and consumes
// reminder delivery acknowledgements from the notification service.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// Topic suffixes. The configured prefix is prepended to each.
const (
	TopicReminderDelivered = "obligation.reminder.delivered"
	DeadLetterSuffix       = ".dlq"

	// SchemaVersion is stamped on every envelope.
	SchemaVersion = "v1"
	// DefaultSource identifies this service as the event producer.
	DefaultSource = "complytrack"
)

// Header keys.
const (
	HeaderEventType     = "event_type"
	HeaderSource        = "source_service"
	HeaderSchemaVersion = "schema_version"
	HeaderOrganization  = "organization_id"
	HeaderOriginalTopic = "original_topic"
	HeaderError         = "error_message"
	HeaderAttempts      = "attempts"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(prefix string, t app.EventType) string {
	return prefix + string(t)
}

// DeadLetterTopic returns the dead-letter topic for topic.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}

// ─────────────────────────────────────────────────────────────────────────────
// Envelope
// ─────────────────────────────────────────────────────────────────────────────

// EventEnvelope is the wire format of every message on obligation topics.
type EventEnvelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Source         string          `json:"source"`
	OrganizationID string          `json:"organization_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	SchemaVersion  string          `json:"schema_version"`
	Payload        json.RawMessage `json:"payload"`
}

// NewEventEnvelope wraps a domain event.
func NewEventEnvelope(e app.Event, source string) (*EventEnvelope, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &EventEnvelope{
		EventID:        uuid.New().String(),
		EventType:      string(e.Type),
		Source:         source,
		OrganizationID: e.OrganizationID,
		Timestamp:      ts.UTC(),
		SchemaVersion:  SchemaVersion,
		Payload:        data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An empty payload is an
// error.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "malformed payload")
	}
	return nil
}

// ToMessage renders the envelope as a producer message on topic.
func (e *EventEnvelope) ToMessage(topic string, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	headers := map[string]string{
		HeaderEventType:     e.EventType,
		HeaderSource:        e.Source,
		HeaderSchemaVersion: e.SchemaVersion,
	}
	if e.OrganizationID != "" {
		headers[HeaderOrganization] = e.OrganizationID
	}
	return &Message{
		Topic:     topic,
		Key:       []byte(key),
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope decodes a consumed message.
func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Topic administration
// ─────────────────────────────────────────────────────────────────────────────

// TopicConfig describes a topic to provision.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager provisions the engine's topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// CreateTopic creates cfg unless it already exists.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "NumPartitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "ReplicationFactor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10),
		})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to create topic").WithDetailf("topic=%s", cfg.Name)
	}
	m.logger.Info("Topic created", logging.String("topic", cfg.Name))
	return nil
}

// TopicExists reports whether name has partitions. Lookup errors read as
// absent.
func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// EnsureTopics creates every topic in topics.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// Ping succeeds when at least one broker accepts a connection.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return errors.Wrap(lastErr, errors.ErrCodeMessageQueue, "no kafka broker reachable")
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

const day = int64(24 * 3600 * 1000)

// DefaultTopics lists every topic the engine produces to or consumes from,
// each with its dead-letter companion where a consumer exists.
func DefaultTopics(prefix string) []TopicConfig {
	delivered := prefix + TopicReminderDelivered
	return []TopicConfig{
		{Name: TopicFor(prefix, app.EventInstanceCreated), NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 7 * day},
		{Name: TopicFor(prefix, app.EventInstanceCompleted), NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 30 * day},
		{Name: TopicFor(prefix, app.EventInstanceCancelled), NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
		{Name: TopicFor(prefix, app.EventInstancesOverdue), NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
		{Name: TopicFor(prefix, app.EventReminderDue), NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 3 * day},
		{Name: delivered, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 3 * day},
		{Name: DeadLetterTopic(delivered), NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
	}
}

//Personal.AI order the ending
