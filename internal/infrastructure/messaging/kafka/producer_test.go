package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ComplyTrack/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func completedEvent() app.Event {
	return app.Event{
		Type:           app.EventInstanceCompleted,
		OrganizationID: "org-1",
		Key:            "inst-1",
		OccurredAt:     time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		Payload:        app.InstancePayload{InstanceID: "inst-1", Title: "Fire drill", DueDate: "2024-06-30"},
	}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"localhost:9092"}}))
	assert.Error(t, ValidateProducerConfig(config.KafkaConfig{}))
	assert.Error(t, ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"b"}, MaxRetries: -1}))
}

func TestNewProducer_RejectsMissingBrokers(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{}, nil)
	assert.Nil(t, p)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestPublish_WrapsEventsInEnvelope(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newProducer(w, "comply.", "complytrack", logging.NewNopLogger())

	require.NoError(t, p.Publish(context.Background(), completedEvent()))
	require.Len(t, w.written, 1)

	got := w.written[0]
	assert.Equal(t, "comply.obligation.instance.completed", got.Topic)
	assert.Equal(t, "inst-1", string(got.Key))
	assert.Equal(t, "obligation.instance.completed", headerValue(got, HeaderEventType))
	assert.Equal(t, "org-1", headerValue(got, HeaderOrganization))

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(got.Value, &env))
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, "complytrack", env.Source)
	assert.NotEmpty(t, env.EventID)

	var payload app.InstancePayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "Fire drill", payload.Title)

	sent, failed, _ := p.GetMetrics()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
}

func TestPublish_NoEventsIsNoop(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newProducer(w, "", "x", logging.NewNopLogger())
	require.NoError(t, p.Publish(context.Background()))
	assert.Empty(t, w.written)
}

func TestPublish_WriterFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker unavailable")
	}}
	p := newProducer(w, "", "x", logging.NewNopLogger())

	err := p.Publish(context.Background(), completedEvent(), completedEvent())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessageQueue))

	_, failed, _ := p.GetMetrics()
	assert.Equal(t, int64(2), failed)
}

func TestPublish_PartialWriteErrors(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		return kafka.WriteErrors{nil, errors.New("leader not available")}
	}}
	p := newProducer(w, "", "x", logging.NewNopLogger())

	require.Error(t, p.Publish(context.Background(), completedEvent(), completedEvent()))
	sent, failed, _ := p.GetMetrics()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(1), failed)
}

func TestPublishMessages_Validation(t *testing.T) {
	p := newProducer(&mockKafkaWriter{}, "", "x", logging.NewNopLogger())
	ctx := context.Background()

	assert.True(t, pkgerrors.IsValidation(p.PublishMessages(ctx, &Message{Value: []byte("v")})))
	assert.True(t, pkgerrors.IsValidation(p.PublishMessages(ctx, &Message{Topic: "t"})))
	big := make([]byte, maxMessageBytes+1)
	assert.True(t, pkgerrors.IsValidation(p.PublishMessages(ctx, &Message{Topic: "t", Value: big})))
}

func TestProducer_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newProducer(w, "", "x", logging.NewNopLogger())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), completedEvent()), ErrProducerClosed)
}

//Personal.AI order the ending
