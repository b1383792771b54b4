package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

func newTestOutboxPublisher(t *testing.T, topic string) (domain.OutboxPublisher, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	return NewOutboxPublisher(producer, topic), mockProducer
}

func TestOutboxPublisher_PublishEnvelope(t *testing.T) {
	t.Parallel()

	publisher, mockProducer := newTestOutboxPublisher(t, TopicOrderEvents)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			t.Errorf("envelope must decode: %v", err)
			return nil
		}
		if envelope.ID != "outbox-1" || envelope.EventType != "order.paid" {
			t.Errorf("unexpected envelope: %+v", envelope)
		}
		if string(envelope.Payload) != `{"status":"paid"}` {
			t.Errorf("payload must pass through unchanged: %s", envelope.Payload)
		}
		if envelope.PublishedAt.IsZero() {
			t.Error("expected published_at to be set")
		}
		return nil
	})

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.paid",
		Payload:       []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_EmptyTopicDefaultsToOrderEvents(t *testing.T) {
	t.Parallel()

	publisher, _ := newTestOutboxPublisher(t, "")
	topicPublisher, ok := publisher.(*OutboxTopicPublisher)
	if !ok {
		t.Fatalf("unexpected publisher type %T", publisher)
	}
	if topicPublisher.topic != TopicOrderEvents {
		t.Fatalf("expected default topic %s, got %s", TopicOrderEvents, topicPublisher.topic)
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	publisher, mockProducer := newTestOutboxPublisher(t, TopicOrderEvents)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-234",
		EventType:     "order.cancelled",
		Payload:       []byte(`{"status":"cancelled"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
