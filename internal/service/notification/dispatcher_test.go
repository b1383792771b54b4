package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

type stubNotificationRepo struct {
	markedOrders []string
	markedEvents []string
	markErr      error
	dispatched   int
}

func (s *stubNotificationRepo) Notify(context.Context, domain.Notification) error {
	panic("not implemented")
}

func (s *stubNotificationRepo) MarkDispatched(_ context.Context, orderID, eventType string, _ time.Time) (int, error) {
	if s.markErr != nil {
		return 0, s.markErr
	}
	s.markedOrders = append(s.markedOrders, orderID)
	s.markedEvents = append(s.markedEvents, eventType)
	return s.dispatched, nil
}

func (s *stubNotificationRepo) ListByUser(context.Context, string, int) ([]domain.Notification, error) {
	panic("not implemented")
}

var _ domain.NotificationRepository = (*stubNotificationRepo)(nil)

func TestDispatcher_Handle(t *testing.T) {
	repo := &stubNotificationRepo{dispatched: 1}
	dispatcher := NewDispatcher(repo, nil, nil)

	msg := &sarama.ConsumerMessage{
		Topic: "mvshop.order.events",
		Value: []byte(`{"id":"evt-1","aggregate_id":"order-1","event_type":"order.paid","payload":{"order_id":"order-1"}}`),
	}
	if err := dispatcher.Handler()(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(repo.markedOrders) != 1 || repo.markedOrders[0] != "order-1" {
		t.Fatalf("unexpected marked orders: %v", repo.markedOrders)
	}
	if repo.markedEvents[0] != "order.paid" {
		t.Fatalf("unexpected marked events: %v", repo.markedEvents)
	}
}

func TestDispatcher_SkipsMalformedMessage(t *testing.T) {
	repo := &stubNotificationRepo{}
	dispatcher := NewDispatcher(repo, nil, nil)

	msg := &sarama.ConsumerMessage{Value: []byte("{")}
	if err := dispatcher.Handler()(context.Background(), msg); err != nil {
		t.Fatalf("malformed message must be skipped, got %v", err)
	}
	if len(repo.markedOrders) != 0 {
		t.Fatalf("malformed message must not mark notifications: %v", repo.markedOrders)
	}
}

func TestDispatcher_SkipsIncompleteEnvelope(t *testing.T) {
	repo := &stubNotificationRepo{}
	dispatcher := NewDispatcher(repo, nil, nil)

	msg := &sarama.ConsumerMessage{Value: []byte(`{"id":"evt-2"}`)}
	if err := dispatcher.Handler()(context.Background(), msg); err != nil {
		t.Fatalf("incomplete envelope must be skipped, got %v", err)
	}
	if len(repo.markedOrders) != 0 {
		t.Fatalf("incomplete envelope must not mark notifications: %v", repo.markedOrders)
	}
}

func TestDispatcher_RepoErrorPropagates(t *testing.T) {
	repo := &stubNotificationRepo{markErr: errors.New("db down")}
	dispatcher := NewDispatcher(repo, nil, nil)

	msg := &sarama.ConsumerMessage{
		Value: []byte(`{"id":"evt-3","aggregate_id":"order-3","event_type":"order.shipped"}`),
	}
	if err := dispatcher.Handler()(context.Background(), msg); err == nil {
		t.Fatal("expected repo error to propagate for redelivery")
	}
}
