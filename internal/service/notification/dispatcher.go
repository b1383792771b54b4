package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/mvshop/internal/redisx"
)

const dedupConsumer = "notifications"

// Dispatcher отмечает уведомления отправленными по событиям заказов из
// брокера. Уведомления создаются в транзакции вместе с заказом; диспетчер
// лишь переводит их из pending в dispatched, когда событие реально ушло.
type Dispatcher struct {
	repo   domain.NotificationRepository
	rdb    *redis.Client
	logger *log.Entry
	now    func() time.Time
}

// NewDispatcher создаёт диспетчер уведомлений. Redis-клиент опционален:
// без него события обрабатываются без дедупликации.
func NewDispatcher(repo domain.NotificationRepository, rdb *redis.Client, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.New().WithField("component", "notification-dispatcher")
	}
	return &Dispatcher{
		repo:   repo,
		rdb:    rdb,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// envelope — формат сообщения, которое outbox publisher кладёт в topic.
type envelope struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
}

// Handler возвращает обработчик для Kafka consumer.
func (d *Dispatcher) Handler() kafka.MessageHandler {
	return d.handle
}

func (d *Dispatcher) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var env envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		// Битое сообщение не станет лучше при повторной доставке.
		d.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("skipping malformed event")
		return nil
	}
	if env.AggregateID == "" || env.EventType == "" {
		return nil
	}

	if d.rdb != nil {
		first, err := redisx.MarkOnce(ctx, d.rdb, redisx.DedupKey(dedupConsumer, env.ID), redisx.TTLDedup)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if !first {
			d.logger.WithField("event_id", env.ID).Debug("duplicate event, skipping")
			return nil
		}
		d.cacheOrderStatus(ctx, env)
	}

	dispatched, err := d.repo.MarkDispatched(ctx, env.AggregateID, env.EventType, d.now())
	if err != nil {
		return fmt.Errorf("mark notifications dispatched: %w", err)
	}
	if dispatched > 0 {
		d.logger.WithFields(log.Fields{
			"order_id":   env.AggregateID,
			"event_type": env.EventType,
			"dispatched": dispatched,
		}).Info("notifications dispatched")
	}
	return nil
}

// cacheOrderStatus наполняет кэш статуса заказа из потока событий.
// Ошибка кэша не блокирует обработку: endpoint статуса умеет читать
// хранилище напрямую.
func (d *Dispatcher) cacheOrderStatus(ctx context.Context, env envelope) {
	var event struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Payload, &event); err != nil || event.Status == "" {
		return
	}
	if err := redisx.CacheOrderStatus(ctx, d.rdb, env.AggregateID, event.Status); err != nil {
		d.logger.WithError(err).WithField("order_id", env.AggregateID).Debug("order status cache update failed")
	}
}
