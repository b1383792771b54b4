package domain

import (
	"context"
	"time"
)

// InventoryLedger — атомарные условные операции над счётчиками стока товара.
// Каждая операция выполняется одним условным изменением в хранилище:
// проверка достаточности и мутация неразделимы, отдельного чтения-потом-записи нет.
type InventoryLedger interface {
	// Reserve переносит qty единиц из stock в reserved.
	// Возвращает false без ошибки, если доступного стока не хватает.
	Reserve(ctx context.Context, productID string, qty int32) (bool, error)
	// Commit списывает qty из reserved: удержание становится продажей.
	Commit(ctx context.Context, productID string, qty int32) error
	// Release возвращает qty из reserved обратно в stock.
	Release(ctx context.Context, productID string, qty int32) error
	// DebitImmediate списывает qty напрямую из stock, минуя reserved.
	// Возвращает false без ошибки, если стока не хватает.
	DebitImmediate(ctx context.Context, productID string, qty int32) (bool, error)
	// Restore возвращает qty в stock без изменения reserved.
	Restore(ctx context.Context, productID string, qty int32) error
}

// PaymentIntent — намерение оплаты, созданное у провайдера.
type PaymentIntent struct {
	IntentID    string
	InvoiceID   string
	AmountMinor int64
	Currency    string
	RedirectURL string
}

// RefundResult — результат запроса возврата у провайдера.
type RefundResult struct {
	RefundID    string
	AmountMinor int64
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// CreateIntent инициирует платёж по заказу у провайдера.
	CreateIntent(ctx context.Context, invoiceID string, amountMinor int64, currency string) (PaymentIntent, error)
	// Refund инициирует возврат средств по подтверждённой транзакции.
	Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) (RefundResult, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxEnqueuer сохраняет событие в outbox в рамках текущей транзакции.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository позволяет сохранять события и управлять их публикацией.
type OutboxRepository interface {
	OutboxEnqueuer
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// AuditWriter пишет записи аудита в рамках текущей транзакции.
type AuditWriter interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NotificationWriter создаёт уведомление в рамках текущей транзакции.
type NotificationWriter interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationRepository — полный доступ к уведомлениям вне транзакции заказа.
type NotificationRepository interface {
	NotificationWriter
	// MarkDispatched помечает отправленными все pending-уведомления
	// заказа с данным типом события. Возвращает число затронутых записей.
	MarkDispatched(ctx context.Context, orderID, eventType string, at time.Time) (int, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
