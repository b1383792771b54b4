package domain

import "time"

// NotificationStatus — статус доставки уведомления пользователю.
type NotificationStatus string

const (
	// NotificationStatusPending — уведомление создано, но не отправлено.
	NotificationStatusPending NotificationStatus = "pending"
	// NotificationStatusDispatched — уведомление передано каналу доставки.
	NotificationStatusDispatched NotificationStatus = "dispatched"
)

// Notification — уведомление покупателю о событии заказа.
// Создаётся в транзакции вместе с изменением заказа, отправляется
// асинхронно диспетчером по событиям из брокера.
type Notification struct {
	ID           string
	UserID       string
	OrderID      string
	EventType    string
	Message      string
	Status       NotificationStatus
	CreatedAt    time.Time
	DispatchedAt *time.Time
}
