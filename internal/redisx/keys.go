package redisx

import (
	"fmt"
	"time"
)

const (
	// Дедупликация обработки событий: dedup:{consumer}:{event_id}
	keyDedup = "dedup:%s:%s"

	// Кэш статуса заказа: order_status:{order_id}
	keyOrderStatus = "order_status:%s"
)

var (
	// TTLDedup — срок жизни пометки об обработанном событии.
	TTLDedup = 48 * time.Hour
	// TTLStatusCache — срок жизни кэша статуса заказа.
	TTLStatusCache = 5 * time.Minute
)

// DedupKey возвращает ключ дедупликации события для данного потребителя.
func DedupKey(consumer, eventID string) string {
	return fmt.Sprintf(keyDedup, consumer, eventID)
}

// OrderStatusKey возвращает ключ кэша статуса заказа.
func OrderStatusKey(orderID string) string {
	return fmt.Sprintf(keyOrderStatus, orderID)
}
