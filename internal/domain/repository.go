package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с начальными записями журнала.
	// Возвращает ErrInvoiceConflict, если invoice id уже занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его
	// нет либо он мягко удалён.
	Get(ctx context.Context, id string) (Order, error)
	// GetByInvoice возвращает заказ по номеру invoice.
	GetByInvoice(ctx context.Context, invoiceID string) (Order, error)
	// ListByUser возвращает заказы покупателя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// при несовпадении версии возвращает ErrOrderVersionConflict.
	Save(ctx context.Context, order Order) error
	// AppendLog добавляет запись в журнал переходов заказа.
	AppendLog(ctx context.Context, log OrderLog) error
}

// ProductRepository описывает требования к хранилищу товаров.
// Счётчики стока изменяются только через InventoryLedger.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
}

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
}
