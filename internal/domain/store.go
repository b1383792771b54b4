package domain

import "context"

// TxStore — набор репозиториев, привязанных к одной транзакции.
// Все операции через TxStore видят незакоммиченные изменения друг друга
// и атомарно фиксируются либо откатываются вместе.
type TxStore interface {
	Orders() OrderRepository
	Products() ProductRepository
	Users() UserRepository
	Ledger() InventoryLedger
	Outbox() OutboxEnqueuer
	Audit() AuditWriter
	Notifications() NotificationWriter
}

// UnitOfWork выполняет функцию в границах одной транзакции хранилища.
type UnitOfWork interface {
	// Within открывает транзакцию, передаёт её fn и коммитит при nil-ошибке.
	// Любая ошибка fn откатывает все изменения транзакции целиком.
	Within(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	// View выполняет fn в транзакции только для чтения.
	View(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}
