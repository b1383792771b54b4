package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// outboxRow — запись outbox с метаданными доставки.
type outboxRow struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// state — полное состояние in-memory хранилища.
type state struct {
	users           map[string]domain.User
	products        map[string]domain.Product
	orders          map[string]domain.Order
	ordersByInvoice map[string]string
	logs            map[string][]domain.OrderLog
	outbox          []outboxRow
	audit           []domain.AuditEntry
	notifications   []domain.Notification
}

func newState() *state {
	return &state{
		users:           make(map[string]domain.User),
		products:        make(map[string]domain.Product),
		orders:          make(map[string]domain.Order),
		ordersByInvoice: make(map[string]string),
		logs:            make(map[string][]domain.OrderLog),
	}
}

// clone возвращает глубокую копию состояния: транзакция работает с копией,
// и до коммита исходное состояние не видит её изменений.
func (s *state) clone() *state {
	c := &state{
		users:           make(map[string]domain.User, len(s.users)),
		products:        make(map[string]domain.Product, len(s.products)),
		orders:          make(map[string]domain.Order, len(s.orders)),
		ordersByInvoice: make(map[string]string, len(s.ordersByInvoice)),
		logs:            make(map[string][]domain.OrderLog, len(s.logs)),
		outbox:          make([]outboxRow, len(s.outbox)),
		audit:           make([]domain.AuditEntry, len(s.audit)),
		notifications:   make([]domain.Notification, len(s.notifications)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		v.Logs = append([]domain.OrderLog(nil), v.Logs...)
		c.orders[k] = v
	}
	for k, v := range s.ordersByInvoice {
		c.ordersByInvoice[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = append([]domain.OrderLog(nil), v...)
	}
	copy(c.outbox, s.outbox)
	copy(c.audit, s.audit)
	copy(c.notifications, s.notifications)
	return c
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции выполняются последовательно под общим мьютексом: fn получает
// копию состояния, и только успешный возврат подменяет исходное состояние.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Within выполняет fn в границах транзакции. Ошибка fn откатывает
// все изменения: рабочая копия состояния просто отбрасывается.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, &txStore{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// View выполняет fn над копией состояния: изменения никогда не сохраняются.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &txStore{st: s.st.clone()})
}

var _ domain.UnitOfWork = (*Store)(nil)

// txStore — репозитории одной транзакции. Работают с рабочей копией
// состояния без блокировок: транзакции сериализованы мьютексом Store.
type txStore struct {
	st *state
}

func (t *txStore) Orders() domain.OrderRepository        { return &orderRepo{st: t.st} }
func (t *txStore) Products() domain.ProductRepository    { return &productRepo{st: t.st} }
func (t *txStore) Users() domain.UserRepository          { return &userRepo{st: t.st} }
func (t *txStore) Ledger() domain.InventoryLedger        { return &ledger{st: t.st} }
func (t *txStore) Outbox() domain.OutboxEnqueuer         { return &outboxEnqueuer{st: t.st} }
func (t *txStore) Audit() domain.AuditWriter             { return &auditWriter{st: t.st} }
func (t *txStore) Notifications() domain.NotificationWriter {
	return &notificationWriter{st: t.st}
}

var _ domain.TxStore = (*txStore)(nil)
