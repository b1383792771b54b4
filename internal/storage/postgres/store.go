package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// queryer — общий интерфейс *sql.DB и *sql.Tx: репозитории работают
// одинаково внутри транзакции UnitOfWork и напрямую с пулом подключений.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Within выполняет fn в одной SQL-транзакции: все репозитории TxStore
// разделяют её, ошибка fn откатывает изменения целиком.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	return s.within(ctx, &sql.TxOptions{}, fn)
}

// View выполняет fn в транзакции только для чтения.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.TxStore) error) error {
	return s.within(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) within(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx domain.TxStore) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, &txStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)

// txStore отдаёт репозитории, привязанные к открытой транзакции.
type txStore struct {
	q queryer
}

func (t *txStore) Orders() domain.OrderRepository     { return &orderRepository{q: t.q} }
func (t *txStore) Products() domain.ProductRepository { return &productRepository{q: t.q} }
func (t *txStore) Users() domain.UserRepository       { return &userRepository{q: t.q} }
func (t *txStore) Ledger() domain.InventoryLedger     { return &ledger{q: t.q} }
func (t *txStore) Outbox() domain.OutboxEnqueuer      { return &outboxRepository{q: t.q} }
func (t *txStore) Audit() domain.AuditWriter          { return &auditWriter{q: t.q} }
func (t *txStore) Notifications() domain.NotificationWriter {
	return &notificationRepository{q: t.q}
}

var _ domain.TxStore = (*txStore)(nil)
