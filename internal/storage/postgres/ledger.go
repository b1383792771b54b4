package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// ledger — InventoryLedger поверх условных UPDATE. Проверка достаточности
// и мутация счётчиков выполняются одним оператором: конкурирующие
// транзакции сериализуются блокировкой строки, overselling исключён
// на уровне базы.
type ledger struct {
	q queryer
}

// NewLedger создаёт леджер поверх пула подключений, вне UnitOfWork.
func NewLedger(store *Store) domain.InventoryLedger {
	return &ledger{q: store.DB()}
}

func (l *ledger) Reserve(ctx context.Context, productID string, qty int32) (bool, error) {
	return l.conditional(ctx, productID, `
		UPDATE products
		SET stock = stock - $2,
		    reserved = reserved + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock >= $2
	`, qty, "reserve stock")
}

func (l *ledger) Commit(ctx context.Context, productID string, qty int32) error {
	ok, err := l.conditional(ctx, productID, `
		UPDATE products
		SET reserved = reserved - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND reserved >= $2
	`, qty, "commit reserved stock")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("commit %d units of %s: reserved counter too low", qty, productID)
	}
	return nil
}

func (l *ledger) Release(ctx context.Context, productID string, qty int32) error {
	ok, err := l.conditional(ctx, productID, `
		UPDATE products
		SET stock = stock + $2,
		    reserved = reserved - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND reserved >= $2
	`, qty, "release reserved stock")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release %d units of %s: reserved counter too low", qty, productID)
	}
	return nil
}

func (l *ledger) DebitImmediate(ctx context.Context, productID string, qty int32) (bool, error) {
	return l.conditional(ctx, productID, `
		UPDATE products
		SET stock = stock - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock >= $2
	`, qty, "debit stock")
}

func (l *ledger) Restore(ctx context.Context, productID string, qty int32) error {
	res, err := l.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// conditional выполняет условный UPDATE и различает «условие не выполнено»
// и «товара нет»: нулевой RowsAffected требует дополнительной проверки.
func (l *ledger) conditional(ctx context.Context, productID, query string, qty int32, op string) (bool, error) {
	res, err := l.q.ExecContext(ctx, query, productID, qty)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var id string
	err = l.q.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrProductNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return false, nil
}

var _ domain.InventoryLedger = (*ledger)(nil)
