package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// ledger — InventoryLedger поверх счётчиков товара в рабочей копии состояния.
// Проверка и мутация атомарны: вся транзакция выполняется под мьютексом Store.
type ledger struct {
	st *state
}

func (l *ledger) Reserve(ctx context.Context, productID string, qty int32) (bool, error) {
	p, ok := l.st.products[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.Reserved += qty
	l.st.products[productID] = p
	return true, nil
}

func (l *ledger) Commit(ctx context.Context, productID string, qty int32) error {
	p, ok := l.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Reserved < qty {
		return fmt.Errorf("commit %d units of %s: reserved only %d", qty, productID, p.Reserved)
	}
	p.Reserved -= qty
	l.st.products[productID] = p
	return nil
}

func (l *ledger) Release(ctx context.Context, productID string, qty int32) error {
	p, ok := l.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Reserved < qty {
		return fmt.Errorf("release %d units of %s: reserved only %d", qty, productID, p.Reserved)
	}
	p.Reserved -= qty
	p.Stock += qty
	l.st.products[productID] = p
	return nil
}

func (l *ledger) DebitImmediate(ctx context.Context, productID string, qty int32) (bool, error) {
	p, ok := l.st.products[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	l.st.products[productID] = p
	return true, nil
}

func (l *ledger) Restore(ctx context.Context, productID string, qty int32) error {
	p, ok := l.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += qty
	l.st.products[productID] = p
	return nil
}

var _ domain.InventoryLedger = (*ledger)(nil)
