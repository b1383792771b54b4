package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// orderRepo — реализация OrderRepository поверх рабочей копии состояния.
type orderRepo struct {
	st *state
}

// Create сохраняет новый заказ вместе с начальным журналом.
// Уникальность invoice id обеспечивается индексом ordersByInvoice.
func (r *orderRepo) Create(ctx context.Context, order domain.Order) error {
	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := r.st.ordersByInvoice[order.InvoiceID]; exists {
		return domain.ErrInvoiceConflict
	}

	logs := append([]domain.OrderLog(nil), order.Logs...)
	r.st.orders[order.ID] = order
	r.st.ordersByInvoice[order.InvoiceID] = order.ID
	r.st.logs[order.ID] = logs
	return nil
}

// Get возвращает заказ или ErrOrderNotFound. Мягко удалённые заказы скрыты.
func (r *orderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok || order.IsDeleted {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Logs = append([]domain.OrderLog(nil), r.st.logs[id]...)
	return order, nil
}

// GetByInvoice возвращает заказ по номеру invoice.
func (r *orderRepo) GetByInvoice(ctx context.Context, invoiceID string) (domain.Order, error) {
	id, ok := r.st.ordersByInvoice[invoiceID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.Get(ctx, id)
}

// ListByUser возвращает заказы покупателя, новые первыми.
func (r *orderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if order.UserID != userID || order.IsDeleted {
			continue
		}
		order.Logs = append([]domain.OrderLog(nil), r.st.logs[order.ID]...)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepo) Save(ctx context.Context, order domain.Order) error {
	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	order.Logs = nil // журнал хранится отдельно и только пополняется
	r.st.orders[order.ID] = order
	return nil
}

// AppendLog добавляет запись в журнал переходов заказа.
func (r *orderRepo) AppendLog(ctx context.Context, log domain.OrderLog) error {
	if _, ok := r.st.orders[log.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.st.logs[log.OrderID] = append(r.st.logs[log.OrderID], log)
	return nil
}

var _ domain.OrderRepository = (*orderRepo)(nil)
