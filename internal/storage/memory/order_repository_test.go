package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/storage/memory"
)

func newOrder(id, invoiceID string) domain.Order {
	now := time.Now().UTC()
	o := domain.Order{
		ID:              id,
		InvoiceID:       invoiceID,
		UserID:          "user-1",
		ProductID:       "product-1",
		Quantity:        2,
		PriceAtAddMinor: 500,
		Currency:        "USD",
		Status:          domain.OrderStatusPending,
		Payment: domain.Payment{
			Method: domain.PaymentMethodCard,
			Status: domain.PaymentStatusPending,
		},
		Shipping: domain.ShippingAddress{Street: "Lenina 1", City: "Moscow", Country: "RU"},
		Reserved: true,
		Version:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.RecalcTotals()
	return o
}

// withinOrders выполняет fn над репозиторием заказов в транзакции стора.
func withinOrders(t *testing.T, store *memory.Store, fn func(repo domain.OrderRepository) error) error {
	t.Helper()
	return store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		return fn(tx.Orders())
	})
}

func TestOrderRepository_CreateGet(t *testing.T) {
	store := memory.NewStore()
	order := newOrder("order-1", "ORD-20260901-AAAAAA")

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		return repo.Create(context.Background(), order)
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		stored, err := repo.Get(context.Background(), order.ID)
		if err != nil {
			return err
		}
		if stored.ID != order.ID || stored.InvoiceID != order.InvoiceID {
			t.Fatalf("stored order mismatch: %+v", stored)
		}
		byInvoice, err := repo.GetByInvoice(context.Background(), order.InvoiceID)
		if err != nil {
			return err
		}
		if byInvoice.ID != order.ID {
			t.Fatalf("expected order %s by invoice, got %s", order.ID, byInvoice.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
}

func TestOrderRepository_InvoiceConflict(t *testing.T) {
	store := memory.NewStore()

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		return repo.Create(context.Background(), newOrder("order-1", "ORD-20260901-AAAAAA"))
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		return repo.Create(context.Background(), newOrder("order-2", "ORD-20260901-AAAAAA"))
	})
	if !errors.Is(err, domain.ErrInvoiceConflict) {
		t.Fatalf("expected invoice conflict, got %v", err)
	}
}

func TestOrderRepository_ListByUser(t *testing.T) {
	store := memory.NewStore()

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		if err := repo.Create(context.Background(), newOrder("order-1", "ORD-20260901-AAAAAA")); err != nil {
			return err
		}
		return repo.Create(context.Background(), newOrder("order-2", "ORD-20260901-BBBBBB"))
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		orders, err := repo.ListByUser(context.Background(), "user-1", 10)
		if err != nil {
			return err
		}
		if len(orders) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(orders))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
}

func TestOrderRepository_SoftDeletedHidden(t *testing.T) {
	store := memory.NewStore()
	order := newOrder("order-1", "ORD-20260901-AAAAAA")

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		if err := repo.Create(context.Background(), order); err != nil {
			return err
		}
		stored, err := repo.Get(context.Background(), order.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		stored.IsDeleted = true
		stored.DeletedAt = &now
		return repo.Save(context.Background(), stored)
	}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		_, err := repo.Get(context.Background(), order.ID)
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found for soft-deleted order, got %v", err)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	store := memory.NewStore()
	order := newOrder("order-1", "ORD-20260901-AAAAAA")

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		return repo.Create(context.Background(), order)
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Version = 42
	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		return repo.Save(context.Background(), order)
	})
	if !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOrderRepository_AppendLog(t *testing.T) {
	store := memory.NewStore()
	order := newOrder("order-1", "ORD-20260901-AAAAAA")

	if err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		if err := repo.Create(context.Background(), order); err != nil {
			return err
		}
		return repo.AppendLog(context.Background(), domain.OrderLog{
			ID:         "log-1",
			OrderID:    order.ID,
			FromStatus: domain.OrderStatusPending,
			ToStatus:   domain.OrderStatusPaid,
			ChangedBy:  "system",
			ChangedAt:  time.Now().UTC(),
		})
	}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err := withinOrders(t, store, func(repo domain.OrderRepository) error {
		stored, err := repo.Get(context.Background(), order.ID)
		if err != nil {
			return err
		}
		if len(stored.Logs) != 1 || stored.Logs[0].ToStatus != domain.OrderStatusPaid {
			t.Fatalf("unexpected logs: %+v", stored.Logs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
}
