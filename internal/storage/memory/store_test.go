package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store, stock int32) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		return tx.Products().Create(ctx, domain.Product{
			ID:         "product-1",
			SellerID:   "seller-1",
			Name:       "widget",
			PriceMinor: 500,
			Currency:   "USD",
			Stock:      stock,
			IsActive:   true,
		})
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func getProduct(t *testing.T, store *memory.Store) domain.Product {
	t.Helper()
	var product domain.Product
	err := store.View(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		var err error
		product, err = tx.Products().Get(ctx, "product-1")
		return err
	})
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product
}

func TestStore_RollbackOnError(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, 10)

	boom := errors.New("boom")
	err := store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		ok, err := tx.Ledger().Reserve(ctx, "product-1", 5)
		if err != nil || !ok {
			t.Fatalf("reserve inside tx: ok=%v err=%v", ok, err)
		}
		if err := tx.Orders().Create(ctx, newOrder("order-1", "ORD-20260901-AAAAAA")); err != nil {
			return err
		}
		// Ошибка после нескольких успешных шагов откатывает их все.
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	product := getProduct(t, store)
	if product.Stock != 10 || product.Reserved != 0 {
		t.Fatalf("expected counters untouched after rollback, got stock=%d reserved=%d", product.Stock, product.Reserved)
	}

	err = store.View(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		_, err := tx.Orders().Get(ctx, "order-1")
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order rolled back, got %v", err)
	}
}

func TestStore_ViewDoesNotPersist(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, 10)

	err := store.View(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		ok, err := tx.Ledger().Reserve(ctx, "product-1", 3)
		if err != nil || !ok {
			t.Fatalf("reserve inside view: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if product := getProduct(t, store); product.Stock != 10 {
		t.Fatalf("view must not persist changes, got stock=%d", product.Stock)
	}
}

func TestLedger_ReserveCommitRelease(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, 10)

	// reserve 3: stock 7, reserved 3
	err := store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		ok, err := tx.Ledger().Reserve(ctx, "product-1", 3)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected reserve to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if p := getProduct(t, store); p.Stock != 7 || p.Reserved != 3 {
		t.Fatalf("after reserve: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	// commit 3: stock 7, reserved 0
	err = store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		return tx.Ledger().Commit(ctx, "product-1", 3)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p := getProduct(t, store); p.Stock != 7 || p.Reserved != 0 {
		t.Fatalf("after commit: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	// reserve 2 then release: counters back to stock 7, reserved 0
	err = store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		if ok, err := tx.Ledger().Reserve(ctx, "product-1", 2); err != nil || !ok {
			t.Fatalf("reserve: ok=%v err=%v", ok, err)
		}
		return tx.Ledger().Release(ctx, "product-1", 2)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if p := getProduct(t, store); p.Stock != 7 || p.Reserved != 0 {
		t.Fatalf("after release: stock=%d reserved=%d", p.Stock, p.Reserved)
	}
}

func TestLedger_InsufficientStock(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, 2)

	err := store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		ok, err := tx.Ledger().Reserve(ctx, "product-1", 3)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("reserve beyond stock must report false")
		}
		ok, err = tx.Ledger().DebitImmediate(ctx, "product-1", 3)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("debit beyond stock must report false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within: %v", err)
	}

	// Неудачные попытки не изменяют счётчики.
	if p := getProduct(t, store); p.Stock != 2 || p.Reserved != 0 {
		t.Fatalf("counters changed on failed attempts: stock=%d reserved=%d", p.Stock, p.Reserved)
	}
}

func TestLedger_DebitAndRestore(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, 5)

	err := store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		if ok, err := tx.Ledger().DebitImmediate(ctx, "product-1", 4); err != nil || !ok {
			t.Fatalf("debit: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if p := getProduct(t, store); p.Stock != 1 || p.Reserved != 0 {
		t.Fatalf("after debit: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	err = store.Within(context.Background(), func(ctx context.Context, tx domain.TxStore) error {
		return tx.Ledger().Restore(ctx, "product-1", 4)
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if p := getProduct(t, store); p.Stock != 5 {
		t.Fatalf("after restore: stock=%d", p.Stock)
	}
}
