package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

func TestLedger_PostgresReserveCommitRelease(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedUserAndProduct(t, store, 10)
	ledger := NewLedger(store)
	products := NewProductRepository(store)
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "product-1", 3)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	p, err := products.Get(ctx, "product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 7 || p.Reserved != 3 {
		t.Fatalf("after reserve: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	if err := ledger.Commit(ctx, "product-1", 3); err != nil {
		t.Fatalf("commit: %v", err)
	}
	p, _ = products.Get(ctx, "product-1")
	if p.Stock != 7 || p.Reserved != 0 {
		t.Fatalf("after commit: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	if ok, err := ledger.Reserve(ctx, "product-1", 2); err != nil || !ok {
		t.Fatalf("second reserve: ok=%v err=%v", ok, err)
	}
	if err := ledger.Release(ctx, "product-1", 2); err != nil {
		t.Fatalf("release: %v", err)
	}
	p, _ = products.Get(ctx, "product-1")
	if p.Stock != 7 || p.Reserved != 0 {
		t.Fatalf("after release: stock=%d reserved=%d", p.Stock, p.Reserved)
	}
}

func TestLedger_PostgresInsufficientAndMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedUserAndProduct(t, store, 2)
	ledger := NewLedger(store)
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "product-1", 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if ok {
		t.Fatal("reserve beyond stock must report false")
	}

	ok, err = ledger.DebitImmediate(ctx, "product-1", 3)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if ok {
		t.Fatal("debit beyond stock must report false")
	}

	if _, err := ledger.Reserve(ctx, "missing-product", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

// Конкурирующие резервы не должны увести stock в минус:
// из 10 единиц при 20 параллельных попытках по 3 успешны максимум 3.
func TestLedger_PostgresConcurrentReserves(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedUserAndProduct(t, store, 10)
	ledger := NewLedger(store)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ok, err := ledger.Reserve(ctx, "product-1", 3)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 successful reserves of 3 from stock 10, got %d", succeeded)
	}

	p, err := NewProductRepository(store).Get(context.Background(), "product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 1 || p.Reserved != 9 {
		t.Fatalf("counters after concurrent reserves: stock=%d reserved=%d", p.Stock, p.Reserved)
	}
}

func TestStore_PostgresWithinRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedUserAndProduct(t, store, 10)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		ok, err := tx.Ledger().Reserve(ctx, "product-1", 5)
		if err != nil || !ok {
			t.Fatalf("reserve in tx: ok=%v err=%v", ok, err)
		}
		if err := tx.Orders().Create(ctx, sampleOrder("order-rb", "ORD-20260901-EEEEEE", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p, err := NewProductRepository(store).Get(ctx, "product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 10 || p.Reserved != 0 {
		t.Fatalf("counters must be untouched after rollback: stock=%d reserved=%d", p.Stock, p.Reserved)
	}

	if _, err := NewOrderRepository(store).Get(ctx, "order-rb"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order rolled back, got %v", err)
	}
}
