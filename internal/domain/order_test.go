package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// helper для создания валидного заказа на три единицы товара.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	o := domain.Order{
		ID:              "order-1",
		InvoiceID:       "ORD-20260901-A1B2C3",
		UserID:          "user-1",
		ProductID:       "product-1",
		Quantity:        3,
		PriceAtAddMinor: 1000,
		DiscountMinor:   100,
		Currency:        "USD",
		Status:          domain.OrderStatusPending,
		Payment: domain.Payment{
			Method: domain.PaymentMethodCard,
			Status: domain.PaymentStatusPending,
		},
		Shipping: domain.ShippingAddress{
			Street:  "Lenina 1",
			City:    "Moscow",
			Country: "RU",
		},
		Reserved:  true,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.RecalcTotals()
	return o
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = ""
			},
		},
		{
			name: "no product",
			mut: func(o *domain.Order) {
				o.ProductID = ""
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Quantity = 0
			},
		},
		{
			name: "negative price",
			mut: func(o *domain.Order) {
				o.PriceAtAddMinor = -1
			},
		},
		{
			name: "amount mismatch",
			mut: func(o *domain.Order) {
				o.FinalMinor = 999
			},
		},
		{
			name: "no payment method",
			mut: func(o *domain.Order) {
				o.Payment.Method = ""
			},
		},
		{
			name: "incomplete shipping",
			mut: func(o *domain.Order) {
				o.Shipping.City = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestRecalcTotals_DiscountClampedToZero(t *testing.T) {
	order := makeOrder()
	order.DiscountMinor = 5000 // скидка больше цены
	order.RecalcTotals()

	if order.FinalMinor != 0 {
		t.Fatalf("expected final amount clamped to 0, got %d", order.FinalMinor)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusPaid, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusPaid, domain.OrderStatusShipped, true},
		{domain.OrderStatusPaid, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, false},
		{domain.OrderStatusDelivered, domain.OrderStatusReturned, true},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusReturned, domain.OrderStatusPaid, false},
	}

	for _, tc := range cases {
		if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !domain.OrderStatusCancelled.Terminal() {
		t.Fatal("cancelled must be terminal")
	}
	if !domain.OrderStatusReturned.Terminal() {
		t.Fatal("returned must be terminal")
	}
	if domain.OrderStatusDelivered.Terminal() {
		t.Fatal("delivered still allows refund transition")
	}
}

func TestAppendLog(t *testing.T) {
	order := makeOrder()
	at := time.Now().UTC()
	order.AppendLog("log-1", domain.OrderStatusPending, domain.OrderStatusPaid, "system", "payment confirmed", at)

	if len(order.Logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(order.Logs))
	}
	entry := order.Logs[0]
	if entry.OrderID != order.ID || entry.FromStatus != domain.OrderStatusPending || entry.ToStatus != domain.OrderStatusPaid {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}
