package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	mu sync.Mutex

	IntentErr error
	RefundErr error

	IntentCalls int
	RefundCalls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateIntent возвращает детерминированное намерение оплаты и считает вызовы.
func (m *MockGateway) CreateIntent(ctx context.Context, invoiceID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IntentCalls++
	if m.IntentErr != nil {
		return domain.PaymentIntent{}, m.IntentErr
	}
	return domain.PaymentIntent{
		IntentID:    fmt.Sprintf("intent-%d", m.IntentCalls),
		InvoiceID:   invoiceID,
		AmountMinor: amountMinor,
		Currency:    currency,
		RedirectURL: fmt.Sprintf("https://pay.example.test/%s", invoiceID),
	}, nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) (domain.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	if m.RefundErr != nil {
		return domain.RefundResult{}, m.RefundErr
	}
	return domain.RefundResult{
		RefundID:    fmt.Sprintf("refund-%d", m.RefundCalls),
		AmountMinor: amountMinor,
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
