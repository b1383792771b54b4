package domain

import (
	"encoding/json"
	"time"
)

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — оплата картой через платёжный шлюз.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodMobileBanking — оплата через мобильный банкинг.
	PaymentMethodMobileBanking PaymentMethod = "mobile_banking"
	// PaymentMethodCOD — наложенный платёж, оплата при получении.
	PaymentMethodCOD PaymentMethod = "cod"
)

// PaymentStatus описывает состояние платежа по заказу.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж ожидает подтверждения провайдера.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — деньги списаны в пользу мерчанта.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены покупателю.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// paymentTransitions — разрешённые переходы статуса платежа.
// failed и refunded терминальны; повторный возврат не допускается.
var paymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending:  {PaymentStatusPaid: true, PaymentStatusFailed: true},
	PaymentStatusPaid:     {PaymentStatusRefunded: true},
	PaymentStatusFailed:   {},
	PaymentStatusRefunded: {},
}

// CanPaymentTransition сообщает, разрешён ли переход платежа из from в to.
func CanPaymentTransition(from, to PaymentStatus) bool {
	return paymentTransitions[from][to]
}

// Payment — платёж, вложенный в заказ. Хранится в той же записи, что и
// сам заказ, и изменяется в одной транзакции с ним.
type Payment struct {
	Method PaymentMethod
	Status PaymentStatus
	// TransactionID — идентификатор транзакции у провайдера.
	// Пустой, пока платёж не подтверждён.
	TransactionID string
	// GatewayResponse — сырой ответ провайдера из webhook.
	// Сохраняется как есть при подтверждении или отказе.
	GatewayResponse json.RawMessage
	PaidAt          *time.Time
	RefundedAt      *time.Time
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() error {
	if p.Method == "" {
		return ErrPaymentMethodRequired
	}
	return nil
}
