package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток зарезервирован, оплата не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до отгрузки.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — по заказу выполнен возврат средств и товара.
	OrderStatusReturned OrderStatus = "returned"
)

// orderTransitions задаёт разрешённые переходы машины состояний заказа.
// cancelled и returned — терминальные; delivered допускает только возврат.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusShipped: true, OrderStatusCancelled: true, OrderStatusReturned: true},
	OrderStatusShipped:   {OrderStatusDelivered: true, OrderStatusReturned: true},
	OrderStatusDelivered: {OrderStatusReturned: true},
	OrderStatusCancelled: {},
	OrderStatusReturned:  {},
}

// CanTransition сообщает, разрешён ли переход заказа из статуса from в to.
func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// Terminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderLog — запись журнала переходов заказа. Журнал только пополняется,
// существующие записи никогда не изменяются и не удаляются.
type OrderLog struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ChangedBy  string
	Note       string
	ChangedAt  time.Time
}

// Order агрегирует состояние заказа: ценовой снимок на момент создания,
// вложенный платёж, адрес доставки и журнал переходов.
type Order struct {
	ID        string
	InvoiceID string
	UserID    string
	ProductID string
	Quantity  int32

	// Снимок цены на момент создания заказа: последующие изменения
	// карточки товара на сумму заказа не влияют.
	PriceAtAddMinor    int64
	DiscountMinor      int64
	TotalMinor         int64
	TotalDiscountMinor int64
	FinalMinor         int64
	Currency           string

	Status   OrderStatus
	Payment  Payment
	Shipping ShippingAddress

	// ShipmentID — идентификатор отправления у службы доставки.
	// Заполняется при переходе в shipped.
	ShipmentID string

	// Reserved — true, если сток удерживается через reserved-счётчик товара
	// и ещё не зафиксирован оплатой.
	Reserved bool

	Logs []OrderLog

	IsDeleted bool
	DeletedAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.ProductID == "" {
		errs = append(errs, ErrProductRequired)
	}
	if o.Quantity <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if o.PriceAtAddMinor < 0 || o.DiscountMinor < 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	// Сверяем снимок сумм: total = price*qty, final = max(0, total - discount*qty).
	total := o.PriceAtAddMinor * int64(o.Quantity)
	discount := o.DiscountMinor * int64(o.Quantity)
	final := total - discount
	if final < 0 {
		final = 0
	}
	if o.TotalMinor != total || o.TotalDiscountMinor != discount || o.FinalMinor != final {
		errs = append(errs, ErrAmountMismatch)
	}

	if err := o.Payment.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Shipping.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// RecalcTotals заполняет снимок сумм из цены, скидки и количества.
func (o *Order) RecalcTotals() {
	o.TotalMinor = o.PriceAtAddMinor * int64(o.Quantity)
	o.TotalDiscountMinor = o.DiscountMinor * int64(o.Quantity)
	o.FinalMinor = o.TotalMinor - o.TotalDiscountMinor
	if o.FinalMinor < 0 {
		o.FinalMinor = 0
	}
}

// AppendLog добавляет запись о переходе в журнал заказа.
func (o *Order) AppendLog(id string, from, to OrderStatus, changedBy, note string, at time.Time) {
	o.Logs = append(o.Logs, OrderLog{
		ID:         id,
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  changedBy,
		Note:       note,
		ChangedAt:  at,
	})
}
