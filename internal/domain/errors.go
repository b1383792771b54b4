package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductRequired = errors.New("product id is required")
	// Ошибка некорректного количества (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка отрицательной цены или скидки.
	ErrPriceInvalid = errors.New("price must be non-negative")
	// Ошибка несоответствия итоговой суммы заказa снимку цены и скидки.
	ErrAmountMismatch = errors.New("final amount does not match totals")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// Ошибка неполного адреса доставки.
	ErrShippingIncomplete = errors.New("shipping address must contain street, city and country")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserDeleted — аккаунт удалён, заказы от его имени запрещены.
	ErrUserDeleted = errors.New("user account is deleted")
	// ErrUserBanned — аккаунт заблокирован.
	ErrUserBanned = errors.New("user account is banned")
	// ErrUserNotVerified — email не подтверждён.
	ErrUserNotVerified = errors.New("user email is not verified")
	// ErrNotOrderOwner — заказ принадлежит другому пользователю.
	ErrNotOrderOwner = errors.New("order belongs to another user")

	// ErrInsufficientStock — на складе меньше единиц, чем запрошено.
	// Возвращается только атомарной условной операцией леджера,
	// а не предварительной проверкой в коде.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition — переход статуса запрещён машиной состояний.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrOrderNotPaid — операция требует оплаченного заказа.
	ErrOrderNotPaid = errors.New("order is not paid")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvoiceConflict — сгенерированный invoice id уже занят другим заказом.
	ErrInvoiceConflict = errors.New("invoice id already exists")

	// ErrPaymentGatewayUnavailable — временная ошибка платёжного провайдера.
	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrRefundDeclined — провайдер отказал в возврате средств.
	ErrRefundDeclined = errors.New("refund declined by gateway")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsForbidden проверяет, является ли ошибка отказом по статусу аккаунта
// или владению заказом.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrUserDeleted) ||
		errors.Is(err, ErrUserBanned) ||
		errors.Is(err, ErrUserNotVerified) ||
		errors.Is(err, ErrNotOrderOwner)
}

// IsConflict проверяет, является ли ошибка ожидаемым бизнес-конфликтом:
// повтор запроса без изменения состояния бессмысленен.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOrderNotPaid) ||
		errors.Is(err, ErrRefundDeclined) ||
		errors.Is(err, ErrInvoiceConflict) ||
		errors.Is(err, ErrOrderVersionConflict)
}

// IsRetryable проверяет, вызвана ли ошибка временной недоступностью внешней
// зависимости: состояние заказа не изменилось и операцию можно повторить.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPaymentGatewayUnavailable)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
