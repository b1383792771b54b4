package domain

import "time"

// Product — карточка товара с независимыми счётчиками доступного
// и зарезервированного стока.
//
// Инвариант: stock >= 0 и reserved >= 0 в любой момент. Оба счётчика
// изменяются только атомарными условными операциями InventoryLedger.
type Product struct {
	ID       string
	SellerID string
	Name     string

	// PriceMinor и DiscountMinor — в минимальных денежных единицах.
	PriceMinor    int64
	DiscountMinor int64
	Currency      string

	// Stock — доступный к продаже остаток.
	Stock int32
	// Reserved — удержано под неоплаченные заказы.
	Reserved int32

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
