package domain

// ShippingAddress — адрес доставки, снимок на момент оформления заказа.
type ShippingAddress struct {
	Street     string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

// Validate проверяет, что обязательные поля адреса заполнены.
func (a *ShippingAddress) Validate() error {
	if a.Street == "" || a.City == "" || a.Country == "" {
		return ErrShippingIncomplete
	}
	return nil
}
