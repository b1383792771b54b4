package domain

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

const invoiceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var invoicePattern = regexp.MustCompile(`^ORD-\d{8}-[0-9A-Z]{6}$`)

// NewInvoiceID генерирует человекочитаемый номер заказа вида
// ORD-YYYYMMDD-XXXXXX, где суффикс — 6 случайных символов [0-9A-Z].
// Уникальность гарантирует не генератор, а уникальный индекс в хранилище:
// при коллизии вызывающий код генерирует номер заново.
func NewInvoiceID(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invoice id entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = invoiceAlphabet[int(b)%len(invoiceAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), buf), nil
}

// ValidInvoiceID проверяет формат номера заказа.
func ValidInvoiceID(id string) bool {
	return invoicePattern.MatchString(id)
}
