package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewInvoiceID_Format(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	id, err := NewInvoiceID(now)
	if err != nil {
		t.Fatalf("NewInvoiceID: %v", err)
	}
	if !ValidInvoiceID(id) {
		t.Fatalf("generated id %q does not match invoice format", id)
	}
	if !strings.HasPrefix(id, "ORD-20260901-") {
		t.Fatalf("expected date prefix ORD-20260901-, got %q", id)
	}
}

func TestNewInvoiceID_Varies(t *testing.T) {
	now := time.Now().UTC()
	seen := make(map[string]bool)
	// Коллизии возможны, но на небольшой выборке все номера должны отличаться.
	for i := 0; i < 100; i++ {
		id, err := NewInvoiceID(now)
		if err != nil {
			t.Fatalf("NewInvoiceID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate invoice id on small sample: %s", id)
		}
		seen[id] = true
	}
}

func TestValidInvoiceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"ORD-20260901-A1B2C3", true},
		{"ORD-20260901-ZZZZZZ", true},
		{"ORD-2026091-A1B2C3", false},
		{"ORD-20260901-a1b2c3", false},
		{"ORD-20260901-A1B2C", false},
		{"INV-20260901-A1B2C3", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidInvoiceID(tt.id); got != tt.want {
			t.Errorf("ValidInvoiceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
