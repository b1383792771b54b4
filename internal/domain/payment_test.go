package domain

import (
	"errors"
	"testing"
)

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payment Payment
		wantErr error
	}{
		{
			name:    "valid card payment",
			payment: Payment{Method: PaymentMethodCard, Status: PaymentStatusPending},
		},
		{
			name:    "valid cod payment",
			payment: Payment{Method: PaymentMethodCOD, Status: PaymentStatusPending},
		},
		{
			name:    "missing method",
			payment: Payment{Status: PaymentStatusPending},
			wantErr: ErrPaymentMethodRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payment.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanPaymentTransition(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusRefunded, false},
		{PaymentStatusPaid, PaymentStatusRefunded, true},
		{PaymentStatusPaid, PaymentStatusFailed, false},
		{PaymentStatusRefunded, PaymentStatusPaid, false},
		{PaymentStatusFailed, PaymentStatusPaid, false},
	}

	for _, tt := range tests {
		if got := CanPaymentTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanPaymentTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
