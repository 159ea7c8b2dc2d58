package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// State Machine тесты
// =============================================================================

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   PaymentStatus
		terminal bool
	}{
		{PaymentStatusPending, false},
		{PaymentStatusPaid, false}, // PAID не терминальный — можно перейти в REFUNDED
		{PaymentStatusFailed, true},
		{PaymentStatusRefunded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestBookingPayment_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name      string
		from      PaymentStatus
		to        PaymentStatus
		canChange bool
	}{
		// Из PENDING
		{"PENDING -> PAID", PaymentStatusPending, PaymentStatusPaid, true},
		{"PENDING -> FAILED", PaymentStatusPending, PaymentStatusFailed, true},
		{"PENDING -> REFUNDED", PaymentStatusPending, PaymentStatusRefunded, false},
		{"PENDING -> PENDING", PaymentStatusPending, PaymentStatusPending, false},

		// Из PAID
		{"PAID -> REFUNDED", PaymentStatusPaid, PaymentStatusRefunded, true},
		{"PAID -> FAILED", PaymentStatusPaid, PaymentStatusFailed, false},
		{"PAID -> PENDING", PaymentStatusPaid, PaymentStatusPending, false},
		{"PAID -> PAID", PaymentStatusPaid, PaymentStatusPaid, false},

		// Из терминальных состояний
		{"FAILED -> любой", PaymentStatusFailed, PaymentStatusPaid, false},
		{"REFUNDED -> любой", PaymentStatusRefunded, PaymentStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &BookingPayment{Status: tt.from}
			assert.Equal(t, tt.canChange, p.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingPayment_MarkPaid(t *testing.T) {
	t.Run("успешный переход из PENDING", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPending)

		err := p.MarkPaid()

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusPaid, p.Status)
	})

	t.Run("ошибка из FAILED", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusFailed)

		err := p.MarkPaid()

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusFailed, p.Status) // Статус не изменился
	})

	t.Run("ошибка из PAID", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPaid)

		err := p.MarkPaid()

		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestBookingPayment_MarkFailed(t *testing.T) {
	t.Run("успешный переход из PENDING", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPending)

		err := p.MarkFailed()

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusFailed, p.Status)
	})

	t.Run("ошибка из PAID", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPaid)

		err := p.MarkFailed()

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusPaid, p.Status)
	})
}

func TestBookingPayment_MarkRefunded(t *testing.T) {
	t.Run("успешный возврат из PAID", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPaid)

		err := p.MarkRefunded()

		require.NoError(t, err)
		assert.Equal(t, PaymentStatusRefunded, p.Status)
	})

	t.Run("ошибка возврата из PENDING", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusPending)

		err := p.MarkRefunded()

		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusPending, p.Status)
	})

	t.Run("ошибка возврата из FAILED", func(t *testing.T) {
		p := newTestBookingPayment(PaymentStatusFailed)

		err := p.MarkRefunded()

		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

// =============================================================================
// Validation тесты
// =============================================================================

func TestBookingPayment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payment *BookingPayment
		wantErr bool
	}{
		{
			name:    "валидная запись",
			payment: newTestBookingPayment(PaymentStatusPending),
			wantErr: false,
		},
		{
			name: "пустой booking_id",
			payment: &BookingPayment{
				Amount:   1000,
				Currency: "RUB",
			},
			wantErr: true,
		},
		{
			name: "нулевая сумма",
			payment: &BookingPayment{
				BookingID: "booking-123",
				Amount:    0,
				Currency:  "RUB",
			},
			wantErr: true,
		},
		{
			name: "отрицательная сумма",
			payment: &BookingPayment{
				BookingID: "booking-123",
				Amount:    -100,
				Currency:  "RUB",
			},
			wantErr: true,
		},
		{
			name: "пустая валюта",
			payment: &BookingPayment{
				BookingID: "booking-123",
				Amount:    1000,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payment.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaymentRequest_Validate(t *testing.T) {
	valid := PaymentRequest{
		ID:            "req-1",
		TransactionID: "tx-1",
		BookingID:     "booking-123",
		Provider:      "stripe",
		Amount:        10000,
		Currency:      "RUB",
	}

	t.Run("валидный запрос", func(t *testing.T) {
		r := valid
		assert.NoError(t, r.Validate())
	})

	t.Run("пустой booking_id", func(t *testing.T) {
		r := valid
		r.BookingID = ""
		assert.Error(t, r.Validate())
	})

	t.Run("пустой provider", func(t *testing.T) {
		r := valid
		r.Provider = ""
		assert.Error(t, r.Validate())
	})

	t.Run("нулевая сумма", func(t *testing.T) {
		r := valid
		r.Amount = 0
		assert.ErrorIs(t, r.Validate(), ErrInvalidAmount)
	})
}

// =============================================================================
// Helpers
// =============================================================================

// newTestBookingPayment создаёт тестовую запись оплаты бронирования.
func newTestBookingPayment(status PaymentStatus) *BookingPayment {
	return &BookingPayment{
		BookingID: "booking-123",
		OrderID:   "order-123",
		UserID:    "user-123",
		Amount:    10000, // 100.00 RUB
		Currency:  "RUB",
		Status:    status,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
