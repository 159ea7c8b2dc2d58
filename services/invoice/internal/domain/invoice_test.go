package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInvoice() *Invoice {
	return &Invoice{
		ID:            "inv-uuid-1",
		BookingID:     "booking-42",
		OrderID:       "order-42",
		UserID:        "user-42",
		Type:          InvoiceTypeBooking,
		Amount:        15000,
		Currency:      "EUR",
		TransactionID: "pi_test_123",
		Status:        InvoiceStatusDraft,
	}
}

func TestInvoice_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(i *Invoice)
		wantErr bool
	}{
		{"валидный счёт", func(i *Invoice) {}, false},
		{"пустой booking_id", func(i *Invoice) { i.BookingID = "" }, true},
		{"пустой user_id", func(i *Invoice) { i.UserID = "" }, true},
		{"нулевая сумма", func(i *Invoice) { i.Amount = 0 }, true},
		{"отрицательная сумма", func(i *Invoice) { i.Amount = -100 }, true},
		{"невалидная валюта", func(i *Invoice) { i.Currency = "EURO" }, true},
		{"пустой тип", func(i *Invoice) { i.Type = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			tt.modify(inv)

			err := inv.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInvoice)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInvoice_MarkIssued(t *testing.T) {
	inv := validInvoice()
	inv.Status = InvoiceStatusPendingPDF
	issuedAt := time.Now().UTC()

	inv.MarkIssued("file:///var/lib/invoices/inv-uuid-1.pdf", issuedAt)

	assert.Equal(t, InvoiceStatusIssued, inv.Status)
	assert.Equal(t, "file:///var/lib/invoices/inv-uuid-1.pdf", inv.PDFURL)
	require.NotNil(t, inv.IssuedAt)
	assert.Equal(t, issuedAt, *inv.IssuedAt)
}

func TestInvoiceCreatedEvent_Validate(t *testing.T) {
	valid := InvoiceCreatedEvent{
		BookingID:     "booking-42",
		OrderID:       "order-42",
		UserID:        "user-42",
		TransactionID: "pi_test_123",
		Amount:        15000,
		Currency:      "EUR",
		PaidAt:        time.Now(),
	}

	assert.NoError(t, valid.Validate())

	empty := valid
	empty.BookingID = ""
	assert.ErrorIs(t, empty.Validate(), ErrInvalidEvent)

	negative := valid
	negative.Amount = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidEvent)

	badCurrency := valid
	badCurrency.Currency = "E"
	assert.ErrorIs(t, badCurrency.Validate(), ErrInvalidEvent)
}
