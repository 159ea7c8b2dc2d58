// Package domain содержит доменные сущности Invoice Service.
package domain

import (
	"fmt"
	"time"
)

// InvoiceStatus — статус счёта.
type InvoiceStatus string

const (
	// InvoiceStatusDraft — счёт создан, выставление не начато.
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusPendingPDF — счёт ждёт генерации PDF.
	InvoiceStatusPendingPDF InvoiceStatus = "PENDING_PDF"
	// InvoiceStatusIssued — PDF сгенерирован, счёт выставлен.
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
)

// InvoiceType — тип счёта. Уникальность счёта определяется парой
// (booking_id, type): на одно бронирование — один счёт каждого типа.
type InvoiceType string

const (
	// InvoiceTypeBooking — счёт за оплаченное бронирование.
	InvoiceTypeBooking InvoiceType = "BOOKING"
)

// Invoice — счёт за бронирование.
type Invoice struct {
	ID            string        // UUID счёта
	BookingID     string        // ID бронирования
	OrderID       string        // ID заказа
	UserID        string        // ID пользователя
	Type          InvoiceType   // Тип счёта
	Amount        int64         // Сумма в минорных единицах
	Currency      string        // Валюта (ISO 4217)
	TransactionID string        // ID транзакции провайдера, подтвердившей оплату
	Status        InvoiceStatus // Текущий статус
	PDFURL        string        // Ссылка на PDF артефакт (заполняется при ISSUED)
	IssuedAt      *time.Time    // Время выставления (nil до ISSUED)
	CreatedAt     time.Time     // Время создания
	UpdatedAt     time.Time     // Время обновления
}

// Validate проверяет корректность данных счёта.
func (i *Invoice) Validate() error {
	if i.BookingID == "" {
		return fmt.Errorf("%w: пустой booking_id", ErrInvalidInvoice)
	}
	if i.UserID == "" {
		return fmt.Errorf("%w: пустой user_id", ErrInvalidInvoice)
	}
	if i.Amount <= 0 {
		return fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidInvoice)
	}
	if len(i.Currency) != 3 {
		return fmt.Errorf("%w: валюта должна быть кодом ISO 4217", ErrInvalidInvoice)
	}
	if i.Type == "" {
		return fmt.Errorf("%w: пустой тип счёта", ErrInvalidInvoice)
	}
	return nil
}

// MarkIssued переводит счёт в ISSUED с ссылкой на артефакт.
func (i *Invoice) MarkIssued(pdfURL string, issuedAt time.Time) {
	i.Status = InvoiceStatusIssued
	i.PDFURL = pdfURL
	i.IssuedAt = &issuedAt
}

// InvoiceCreatedEvent — событие из топика invoice.events: бронирование
// оплачено, нужно выставить счёт. Формат задаёт Payment Service.
type InvoiceCreatedEvent struct {
	BookingID     string    `json:"booking_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
}

// Validate проверяет обязательные поля события.
func (e *InvoiceCreatedEvent) Validate() error {
	if e.BookingID == "" {
		return fmt.Errorf("%w: пустой booking_id", ErrInvalidEvent)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: пустой user_id", ErrInvalidEvent)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidEvent)
	}
	if len(e.Currency) != 3 {
		return fmt.Errorf("%w: валюта должна быть кодом ISO 4217", ErrInvalidEvent)
	}
	return nil
}
