package domain

import "errors"

// Доменные ошибки Invoice Service.
var (
	// ErrDuplicateInvoice — счёт для (booking_id, type) уже существует.
	// Повторное событие оплаты — штатная ситуация (at-least-once доставка).
	ErrDuplicateInvoice = errors.New("счёт уже существует")

	// ErrInvoiceNotFound — счёт не найден.
	ErrInvoiceNotFound = errors.New("счёт не найден")

	// ErrInvalidInvoice — невалидные данные счёта.
	ErrInvalidInvoice = errors.New("невалидные данные счёта")

	// ErrInvalidEvent — невалидное событие оплаты.
	ErrInvalidEvent = errors.New("невалидное событие оплаты")

	// ErrRenderFailure — генерация PDF не удалась.
	// Восстановимая ошибка: счёт остаётся в PENDING_PDF до повторной генерации.
	ErrRenderFailure = errors.New("ошибка генерации PDF")
)
