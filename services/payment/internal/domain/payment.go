// Package domain содержит бизнес-сущности Payment Service.
package domain

import (
	"errors"
	"time"
)

// PaymentStatus — статус оплаты бронирования.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата создана, ожидает подтверждения провайдера.
	PaymentStatusPending PaymentStatus = "PENDING"

	// PaymentStatusPaid — оплата подтверждена провайдером.
	PaymentStatusPaid PaymentStatus = "PAID"

	// PaymentStatusFailed — оплата не прошла (отклонена или истекла).
	PaymentStatusFailed PaymentStatus = "FAILED"

	// PaymentStatusRefunded — оплата возвращена.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsTerminal возвращает true, если оплата в финальном состоянии.
// PAID не терминальный — из него возможен переход в REFUNDED.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

// allowedTransitions определяет валидные переходы состояния оплаты.
// Повторный переход в текущее состояние не является переходом
// (обрабатывается выше как идемпотентный no-op).
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {PaymentStatusRefunded},
	// PaymentStatusFailed и PaymentStatusRefunded — терминальные состояния
}

// =============================================================================
// BookingPayment — состояние оплаты бронирования
// =============================================================================

// BookingPayment — запись о состоянии оплаты одного бронирования.
// Version используется для optimistic locking при конкурентных переходах.
type BookingPayment struct {
	BookingID string        // ID бронирования (первичный ключ)
	OrderID   string        // ID заказа в системе бронирования
	UserID    string        // ID пользователя
	Amount    int64         // Сумма в минимальных единицах (копейки/центы)
	Currency  string        // ISO 4217 код валюты
	Status    PaymentStatus // Текущий статус
	Version   int64         // Счётчик версий для CAS-обновлений
	CreatedAt time.Time     // Дата создания
	UpdatedAt time.Time     // Дата обновления
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (p *BookingPayment) CanTransitionTo(newStatus PaymentStatus) bool {
	allowed, ok := allowedTransitions[p.Status]
	if !ok {
		return false // Терминальное состояние
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новое состояние.
func (p *BookingPayment) TransitionTo(newStatus PaymentStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return nil
}

// MarkPaid подтверждает оплату.
func (p *BookingPayment) MarkPaid() error {
	return p.TransitionTo(PaymentStatusPaid)
}

// MarkFailed помечает оплату как неудачную.
func (p *BookingPayment) MarkFailed() error {
	return p.TransitionTo(PaymentStatusFailed)
}

// MarkRefunded выполняет возврат оплаты.
func (p *BookingPayment) MarkRefunded() error {
	return p.TransitionTo(PaymentStatusRefunded)
}

// Validate проверяет корректность полей.
func (p *BookingPayment) Validate() error {
	if p.BookingID == "" {
		return errors.New("booking_id обязателен")
	}
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	if p.Currency == "" {
		return errors.New("currency обязательна")
	}
	return nil
}

// =============================================================================
// PaymentRequest — неизменяемая запись о созданном платеже
// =============================================================================

// PaymentRequest — запись о платеже, созданном у провайдера.
// Создаётся при createPayment и далее не изменяется; сумма из этой записи —
// эталон для проверки суммы в callback.
type PaymentRequest struct {
	ID            string    // UUID записи
	TransactionID string    // ID транзакции у провайдера (уникален)
	BookingID     string    // ID бронирования
	OrderID       string    // ID заказа
	UserID        string    // ID пользователя
	Provider      string    // Идентификатор провайдера (stripe / alipay)
	Amount        int64     // Сумма в минимальных единицах
	Currency      string    // ISO 4217 код валюты
	Description   string    // Назначение платежа
	CreatedAt     time.Time // Дата создания
}

// Validate проверяет корректность полей запроса.
func (r *PaymentRequest) Validate() error {
	if r.BookingID == "" {
		return errors.New("booking_id обязателен")
	}
	if r.Provider == "" {
		return errors.New("provider обязателен")
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if r.Currency == "" {
		return errors.New("currency обязательна")
	}
	return nil
}

// PaymentResponse — ответ провайдера на создание платежа.
type PaymentResponse struct {
	TransactionID string // ID транзакции у провайдера
	RedirectURL   string // URL для оплаты на стороне провайдера (если есть)
	ClientSecret  string // Секрет для завершения оплаты на клиенте (Stripe)
}

// PaymentVerification — результат верификации callback провайдера.
// Status: PAID / FAILED — требуют перехода состояния, PENDING — промежуточное
// уведомление без смены состояния.
type PaymentVerification struct {
	TransactionID string        // ID транзакции у провайдера
	Provider      string        // Идентификатор провайдера
	Status        PaymentStatus // Статус из callback
	Amount        int64         // Сумма из callback (минимальные единицы)
	Currency      string        // Валюта из callback
	RawEventType  string        // Исходный тип события провайдера (для логов)
}
