package service

import (
	"context"
	"errors"
	"fmt"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/repository"
)

// maxTransitionRetries — количество повторов CAS при конфликте версий.
// Конфликт означает конкурентное обновление той же оплаты: перечитываем
// состояние и пробуем снова.
const maxTransitionRetries = 3

// StateMachine управляет переходами статусов оплаты бронирования.
// Единственная точка изменения статуса: все переходы проходят проверку
// допустимости и optimistic locking.
type StateMachine struct {
	payments repository.BookingPaymentRepository
}

// NewStateMachine создаёт машину состояний оплат.
func NewStateMachine(payments repository.BookingPaymentRepository) *StateMachine {
	return &StateMachine{payments: payments}
}

// TransitionResult — результат перехода статуса.
type TransitionResult struct {
	Payment *domain.BookingPayment // Оплата после перехода
	Applied bool                   // false — статус уже был целевым (идемпотентный no-op)
}

// Transition переводит оплату бронирования в целевой статус.
// При переходе в PAID в той же транзакции БД пишется событие invoice.created
// в outbox (transactionID попадает в payload события).
//
// Повторный вызов с уже применённым целевым статусом — no-op без ошибки.
// Недопустимый переход возвращает domain.ErrInvalidTransition.
func (m *StateMachine) Transition(ctx context.Context, bookingID string, target domain.PaymentStatus, transactionID string) (*TransitionResult, error) {
	log := logger.Ctx(ctx)

	var lastErr error
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		payment, err := m.payments.GetByBookingID(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		// Идемпотентность: статус уже целевой — ничего не делаем
		if payment.Status == target {
			log.Debug().
				Str("booking_id", bookingID).
				Str("status", string(target)).
				Msg("Статус оплаты уже применён")
			return &TransitionResult{Payment: payment, Applied: false}, nil
		}

		if err := payment.TransitionTo(target); err != nil {
			return nil, err
		}

		err = m.applyTransition(ctx, payment, target, transactionID)
		if err == nil {
			log.Info().
				Str("booking_id", bookingID).
				Str("status", string(target)).
				Int64("version", payment.Version).
				Msg("Статус оплаты обновлён")
			return &TransitionResult{Payment: payment, Applied: true}, nil
		}

		if !errors.Is(err, domain.ErrStorageConflict) {
			return nil, err
		}

		// Конфликт версий — конкурентное обновление, перечитываем
		lastErr = err
		log.Warn().
			Str("booking_id", bookingID).
			Int("attempt", attempt+1).
			Msg("Конфликт версий при переходе статуса, повтор")
	}

	return nil, fmt.Errorf("переход статуса не выполнен после %d попыток: %w", maxTransitionRetries, lastErr)
}

// applyTransition сохраняет переход: для PAID — вместе с записью outbox.
func (m *StateMachine) applyTransition(ctx context.Context, payment *domain.BookingPayment, target domain.PaymentStatus, transactionID string) error {
	if target != domain.PaymentStatusPaid {
		return m.payments.UpdateStatus(ctx, payment)
	}

	headers := map[string]string{}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}

	record, err := repository.NewInvoiceOutboxRecord(payment, transactionID, headers)
	if err != nil {
		return fmt.Errorf("ошибка формирования события invoice.created: %w", err)
	}

	return m.payments.UpdateStatusWithOutbox(ctx, payment, record)
}
