// Package processor реализует конвейер обработки платёжных callback:
// проверка подлинности, дедупликация, сверка суммы, переход статуса,
// запись результата. Провайдеры доставляют callback минимум один раз —
// конвейер гарантирует ровно одно применение на transaction_id.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/pkg/metrics"
	"example.com/travel-booking/services/payment/internal/dedup"
	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/gateway"
	"example.com/travel-booking/services/payment/internal/service"
)

const (
	// inFlightPollInterval — интервал опроса результата конкурентной доставки.
	inFlightPollInterval = 100 * time.Millisecond

	// inFlightMaxWait — максимальное ожидание результата конкурентной доставки.
	// Дольше держать HTTP-соединение провайдера нет смысла: он повторит доставку.
	inFlightMaxWait = 5 * time.Second
)

// CallbackResult — итог обработки callback.
type CallbackResult struct {
	TransactionID string               // ID транзакции провайдера
	BookingID     string               // ID бронирования (пустой для промежуточных событий)
	Status        domain.PaymentStatus // Итоговый статус
	Replayed      bool                 // true — повторная доставка, вернулся записанный результат
}

// Processor — конвейер обработки платёжных callback.
type Processor struct {
	registry     *gateway.Registry
	requests     RequestLoader
	stateMachine TransitionApplier
	dedupStore   DedupStore
}

// RequestLoader загружает платёжный запрос по ID транзакции.
type RequestLoader interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRequest, error)
}

// TransitionApplier применяет переход статуса оплаты бронирования.
type TransitionApplier interface {
	Transition(ctx context.Context, bookingID string, target domain.PaymentStatus, transactionID string) (*service.TransitionResult, error)
}

// DedupStore — хранилище дедупликации callback.
type DedupStore interface {
	Reserve(ctx context.Context, transactionID string) (*dedup.ProcessingResult, error)
	Record(ctx context.Context, result *dedup.ProcessingResult) error
	Release(ctx context.Context, transactionID string)
	WaitForResult(ctx context.Context, transactionID string, pollInterval, maxWait time.Duration) (*dedup.ProcessingResult, error)
}

// NewProcessor создаёт конвейер обработки callback.
func NewProcessor(registry *gateway.Registry, requests RequestLoader, stateMachine TransitionApplier, dedupStore DedupStore) *Processor {
	return &Processor{
		registry:     registry,
		requests:     requests,
		stateMachine: stateMachine,
		dedupStore:   dedupStore,
	}
}

// HandleCallback обрабатывает callback провайдера.
//
// Порядок проверок фиксирован: подлинность до дедупликации (поддельный
// callback не должен читать записанные результаты), дедупликация до
// сверки суммы и перехода статуса.
func (p *Processor) HandleCallback(ctx context.Context, providerID string, cb gateway.Callback) (*CallbackResult, error) {
	log := logger.Ctx(ctx)

	// 1. Провайдер
	strategy, err := p.registry.Resolve(providerID)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(providerID, "rejected_provider").Inc()
		return nil, err
	}

	// 2. Подлинность и разбор
	verification, err := strategy.VerifyCallback(ctx, cb)
	if err != nil {
		if errors.Is(err, domain.ErrAuthenticity) {
			log.Warn().Err(err).Str("provider", providerID).Msg("Callback не прошёл проверку подлинности")
			metrics.CallbacksTotal.WithLabelValues(providerID, "rejected_authenticity").Inc()
		} else {
			metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		}
		return nil, err
	}

	ctx = logger.WithLogger(ctx, log.With().
		Str("transaction_id", verification.TransactionID).
		Str("provider", providerID).
		Logger())
	log = logger.Ctx(ctx)

	// 3. Промежуточные события не меняют состояние и не записываются:
	// терминальное событие той же транзакции должно обработаться позже
	if verification.Status == domain.PaymentStatusPending {
		log.Debug().Str("event", verification.RawEventType).Msg("Промежуточное событие провайдера, пропускаем")
		metrics.CallbacksTotal.WithLabelValues(providerID, "pending").Inc()
		return &CallbackResult{
			TransactionID: verification.TransactionID,
			Status:        domain.PaymentStatusPending,
		}, nil
	}

	// 4. Дедупликация
	recorded, err := p.dedupStore.Reserve(ctx, verification.TransactionID)
	if err != nil {
		if errors.Is(err, dedup.ErrInFlight) {
			// Конкурентная доставка той же транзакции: ждём результат победителя,
			// обе доставки должны завершиться успехом
			recorded, err = p.dedupStore.WaitForResult(ctx, verification.TransactionID, inFlightPollInterval, inFlightMaxWait)
			if err != nil {
				metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
				return nil, fmt.Errorf("ожидание конкурентной доставки: %w", err)
			}
		} else {
			metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
			return nil, err
		}
	}

	if recorded != nil {
		log.Info().Str("status", string(recorded.Status)).Msg("Повторная доставка callback, возвращаем записанный результат")
		metrics.CallbacksTotal.WithLabelValues(providerID, "replay").Inc()
		return &CallbackResult{
			TransactionID: recorded.TransactionID,
			BookingID:     recorded.BookingID,
			Status:        recorded.Status,
			Replayed:      true,
		}, nil
	}

	// Резервация получена — эта доставка применяет callback
	result, err := p.applyCallback(ctx, providerID, verification)
	if err != nil {
		// Снимаем резервацию: повторная доставка провайдера обработается заново
		p.dedupStore.Release(ctx, verification.TransactionID)
		return nil, err
	}
	return result, nil
}

// applyCallback выполняет сверку суммы, переход статуса и запись результата.
// Вызывается только доставкой, выигравшей резервацию.
func (p *Processor) applyCallback(ctx context.Context, providerID string, v *domain.PaymentVerification) (*CallbackResult, error) {
	log := logger.Ctx(ctx)

	// 5. Платёжный запрос
	request, err := p.requests.GetByTransactionID(ctx, v.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			log.Warn().Msg("Callback для неизвестной транзакции")
		}
		metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		return nil, err
	}

	// 6. Сверка суммы и валюты с исходным запросом
	if v.Amount != request.Amount || v.Currency != request.Currency {
		log.Warn().
			Int64("callback_amount", v.Amount).
			Int64("request_amount", request.Amount).
			Str("callback_currency", v.Currency).
			Str("request_currency", request.Currency).
			Msg("Сумма callback не совпадает с платёжным запросом")
		metrics.CallbacksTotal.WithLabelValues(providerID, "rejected_amount").Inc()
		return nil, fmt.Errorf("%w: callback %d %s, запрос %d %s",
			domain.ErrAmountMismatch, v.Amount, v.Currency, request.Amount, request.Currency)
	}

	// 7. Переход статуса (PAID пишет invoice.created в outbox в той же транзакции)
	transition, err := p.stateMachine.Transition(ctx, request.BookingID, v.Status, v.TransactionID)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(providerID, "error").Inc()
		return nil, err
	}

	// 8. Записываем результат — повторные доставки вернут его без обработки
	recorded := &dedup.ProcessingResult{
		TransactionID: v.TransactionID,
		BookingID:     request.BookingID,
		Status:        transition.Payment.Status,
		RecordedAt:    time.Now().UTC(),
	}
	if err := p.dedupStore.Record(ctx, recorded); err != nil {
		// Статус уже применён; без записи повторная доставка упрётся в
		// идемпотентный переход — ошибку не возвращаем
		log.Error().Err(err).Msg("Ошибка записи результата callback")
	}

	switch transition.Payment.Status {
	case domain.PaymentStatusPaid:
		metrics.CallbacksTotal.WithLabelValues(providerID, "paid").Inc()
	case domain.PaymentStatusFailed:
		metrics.CallbacksTotal.WithLabelValues(providerID, "failed").Inc()
	}

	log.Info().
		Str("booking_id", request.BookingID).
		Str("status", string(transition.Payment.Status)).
		Bool("applied", transition.Applied).
		Msg("Callback обработан")

	return &CallbackResult{
		TransactionID: v.TransactionID,
		BookingID:     request.BookingID,
		Status:        transition.Payment.Status,
	}, nil
}
