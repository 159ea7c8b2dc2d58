// Package listener реализует обработку событий оплаты из Kafka.
// Invoice Service слушает invoice.events и выставляет счета: на одно
// бронирование — ровно один счёт, сколько бы раз событие ни доставилось.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"example.com/travel-booking/pkg/kafka"
	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/pkg/metrics"
	"example.com/travel-booking/services/invoice/internal/domain"
	"example.com/travel-booking/services/invoice/internal/renderer"
	"example.com/travel-booking/services/invoice/internal/repository"
)

// maxHandleRetries — количество повторов обработки сообщения до DLQ.
const maxHandleRetries = 3

// EventConsumer — источник событий оплаты.
type EventConsumer interface {
	ConsumeWithRetry(ctx context.Context, handler kafka.MessageHandler, maxRetries int) error
	Close() error
}

// Listener обрабатывает события invoice.created.
type Listener struct {
	consumer EventConsumer
	invoices repository.InvoiceRepository
	renderer renderer.Renderer
	store    renderer.ArtifactStore
}

// NewListener создаёт обработчик событий оплаты.
func NewListener(
	consumer EventConsumer,
	invoices repository.InvoiceRepository,
	r renderer.Renderer,
	store renderer.ArtifactStore,
) *Listener {
	return &Listener{
		consumer: consumer,
		invoices: invoices,
		renderer: r,
		store:    store,
	}
}

// Run запускает обработку событий из Kafka.
// Блокирует выполнение до отмены context.
func (l *Listener) Run(ctx context.Context) error {
	log := logger.Logger()
	log.Info().Msg("Запуск обработчика событий оплаты")
	return l.consumer.ConsumeWithRetry(ctx, l.HandleMessage, maxHandleRetries)
}

// Close закрывает consumer.
func (l *Listener) Close() error {
	return l.consumer.Close()
}

// HandleMessage обрабатывает одно событие invoice.created.
//
// Возврат ошибки приводит к повтору, затем к DLQ — поэтому ошибкой
// считаются только сбои, которые повтор может исправить. Дубликат счёта
// и битое сообщение подтверждаются без обработки; неудачная генерация PDF
// оставляет счёт в PENDING_PDF и тоже подтверждается — повторами
// генерации владеет sweep-воркер, а не Kafka.
func (l *Listener) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	log := logger.Ctx(ctx)

	var event domain.InvoiceCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().
			Err(err).
			Str("value", string(msg.Value)).
			Msg("Ошибка парсинга события оплаты")
		// Не ретраим — битое сообщение
		return nil
	}

	if err := event.Validate(); err != nil {
		log.Error().Err(err).Str("booking_id", event.BookingID).Msg("Невалидное событие оплаты")
		return nil
	}

	log.Info().
		Str("booking_id", event.BookingID).
		Str("transaction_id", event.TransactionID).
		Int64("amount", event.Amount).
		Msg("Получено событие оплаты")

	return l.issueInvoice(ctx, &event)
}

// issueInvoice выставляет счёт за оплаченное бронирование.
func (l *Listener) issueInvoice(ctx context.Context, event *domain.InvoiceCreatedEvent) error {
	log := logger.Ctx(ctx)

	// 1. Быстрая проверка существования — до создания черновика
	existing, err := l.invoices.GetByBookingAndType(ctx, event.BookingID, domain.InvoiceTypeBooking)
	if err == nil {
		log.Info().
			Str("booking_id", event.BookingID).
			Str("invoice_id", existing.ID).
			Str("status", string(existing.Status)).
			Msg("Счёт уже существует, событие пропущено")
		return nil
	}
	if !errors.Is(err, domain.ErrInvoiceNotFound) {
		return err
	}

	// 2. Создаём черновик. Уникальный индекс (booking_id, type) —
	// последний рубеж против конкурентной доставки того же события
	invoice := &domain.Invoice{
		ID:            uuid.New().String(),
		BookingID:     event.BookingID,
		OrderID:       event.OrderID,
		UserID:        event.UserID,
		Type:          domain.InvoiceTypeBooking,
		Amount:        event.Amount,
		Currency:      event.Currency,
		TransactionID: event.TransactionID,
		Status:        domain.InvoiceStatusDraft,
	}
	if err := invoice.Validate(); err != nil {
		log.Error().Err(err).Str("booking_id", event.BookingID).Msg("Невалидные данные счёта")
		return nil
	}

	if err := l.invoices.Create(ctx, invoice); err != nil {
		if errors.Is(err, domain.ErrDuplicateInvoice) {
			log.Info().
				Str("booking_id", event.BookingID).
				Msg("Счёт уже существует (конкурентная доставка), событие пропущено")
			return nil
		}
		return err
	}

	// 3. DRAFT → PENDING_PDF: счёт зафиксирован, осталась генерация
	invoice.Status = domain.InvoiceStatusPendingPDF
	if err := l.invoices.UpdateStatus(ctx, invoice); err != nil {
		return err
	}

	// 4. Генерация PDF и выставление
	if err := l.RenderAndIssue(ctx, invoice); err != nil {
		// Счёт остаётся в PENDING_PDF, sweep повторит генерацию.
		// Сообщение подтверждаем: счёт уже создан, повтор события
		// упрётся в дубликат
		log.Warn().
			Err(err).
			Str("invoice_id", invoice.ID).
			Msg("Генерация PDF не удалась, счёт остаётся в PENDING_PDF")
		return nil
	}

	return nil
}

// RenderAndIssue генерирует PDF, сохраняет артефакт и переводит счёт
// в ISSUED. Используется и при обработке события, и sweep-воркером.
func (l *Listener) RenderAndIssue(ctx context.Context, invoice *domain.Invoice) error {
	pdf, err := l.renderer.Render(ctx, invoice)
	if err != nil {
		metrics.InvoiceRenderFailuresTotal.Inc()
		return err
	}

	pdfURL, err := l.store.Save(ctx, invoice.ID, pdf)
	if err != nil {
		metrics.InvoiceRenderFailuresTotal.Inc()
		return err
	}

	invoice.MarkIssued(pdfURL, time.Now().UTC())
	if err := l.invoices.UpdateStatus(ctx, invoice); err != nil {
		return err
	}

	metrics.InvoicesIssuedTotal.WithLabelValues(string(invoice.Type)).Inc()

	logger.Ctx(ctx).Info().
		Str("invoice_id", invoice.ID).
		Str("booking_id", invoice.BookingID).
		Str("pdf_url", pdfURL).
		Msg("Счёт выставлен")

	return nil
}
