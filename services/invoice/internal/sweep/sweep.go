// Package sweep реализует фоновый повтор генерации PDF.
// Счета, зависшие в PENDING_PDF (рендерер был недоступен в момент
// обработки события), периодически добираются и доводятся до ISSUED.
package sweep

import (
	"context"
	"time"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/invoice/internal/domain"
	"example.com/travel-booking/services/invoice/internal/repository"
)

// Issuer доводит счёт до ISSUED: генерация PDF, сохранение артефакта,
// обновление статуса. Реализуется listener.Listener.
type Issuer interface {
	RenderAndIssue(ctx context.Context, invoice *domain.Invoice) error
}

// Config — настройки sweep-воркера.
type Config struct {
	// Interval — период между проходами.
	Interval time.Duration

	// Grace — минимальный возраст PENDING_PDF счёта для повтора.
	// Свежие счета ещё может доделать обработчик события.
	Grace time.Duration

	// BatchSize — количество счетов за один проход.
	BatchSize int
}

// Worker периодически повторяет генерацию PDF для зависших счетов.
type Worker struct {
	invoices repository.InvoiceRepository
	issuer   Issuer
	cfg      Config
}

// NewWorker создаёт sweep-воркер.
func NewWorker(invoices repository.InvoiceRepository, issuer Issuer, cfg Config) *Worker {
	return &Worker{
		invoices: invoices,
		issuer:   issuer,
		cfg:      cfg,
	}
}

// Run запускает воркер. Блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("interval", w.cfg.Interval).
		Dur("grace", w.cfg.Grace).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск sweep-воркера счетов")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка sweep-воркера счетов")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep обрабатывает одну пачку зависших счетов.
func (w *Worker) sweep(ctx context.Context) {
	log := logger.FromContext(ctx)

	stale, err := w.invoices.GetStalePendingPDF(ctx, w.cfg.Grace, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка выборки зависших счетов")
		return
	}
	if len(stale) == 0 {
		return
	}

	log.Info().Int("count", len(stale)).Msg("Повтор генерации PDF для зависших счетов")

	issued := 0
	for _, invoice := range stale {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.issuer.RenderAndIssue(ctx, invoice); err != nil {
			// Счёт остаётся в PENDING_PDF до следующего прохода
			log.Warn().
				Err(err).
				Str("invoice_id", invoice.ID).
				Str("booking_id", invoice.BookingID).
				Msg("Повторная генерация PDF не удалась")
			continue
		}
		issued++
	}

	if issued > 0 {
		log.Info().Int("issued", issued).Msg("Зависшие счета выставлены")
	}
}
