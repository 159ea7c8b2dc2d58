// Package repository содержит реализацию доступа к данным для Invoice Service.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"example.com/travel-booking/services/invoice/internal/domain"
)

// InvoiceRepository определяет интерфейс для работы со счетами в БД.
type InvoiceRepository interface {
	// Create создаёт новый счёт.
	// Уникальный индекс (booking_id, type) — последний рубеж идемпотентности:
	// дубликат возвращает domain.ErrDuplicateInvoice.
	Create(ctx context.Context, invoice *domain.Invoice) error

	// GetByBookingAndType возвращает счёт по бронированию и типу.
	GetByBookingAndType(ctx context.Context, bookingID string, invoiceType domain.InvoiceType) (*domain.Invoice, error)

	// UpdateStatus обновляет статус счёта.
	UpdateStatus(ctx context.Context, invoice *domain.Invoice) error

	// GetStalePendingPDF возвращает счета в PENDING_PDF, не обновлявшиеся
	// дольше указанного времени. Используется sweep-воркером.
	GetStalePendingPDF(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Invoice, error)
}

// =============================================================================
// GORM модель
// =============================================================================

// InvoiceModel — GORM модель для таблицы invoices.
type InvoiceModel struct {
	ID            string     `gorm:"column:id;type:varchar(36);primaryKey"`
	BookingID     string     `gorm:"column:booking_id;type:varchar(36);not null;uniqueIndex:idx_invoices_booking_type"`
	Type          string     `gorm:"column:type;type:varchar(20);not null;uniqueIndex:idx_invoices_booking_type"`
	OrderID       string     `gorm:"column:order_id;type:varchar(36);not null;index"`
	UserID        string     `gorm:"column:user_id;type:varchar(36);not null;index"`
	Amount        int64      `gorm:"column:amount;not null"`
	Currency      string     `gorm:"column:currency;type:varchar(3);not null"`
	TransactionID string     `gorm:"column:transaction_id;type:varchar(100);not null"`
	Status        string     `gorm:"column:status;type:varchar(20);not null;index"`
	PDFURL        string     `gorm:"column:pdf_url;type:text"`
	IssuedAt      *time.Time `gorm:"column:issued_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (InvoiceModel) TableName() string {
	return "invoices"
}

func (m *InvoiceModel) toDomain() *domain.Invoice {
	return &domain.Invoice{
		ID:            m.ID,
		BookingID:     m.BookingID,
		OrderID:       m.OrderID,
		UserID:        m.UserID,
		Type:          domain.InvoiceType(m.Type),
		Amount:        m.Amount,
		Currency:      m.Currency,
		TransactionID: m.TransactionID,
		Status:        domain.InvoiceStatus(m.Status),
		PDFURL:        m.PDFURL,
		IssuedAt:      m.IssuedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func modelFromDomain(i *domain.Invoice) *InvoiceModel {
	return &InvoiceModel{
		ID:            i.ID,
		BookingID:     i.BookingID,
		Type:          string(i.Type),
		OrderID:       i.OrderID,
		UserID:        i.UserID,
		Amount:        i.Amount,
		Currency:      i.Currency,
		TransactionID: i.TransactionID,
		Status:        string(i.Status),
		PDFURL:        i.PDFURL,
		IssuedAt:      i.IssuedAt,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// invoiceRepository — GORM реализация InvoiceRepository.
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository создаёт новый репозиторий счетов.
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create создаёт новый счёт.
func (r *invoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	model := modelFromDomain(invoice)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateInvoice
		}
		return err
	}

	invoice.CreatedAt = model.CreatedAt
	invoice.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByBookingAndType возвращает счёт по бронированию и типу.
func (r *invoiceRepository) GetByBookingAndType(ctx context.Context, bookingID string, invoiceType domain.InvoiceType) (*domain.Invoice, error) {
	var model InvoiceModel

	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND type = ?", bookingID, string(invoiceType)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateStatus обновляет статус счёта.
func (r *invoiceRepository) UpdateStatus(ctx context.Context, invoice *domain.Invoice) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&InvoiceModel{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"status":     string(invoice.Status),
			"pdf_url":    invoice.PDFURL,
			"issued_at":  invoice.IssuedAt,
			"updated_at": now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvoiceNotFound
	}

	invoice.UpdatedAt = now
	return nil
}

// GetStalePendingPDF возвращает счета в PENDING_PDF старше указанного времени.
func (r *invoiceRepository) GetStalePendingPDF(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Invoice, error) {
	var models []InvoiceModel

	threshold := time.Now().Add(-olderThan)

	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(domain.InvoiceStatusPendingPDF), threshold).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	invoices := make([]*domain.Invoice, 0, len(models))
	for _, m := range models {
		invoices = append(invoices, m.toDomain())
	}

	return invoices, nil
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
