// Package repository содержит реализацию доступа к данным для Payment Service.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/travel-booking/pkg/kafka"
	"example.com/travel-booking/pkg/outbox"
	"example.com/travel-booking/services/payment/internal/domain"
)

// AggregateTypeBookingPayment — тип агрегата в таблице outbox.
const AggregateTypeBookingPayment = "booking_payment"

// PaymentRequestRepository определяет интерфейс для работы с платёжными запросами.
type PaymentRequestRepository interface {
	// Create создаёт новый платёжный запрос.
	Create(ctx context.Context, req *domain.PaymentRequest) error

	// GetByTransactionID возвращает запрос по идентификатору транзакции провайдера.
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRequest, error)
}

// BookingPaymentRepository определяет интерфейс для работы с оплатами бронирований.
type BookingPaymentRepository interface {
	// Create создаёт запись оплаты бронирования.
	Create(ctx context.Context, payment *domain.BookingPayment) error

	// GetByBookingID возвращает оплату по ID бронирования.
	GetByBookingID(ctx context.Context, bookingID string) (*domain.BookingPayment, error)

	// UpdateStatus обновляет статус через optimistic locking (CAS по version).
	// Возвращает domain.ErrStorageConflict, если version устарела.
	UpdateStatus(ctx context.Context, payment *domain.BookingPayment) error

	// UpdateStatusWithOutbox атомарно обновляет статус и пишет событие в outbox
	// в одной транзакции БД.
	UpdateStatusWithOutbox(ctx context.Context, payment *domain.BookingPayment, event *outbox.Outbox) error
}

// =============================================================================
// GORM модели
// =============================================================================

// PaymentRequestModel — GORM модель для таблицы payment_requests.
type PaymentRequestModel struct {
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey"`
	TransactionID string    `gorm:"column:transaction_id;type:varchar(100);not null;uniqueIndex"`
	BookingID     string    `gorm:"column:booking_id;type:varchar(36);not null;index"`
	OrderID       string    `gorm:"column:order_id;type:varchar(36);not null;index"`
	UserID        string    `gorm:"column:user_id;type:varchar(36);not null;index"`
	Provider      string    `gorm:"column:provider;type:varchar(50);not null"`
	Amount        int64     `gorm:"column:amount;not null"`
	Currency      string    `gorm:"column:currency;type:varchar(3);not null"`
	Description   string    `gorm:"column:description;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentRequestModel) TableName() string {
	return "payment_requests"
}

func (m *PaymentRequestModel) toDomain() *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		BookingID:     m.BookingID,
		OrderID:       m.OrderID,
		UserID:        m.UserID,
		Provider:      m.Provider,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

func requestModelFromDomain(r *domain.PaymentRequest) *PaymentRequestModel {
	return &PaymentRequestModel{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		BookingID:     r.BookingID,
		OrderID:       r.OrderID,
		UserID:        r.UserID,
		Provider:      r.Provider,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Description:   r.Description,
		CreatedAt:     r.CreatedAt,
	}
}

// BookingPaymentModel — GORM модель для таблицы booking_payments.
type BookingPaymentModel struct {
	BookingID string    `gorm:"column:booking_id;type:varchar(36);primaryKey"`
	OrderID   string    `gorm:"column:order_id;type:varchar(36);not null;index"`
	UserID    string    `gorm:"column:user_id;type:varchar(36);not null;index"`
	Amount    int64     `gorm:"column:amount;not null"`
	Currency  string    `gorm:"column:currency;type:varchar(3);not null"`
	Status    string    `gorm:"column:status;type:varchar(20);not null;index"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (BookingPaymentModel) TableName() string {
	return "booking_payments"
}

func (m *BookingPaymentModel) toDomain() *domain.BookingPayment {
	return &domain.BookingPayment{
		BookingID: m.BookingID,
		OrderID:   m.OrderID,
		UserID:    m.UserID,
		Amount:    m.Amount,
		Currency:  m.Currency,
		Status:    domain.PaymentStatus(m.Status),
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func paymentModelFromDomain(p *domain.BookingPayment) *BookingPaymentModel {
	return &BookingPaymentModel{
		BookingID: p.BookingID,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// =============================================================================
// PaymentRequestRepository — GORM реализация
// =============================================================================

type paymentRequestRepository struct {
	db *gorm.DB
}

// NewPaymentRequestRepository создаёт новый репозиторий платёжных запросов.
func NewPaymentRequestRepository(db *gorm.DB) PaymentRequestRepository {
	return &paymentRequestRepository{db: db}
}

// Create создаёт новый платёжный запрос.
func (r *paymentRequestRepository) Create(ctx context.Context, req *domain.PaymentRequest) error {
	model := requestModelFromDomain(req)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		// Проверяем на дубликат transaction_id
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}

	req.CreatedAt = model.CreatedAt
	return nil
}

// GetByTransactionID возвращает запрос по идентификатору транзакции провайдера.
func (r *paymentRequestRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRequest, error) {
	var model PaymentRequestModel

	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// =============================================================================
// BookingPaymentRepository — GORM реализация
// =============================================================================

type bookingPaymentRepository struct {
	db *gorm.DB
}

// NewBookingPaymentRepository создаёт новый репозиторий оплат бронирований.
func NewBookingPaymentRepository(db *gorm.DB) BookingPaymentRepository {
	return &bookingPaymentRepository{db: db}
}

// Create создаёт запись оплаты бронирования.
func (r *bookingPaymentRepository) Create(ctx context.Context, payment *domain.BookingPayment) error {
	model := paymentModelFromDomain(payment)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}

	payment.CreatedAt = model.CreatedAt
	payment.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByBookingID возвращает оплату по ID бронирования.
func (r *bookingPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
	var model BookingPaymentModel

	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateStatus обновляет статус через optimistic locking.
// WHERE по booking_id + version: конкурентное обновление с той же version
// затронет 0 строк и вернёт ErrStorageConflict.
func (r *bookingPaymentRepository) UpdateStatus(ctx context.Context, payment *domain.BookingPayment) error {
	return r.updateStatusTx(r.db.WithContext(ctx), payment)
}

// UpdateStatusWithOutbox атомарно обновляет статус и пишет событие в outbox.
// Если CAS не прошёл, транзакция откатывается и событие не публикуется.
func (r *bookingPaymentRepository) UpdateStatusWithOutbox(ctx context.Context, payment *domain.BookingPayment, event *outbox.Outbox) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.updateStatusTx(tx, payment); err != nil {
			return err
		}
		return outbox.NewOutboxRepository(tx, AggregateTypeBookingPayment).Create(ctx, event)
	})
}

func (r *bookingPaymentRepository) updateStatusTx(tx *gorm.DB, payment *domain.BookingPayment) error {
	now := time.Now()

	result := tx.Model(&BookingPaymentModel{}).
		Where("booking_id = ? AND version = ?", payment.BookingID, payment.Version).
		Updates(map[string]interface{}{
			"status":     string(payment.Status),
			"version":    payment.Version + 1,
			"updated_at": now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStorageConflict
	}

	payment.Version++
	payment.UpdatedAt = now
	return nil
}

// =============================================================================
// События
// =============================================================================

// InvoiceCreatedEvent — событие для Invoice Service: бронирование оплачено,
// нужно выставить счёт. Публикуется через outbox с ключом booking_id.
type InvoiceCreatedEvent struct {
	BookingID     string    `json:"booking_id"`     // ID бронирования
	OrderID       string    `json:"order_id"`       // ID заказа
	UserID        string    `json:"user_id"`        // ID пользователя
	TransactionID string    `json:"transaction_id"` // ID транзакции провайдера
	Amount        int64     `json:"amount"`         // Сумма в минорных единицах
	Currency      string    `json:"currency"`       // Валюта (ISO 4217)
	PaidAt        time.Time `json:"paid_at"`        // Время подтверждения оплаты
}

// NewInvoiceOutboxRecord формирует запись outbox для события invoice.created.
func NewInvoiceOutboxRecord(payment *domain.BookingPayment, transactionID string, headers map[string]string) (*outbox.Outbox, error) {
	event := InvoiceCreatedEvent{
		BookingID:     payment.BookingID,
		OrderID:       payment.OrderID,
		UserID:        payment.UserID,
		TransactionID: transactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		PaidAt:        time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &outbox.Outbox{
		ID:            uuid.New().String(),
		AggregateType: AggregateTypeBookingPayment,
		AggregateID:   payment.BookingID,
		EventType:     "invoice.created",
		Topic:         kafka.TopicInvoiceEvents,
		MessageKey:    payment.BookingID, // Партиционирование по booking_id — порядок событий бронирования
		Payload:       payload,
		Headers:       headers,
	}, nil
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
