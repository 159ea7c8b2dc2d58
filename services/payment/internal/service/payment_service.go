// Package service содержит бизнес-логику Payment Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/gateway"
	"example.com/travel-booking/services/payment/internal/repository"
)

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// CreatePaymentRequest — запрос на создание платежа за бронирование.
type CreatePaymentRequest struct {
	BookingID   string // ID бронирования
	OrderID     string // ID заказа
	UserID      string // ID пользователя
	Provider    string // Платёжный провайдер (stripe, alipay)
	Amount      int64  // Сумма в минорных единицах
	Currency    string // Валюта (ISO 4217)
	Description string // Описание для страницы оплаты
}

// CreatePaymentResult — результат создания платежа.
type CreatePaymentResult struct {
	TransactionID string // ID транзакции у провайдера
	RedirectURL   string // URL страницы оплаты (Alipay)
	ClientSecret  string // Client secret для подтверждения (Stripe)
}

// PaymentService — интерфейс бизнес-логики платежей.
type PaymentService interface {
	// CreatePayment создаёт платёж у провайдера и регистрирует платёжный запрос.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)

	// Refund переводит оплаченное бронирование в REFUNDED.
	Refund(ctx context.Context, bookingID string) (*domain.BookingPayment, error)

	// GetStatus возвращает текущее состояние оплаты бронирования.
	GetStatus(ctx context.Context, bookingID string) (*domain.BookingPayment, error)
}

// =============================================================================
// Реализация сервиса
// =============================================================================

// paymentService — реализация PaymentService.
type paymentService struct {
	registry     *gateway.Registry
	requests     repository.PaymentRequestRepository
	payments     repository.BookingPaymentRepository
	stateMachine *StateMachine
}

// NewPaymentService создаёт новый сервис платежей.
func NewPaymentService(
	registry *gateway.Registry,
	requests repository.PaymentRequestRepository,
	payments repository.BookingPaymentRepository,
	stateMachine *StateMachine,
) PaymentService {
	return &paymentService{
		registry:     registry,
		requests:     requests,
		payments:     payments,
		stateMachine: stateMachine,
	}
}

// CreatePayment создаёт платёж у провайдера.
// Оплата бронирования регистрируется в PENDING до первого callback.
// Повторный вызов для бронирования в PENDING допустим: пользователь может
// бросить страницу оплаты и начать заново, возможно с другим провайдером.
func (s *paymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	log := logger.Ctx(ctx)

	strategy, err := s.registry.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	// 1. Регистрируем оплату бронирования в PENDING
	payment := &domain.BookingPayment{
		BookingID: req.BookingID,
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    domain.PaymentStatusPending,
	}
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if !errors.Is(err, domain.ErrDuplicateRequest) {
			return nil, fmt.Errorf("ошибка регистрации оплаты бронирования: %w", err)
		}

		// Оплата уже зарегистрирована — новая попытка допустима только из PENDING
		existing, getErr := s.payments.GetByBookingID(ctx, req.BookingID)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status != domain.PaymentStatusPending {
			return nil, fmt.Errorf("%w: оплата бронирования %s в статусе %s",
				domain.ErrInvalidTransition, req.BookingID, existing.Status)
		}
	}

	// 2. Создаём платёж у провайдера
	paymentRequest := &domain.PaymentRequest{
		ID:          uuid.New().String(),
		BookingID:   req.BookingID,
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Provider:    req.Provider,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}

	response, err := strategy.CreatePayment(ctx, paymentRequest)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания платежа у провайдера %s: %w", req.Provider, err)
	}

	// 3. Сохраняем платёжный запрос — по transaction_id callback найдёт бронирование
	paymentRequest.TransactionID = response.TransactionID
	if err := paymentRequest.Validate(); err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, paymentRequest); err != nil {
		log.Error().Err(err).
			Str("transaction_id", response.TransactionID).
			Str("booking_id", req.BookingID).
			Msg("Ошибка сохранения платёжного запроса")
		return nil, fmt.Errorf("ошибка сохранения платёжного запроса: %w", err)
	}

	log.Info().
		Str("transaction_id", response.TransactionID).
		Str("booking_id", req.BookingID).
		Str("provider", req.Provider).
		Int64("amount", req.Amount).
		Msg("Платёж создан")

	return &CreatePaymentResult{
		TransactionID: response.TransactionID,
		RedirectURL:   response.RedirectURL,
		ClientSecret:  response.ClientSecret,
	}, nil
}

// Refund переводит оплаченное бронирование в REFUNDED.
// Допустим только из PAID; повторный возврат — идемпотентный no-op.
func (s *paymentService) Refund(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
	result, err := s.stateMachine.Transition(ctx, bookingID, domain.PaymentStatusRefunded, "")
	if err != nil {
		return nil, err
	}

	if result.Applied {
		logger.Ctx(ctx).Info().
			Str("booking_id", bookingID).
			Msg("Возврат оплаты выполнен")
	}

	return result.Payment, nil
}

// GetStatus возвращает текущее состояние оплаты бронирования.
func (s *paymentService) GetStatus(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
	return s.payments.GetByBookingID(ctx, bookingID)
}
