package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/domain"
)

// headerStripeSignature — заголовок с подписью webhook Stripe.
const headerStripeSignature = "Stripe-Signature"

// StripeConfig содержит настройки Stripe стратегии.
type StripeConfig struct {
	APIKey        string // Секретный API ключ (sk_...)
	WebhookSecret string // Секрет подписи webhook (whsec_...)
}

// StripeStrategy — стратегия оплаты через Stripe PaymentIntents.
type StripeStrategy struct {
	webhookSecret string
}

// NewStripeStrategy создаёт Stripe стратегию.
func NewStripeStrategy(cfg StripeConfig) *StripeStrategy {
	stripe.Key = cfg.APIKey
	return &StripeStrategy{
		webhookSecret: cfg.WebhookSecret,
	}
}

// Provider возвращает идентификатор провайдера.
func (s *StripeStrategy) Provider() string {
	return "stripe"
}

// CreatePayment создаёт PaymentIntent.
// booking_id кладём в metadata — он вернётся в callback.
func (s *StripeStrategy) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"booking_id": req.BookingID,
			"order_id":   req.OrderID,
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания PaymentIntent: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("transaction_id", pi.ID).
		Str("booking_id", req.BookingID).
		Int64("amount", req.Amount).
		Msg("Создан платёж Stripe")

	return &domain.PaymentResponse{
		TransactionID: pi.ID,
		ClientSecret:  pi.ClientSecret,
	}, nil
}

// VerifyCallback проверяет подпись webhook и извлекает результат платежа.
func (s *StripeStrategy) VerifyCallback(ctx context.Context, cb Callback) (*domain.PaymentVerification, error) {
	event, err := webhook.ConstructEvent(cb.Body, cb.Headers[headerStripeSignature], s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %v", domain.ErrAuthenticity, err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("ошибка разбора PaymentIntent из события %s: %w", event.Type, err)
	}

	return &domain.PaymentVerification{
		TransactionID: pi.ID,
		Provider:      s.Provider(),
		Status:        mapStripeEventType(string(event.Type)),
		Amount:        pi.Amount,
		Currency:      strings.ToUpper(string(pi.Currency)),
		RawEventType:  string(event.Type),
	}, nil
}

// mapStripeEventType переводит тип события Stripe в статус оплаты.
// Неизвестные события считаем промежуточными (PENDING) — состояние не меняется.
func mapStripeEventType(eventType string) domain.PaymentStatus {
	switch eventType {
	case "payment_intent.succeeded":
		return domain.PaymentStatusPaid
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
