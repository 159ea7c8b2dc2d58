package gateway

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/google/uuid"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/domain"
)

// AlipayConfig содержит настройки Alipay стратегии.
type AlipayConfig struct {
	AppID        string // ID приложения
	PrivateKey   string // Приватный ключ приложения (PEM)
	PublicCert   string // Публичный ключ Alipay для проверки подписи (PEM)
	IsProduction bool   // Боевое окружение
	NotifyURL    string // URL для асинхронных уведомлений
}

// AlipayStrategy — стратегия оплаты через Alipay (page pay + async notify).
type AlipayStrategy struct {
	client     *alipay.Client
	publicCert string
	notifyURL  string
}

// NewAlipayStrategy создаёт Alipay стратегию.
func NewAlipayStrategy(cfg AlipayConfig) (*AlipayStrategy, error) {
	client, err := alipay.NewClient(cfg.AppID, cfg.PrivateKey, cfg.IsProduction)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Alipay клиента: %w", err)
	}
	client.AutoVerifySign([]byte(cfg.PublicCert))

	return &AlipayStrategy{
		client:     client,
		publicCert: cfg.PublicCert,
		notifyURL:  cfg.NotifyURL,
	}, nil
}

// Provider возвращает идентификатор провайдера.
func (s *AlipayStrategy) Provider() string {
	return "alipay"
}

// CreatePayment создаёт платёж через page pay.
// out_trade_no генерируем сами — Alipay вернёт его в callback как
// идентификатор транзакции.
func (s *AlipayStrategy) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	transactionID := "alipay-" + uuid.New().String()

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", transactionID)
	bm.Set("total_amount", minorUnitsToYuan(req.Amount))
	bm.Set("subject", req.Description)
	bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
	bm.Set("timeout_express", "30m")
	if s.notifyURL != "" {
		bm.Set("notify_url", s.notifyURL)
	}

	payURL, err := s.client.TradePagePay(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания платежа Alipay: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("transaction_id", transactionID).
		Str("booking_id", req.BookingID).
		Int64("amount", req.Amount).
		Msg("Создан платёж Alipay")

	return &domain.PaymentResponse{
		TransactionID: transactionID,
		RedirectURL:   payURL,
	}, nil
}

// VerifyCallback разбирает form-urlencoded уведомление и проверяет подпись.
func (s *AlipayStrategy) VerifyCallback(ctx context.Context, cb Callback) (*domain.PaymentVerification, error) {
	// gopay разбирает уведомление из *http.Request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(cb.Body))
	if err != nil {
		return nil, fmt.Errorf("ошибка подготовки запроса для разбора уведомления: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	notify, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора уведомления Alipay: %w", err)
	}

	ok, err := alipay.VerifySign(s.publicCert, notify)
	if err != nil {
		return nil, fmt.Errorf("%w: alipay: %v", domain.ErrAuthenticity, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: alipay: подпись не совпадает", domain.ErrAuthenticity)
	}

	amount, err := yuanToMinorUnits(notify.Get("total_amount"))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора суммы уведомления: %w", err)
	}

	tradeStatus := notify.Get("trade_status")

	return &domain.PaymentVerification{
		TransactionID: notify.Get("out_trade_no"),
		Provider:      s.Provider(),
		Status:        mapAlipayTradeStatus(tradeStatus),
		Amount:        amount,
		Currency:      "CNY",
		RawEventType:  tradeStatus,
	}, nil
}

// mapAlipayTradeStatus переводит trade_status в статус оплаты.
func mapAlipayTradeStatus(status string) domain.PaymentStatus {
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return domain.PaymentStatusPaid
	case "TRADE_CLOSED":
		return domain.PaymentStatusFailed
	default:
		// WAIT_BUYER_PAY и неизвестные статусы — промежуточные
		return domain.PaymentStatusPending
	}
}

// minorUnitsToYuan форматирует сумму в фэнях как юани с двумя знаками.
func minorUnitsToYuan(amount int64) string {
	return fmt.Sprintf("%.2f", float64(amount)/100)
}

// yuanToMinorUnits разбирает сумму в юанях и переводит в фэни.
func yuanToMinorUnits(value string) (int64, error) {
	yuan, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(yuan * 100)), nil
}
