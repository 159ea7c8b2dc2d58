// Package gateway содержит стратегии платёжных провайдеров и их реестр.
// Каждый провайдер инкапсулирует свой протокол (создание платежа, проверка
// подписи callback) за общим интерфейсом Strategy.
package gateway

import (
	"context"

	"example.com/travel-booking/services/payment/internal/domain"
)

// Callback — сырое содержимое callback запроса провайдера.
// Тело передаётся без изменений: проверка подписи требует исходных байтов.
type Callback struct {
	Body    []byte            // Сырое тело запроса
	Headers map[string]string // Заголовки запроса (подпись и т.д.)
}

// Strategy — стратегия работы с конкретным платёжным провайдером.
type Strategy interface {
	// Provider возвращает идентификатор провайдера ("stripe", "alipay").
	Provider() string

	// CreatePayment создаёт платёж у провайдера.
	// Возвращает TransactionID, по которому провайдер будет слать callback.
	CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error)

	// VerifyCallback проверяет подлинность callback и извлекает результат.
	// При невалидной подписи возвращает ошибку, оборачивающую
	// domain.ErrAuthenticity — никогда не статус.
	VerifyCallback(ctx context.Context, cb Callback) (*domain.PaymentVerification, error)
}
