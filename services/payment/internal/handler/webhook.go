package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/travel-booking/services/payment/internal/gateway"
	"example.com/travel-booking/services/payment/internal/processor"
)

// maxCallbackBodySize — предел размера тела callback (1 МБ).
// Реальные уведомления провайдеров на порядки меньше.
const maxCallbackBodySize = 1 << 20

// CallbackProcessor — конвейер обработки callback.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, providerID string, cb gateway.Callback) (*processor.CallbackResult, error)
}

// WebhookHandler обрабатывает callback платёжных провайдеров.
type WebhookHandler struct {
	processor CallbackProcessor
}

// NewWebhookHandler создаёт обработчик webhook.
func NewWebhookHandler(p CallbackProcessor) *WebhookHandler {
	return &WebhookHandler{processor: p}
}

// webhookResponse — ответ провайдеру на callback.
type webhookResponse struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// HandleWebhook — POST /webhooks/:provider.
//
// Тело запроса передаётся стратегии провайдера как есть: проверка подписи
// считается от сырых байт, любая нормализация её сломает.
//
// 200 — callback применён или это повторная доставка уже применённого.
// 400 — неизвестный провайдер или нечитаемое тело.
// 401 — callback не прошёл проверку подлинности.
// 409 — сумма callback не совпадает с платёжным запросом.
// 5xx — временная ошибка, провайдер повторит доставку.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerID := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_body",
			Message: "не удалось прочитать тело callback",
		})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}

	result, err := h.processor.HandleCallback(c.Request.Context(), providerID, gateway.Callback{
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		HandleDomainError(c, err, "HandleWebhook")
		return
	}

	c.JSON(http.StatusOK, webhookResponse{
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		Replayed:      result.Replayed,
	})
}
