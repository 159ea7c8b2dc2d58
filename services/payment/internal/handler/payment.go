package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/service"
)

// PaymentHandler обрабатывает REST API платежей.
type PaymentHandler struct {
	payments service.PaymentService
}

// NewPaymentHandler создаёт обработчик платежей.
func NewPaymentHandler(payments service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// createPaymentRequest — тело запроса на создание платежа.
type createPaymentRequest struct {
	BookingID   string `json:"booking_id" binding:"required"`
	OrderID     string `json:"order_id" binding:"required"`
	Provider    string `json:"provider" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Description string `json:"description"`
}

// createPaymentResponse — ответ на создание платежа.
type createPaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
}

// paymentStatusResponse — состояние оплаты бронирования.
type paymentStatusResponse struct {
	BookingID string `json:"booking_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// CreatePayment — POST /api/v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	result, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentRequest{
		BookingID:   req.BookingID,
		OrderID:     req.OrderID,
		UserID:      c.GetString("user_id"),
		Provider:    req.Provider,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		HandleDomainError(c, err, "CreatePayment")
		return
	}

	c.JSON(http.StatusCreated, createPaymentResponse{
		TransactionID: result.TransactionID,
		RedirectURL:   result.RedirectURL,
		ClientSecret:  result.ClientSecret,
	})
}

// Refund — POST /api/v1/payments/:bookingID/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	bookingID := c.Param("bookingID")

	payment, err := h.payments.Refund(c.Request.Context(), bookingID)
	if err != nil {
		HandleDomainError(c, err, "Refund")
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(payment))
}

// GetStatus — GET /api/v1/payments/:bookingID.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	bookingID := c.Param("bookingID")

	payment, err := h.payments.GetStatus(c.Request.Context(), bookingID)
	if err != nil {
		HandleDomainError(c, err, "GetStatus")
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(payment))
}

func toStatusResponse(p *domain.BookingPayment) paymentStatusResponse {
	return paymentStatusResponse{
		BookingID: p.BookingID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		UpdatedAt: p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
