package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/service"
)

// MockPaymentService — мок для PaymentService.
type MockPaymentService struct {
	CreatePaymentFunc func(ctx context.Context, req service.CreatePaymentRequest) (*service.CreatePaymentResult, error)
	RefundFunc        func(ctx context.Context, bookingID string) (*domain.BookingPayment, error)
	GetStatusFunc     func(ctx context.Context, bookingID string) (*domain.BookingPayment, error)
}

func (m *MockPaymentService) CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*service.CreatePaymentResult, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockPaymentService) Refund(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockPaymentService) GetStatus(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, bookingID)
	}
	return nil, nil
}

// setupPaymentRouter создаёт Gin router с установленным user_id
// (имитация JWT middleware).
func setupPaymentRouter(svc service.PaymentService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})

	h := NewPaymentHandler(svc)
	r.POST("/api/v1/payments", h.CreatePayment)
	r.GET("/api/v1/payments/:bookingID", h.GetStatus)
	r.POST("/api/v1/payments/:bookingID/refund", h.Refund)

	return r
}

func paidBookingPayment() *domain.BookingPayment {
	return &domain.BookingPayment{
		BookingID: "booking-42",
		OrderID:   "order-42",
		UserID:    "user-42",
		Amount:    15000,
		Currency:  "EUR",
		Status:    domain.PaymentStatusPaid,
		Version:   2,
		UpdatedAt: time.Now(),
	}
}

func TestCreatePaymentHandler(t *testing.T) {
	mock := &MockPaymentService{
		CreatePaymentFunc: func(ctx context.Context, req service.CreatePaymentRequest) (*service.CreatePaymentResult, error) {
			assert.Equal(t, "user-42", req.UserID, "user_id берётся из JWT, не из тела")
			assert.Equal(t, "booking-42", req.BookingID)
			return &service.CreatePaymentResult{
				TransactionID: "pi_test_123",
				ClientSecret:  "pi_test_123_secret",
			}, nil
		},
	}
	r := setupPaymentRouter(mock, "user-42")

	body, _ := json.Marshal(map[string]any{
		"booking_id": "booking-42",
		"order_id":   "order-42",
		"provider":   "stripe",
		"amount":     15000,
		"currency":   "EUR",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp createPaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pi_test_123", resp.TransactionID)
	assert.Equal(t, "pi_test_123_secret", resp.ClientSecret)
}

func TestCreatePaymentHandler_InvalidBody(t *testing.T) {
	r := setupPaymentRouter(&MockPaymentService{}, "user-42")

	tests := []struct {
		name string
		body string
	}{
		{"пустое тело", `{}`},
		{"нет booking_id", `{"order_id":"o","provider":"stripe","amount":100,"currency":"EUR"}`},
		{"невалидная валюта", `{"booking_id":"b","order_id":"o","provider":"stripe","amount":100,"currency":"EURO"}`},
		{"не JSON", `не json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetStatusHandler(t *testing.T) {
	mock := &MockPaymentService{
		GetStatusFunc: func(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
			if bookingID != "booking-42" {
				return nil, domain.ErrBookingNotFound
			}
			return paidBookingPayment(), nil
		},
	}
	r := setupPaymentRouter(mock, "user-42")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/booking-42", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp paymentStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "booking-42", resp.BookingID)
	assert.Equal(t, "PAID", resp.Status)
	assert.Equal(t, int64(15000), resp.Amount)

	// Неизвестное бронирование
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/booking-unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundHandler(t *testing.T) {
	mock := &MockPaymentService{
		RefundFunc: func(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
			payment := paidBookingPayment()
			payment.Status = domain.PaymentStatusRefunded
			return payment, nil
		},
	}
	r := setupPaymentRouter(mock, "user-42")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments/booking-42/refund", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp paymentStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "REFUNDED", resp.Status)
}

func TestRefundHandler_InvalidTransition(t *testing.T) {
	mock := &MockPaymentService{
		RefundFunc: func(ctx context.Context, bookingID string) (*domain.BookingPayment, error) {
			return nil, domain.ErrInvalidTransition
		},
	}
	r := setupPaymentRouter(mock, "user-42")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments/booking-42/refund", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}
