// Package handler содержит HTTP обработчики Payment Service.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/dedup"
	"example.com/travel-booking/services/payment/internal/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleDomainError преобразует доменную ошибку в HTTP ответ.
//
// Коды для webhook фиксированы контрактом с провайдерами: 4xx останавливает
// повторные доставки (callback отвергнут окончательно), 5xx заставляет
// провайдера повторить доставку позже.
func HandleDomainError(c *gin.Context, err error, method string) {
	if err == nil {
		logger.Error().Str("method", method).Msg("HandleDomainError вызван с nil ошибкой — баг в коде")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	log := logger.FromContext(c.Request.Context())

	var httpStatus int
	var errorCode string

	switch {
	case errors.Is(err, domain.ErrUnknownProvider):
		httpStatus = http.StatusBadRequest
		errorCode = "unknown_provider"
	case errors.Is(err, domain.ErrAuthenticity):
		httpStatus = http.StatusUnauthorized
		errorCode = "authenticity_failure"
	case errors.Is(err, domain.ErrAmountMismatch):
		httpStatus = http.StatusConflict
		errorCode = "amount_mismatch"
	case errors.Is(err, domain.ErrInvalidTransition):
		httpStatus = http.StatusConflict
		errorCode = "invalid_transition"
	case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrRequestNotFound):
		httpStatus = http.StatusNotFound
		errorCode = "not_found"
	case errors.Is(err, domain.ErrInvalidAmount):
		httpStatus = http.StatusBadRequest
		errorCode = "invalid_amount"
	case errors.Is(err, domain.ErrStorageConflict):
		// Конкурентное обновление не разрешилось — провайдер повторит доставку
		httpStatus = http.StatusServiceUnavailable
		errorCode = "storage_conflict"
	case errors.Is(err, dedup.ErrInFlight):
		// Конкурентная доставка не завершилась за время ожидания
		httpStatus = http.StatusServiceUnavailable
		errorCode = "in_flight"
	default:
		httpStatus = http.StatusInternalServerError
		errorCode = "internal_error"
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	}

	if httpStatus < http.StatusInternalServerError {
		log.Warn().Err(err).Str("method", method).Str("error_code", errorCode).Msg("Запрос отклонён")
	}

	c.JSON(httpStatus, ErrorResponse{
		Error:   errorCode,
		Message: err.Error(),
	})
}
