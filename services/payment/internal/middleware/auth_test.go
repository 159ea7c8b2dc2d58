// Package middleware содержит unit тесты для middleware Payment Service.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"example.com/travel-booking/pkg/jwt"
)

// mockTokenValidator — мок для TokenValidator.
type mockTokenValidator struct {
	claims *jwt.Claims
	err    error
}

func (m *mockTokenValidator) ValidateWithBlacklist(ctx context.Context, tokenString string) (*jwt.Claims, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

// setupAuthRouter создаёт router с auth middleware и эхо-обработчиком.
func setupAuthRouter(validator TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(validator).Handle())
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	validator := &mockTokenValidator{claims: &jwt.Claims{UserID: "user-42"}}
	r := setupAuthRouter(validator)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-42")
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	r := setupAuthRouter(&mockTokenValidator{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	validator := &mockTokenValidator{err: errors.New("подпись не совпадает")}
	r := setupAuthRouter(validator)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"корректный заголовок", "Bearer token123", "token123"},
		{"нижний регистр", "bearer token123", "token123"},
		{"пустой заголовок", "", ""},
		{"без префикса", "token123", ""},
		{"неверный префикс", "Basic dXNlcg==", ""},
		{"пробелы вокруг токена", "Bearer  token123 ", "token123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}
