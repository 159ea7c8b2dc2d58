package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/travel-booking/pkg/jwt"
	"example.com/travel-booking/pkg/logger"
)

// TokenValidator — интерфейс для валидации токенов.
// Позволяет мокировать jwt.Manager в тестах.
type TokenValidator interface {
	ValidateWithBlacklist(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware — middleware для проверки JWT токенов.
// Токены выпускает внешний сервис аутентификации; здесь проверяются
// подпись, срок действия, издатель и blacklist.
type AuthMiddleware struct {
	tokenValidator TokenValidator
}

// NewAuthMiddleware создаёт новый middleware для аутентификации.
// Принимает TokenValidator (обычно *jwt.Manager).
func NewAuthMiddleware(tokenValidator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		tokenValidator: tokenValidator,
	}
}

// Handle возвращает Gin handler function для middleware.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		token := extractBearerToken(c)
		if token == "" {
			log.Debug().Msg("Отсутствует токен авторизации")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется авторизация",
			})
			return
		}

		claims, err := m.tokenValidator.ValidateWithBlacklist(ctx, token)
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка валидации токена")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Невалидный токен",
			})
			return
		}

		// Сохраняем данные пользователя в контекст Gin
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("jti", claims.ID)

		log.Debug().
			Str("user_id", claims.UserID).
			Str("jti", claims.ID).
			Msg("Пользователь аутентифицирован")

		c.Next()
	}
}

// extractBearerToken извлекает токен из Authorization header.
// Формат: "Bearer <token>", префикс регистронезависимый.
func extractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
