// Blacklist — проверка отозванных токенов через общий Redis.
// Записи создаёт внешний сервис аутентификации при logout/бане;
// здесь они только читаются.
package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Префиксы ключей Redis. Формат общий с сервисом аутентификации —
// менять только синхронно с ним.
const (
	prefixToken = "jwt:blacklist:"   // jwt:blacklist:{jti}
	prefixUser  = "jwt:invalidated:" // jwt:invalidated:{userID} → unix timestamp
)

// Blacklist читает отозванные токены из Redis.
type Blacklist struct {
	redis *redis.Client
}

// NewBlacklist создаёт blacklist поверх существующего подключения.
func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{redis: client}
}

// Check проверяет, отозван ли конкретный токен по jti.
func (b *Blacklist) Check(ctx context.Context, jti string) (bool, error) {
	exists, err := b.redis.Exists(ctx, prefixToken+jti).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка проверки blacklist: %w", err)
	}
	return exists > 0, nil
}

// IsUserInvalidated проверяет массовый отзыв: все токены пользователя,
// выданные до записанного момента инвалидации, считаются отозванными.
func (b *Blacklist) IsUserInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	val, err := b.redis.Get(ctx, prefixUser+userID).Result()
	if err == redis.Nil {
		return false, nil // Записи нет — массового отзыва не было
	}
	if err != nil {
		return false, fmt.Errorf("ошибка проверки инвалидации пользователя: %w", err)
	}

	invalidatedAt, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("ошибка парсинга timestamp инвалидации: %w", err)
	}

	return issuedAt.Unix() < invalidatedAt, nil
}
