// Package jwt предоставляет валидацию JWT токенов на основе RS256.
// Токены выдаёт внешний сервис аутентификации; здесь используется
// только публичный ключ для верификации подписи.
package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Claims содержит данные JWT токена.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`        // ID пользователя
	Role   string `json:"role,omitempty"` // Роль пользователя (опционально)
}

// Manager валидирует JWT токены, подписанные RS256.
type Manager struct {
	publicKey *rsa.PublicKey // Публичный ключ (для верификации)
	blacklist *Blacklist     // Blacklist для отзыва токенов (опционально)
	issuer    string         // Ожидаемый издатель токена
}

// Config содержит параметры для создания Manager.
type Config struct {
	PublicKeyPath string // Путь к публичному ключу (обязательно)
	Issuer        string // Ожидаемый издатель токена
}

// NewManager создаёт новый валидатор JWT токенов.
func NewManager(cfg Config) (*Manager, error) {
	publicKey, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки публичного ключа: %w", err)
	}

	return &Manager{
		publicKey: publicKey,
		issuer:    cfg.Issuer,
	}, nil
}

// ValidateToken проверяет подпись и claims токена.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем, что используется правильный алгоритм
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", token.Header["alg"])
		}
		return m.publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("ошибка валидации токена: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("невалидные claims токена")
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("неожиданный издатель токена: %s", claims.Issuer)
	}

	return claims, nil
}

// GetTokenID возвращает jti (ID токена) без полной валидации.
// Используется для проверки blacklist до полной валидации.
func (m *Manager) GetTokenID(tokenString string) (string, error) {
	// Парсим без валидации подписи (только для извлечения jti)
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", fmt.Errorf("ошибка парсинга токена: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", fmt.Errorf("невалидные claims")
	}

	return claims.ID, nil
}

// SetBlacklist устанавливает blacklist для проверки отозванных токенов.
func (m *Manager) SetBlacklist(bl *Blacklist) {
	m.blacklist = bl
}

// Blacklist возвращает установленный blacklist (nil, если не настроен).
func (m *Manager) Blacklist() *Blacklist {
	return m.blacklist
}

// ValidateWithBlacklist проверяет токен + blacklist.
// Возвращает ошибку, если токен отозван или невалиден.
func (m *Manager) ValidateWithBlacklist(ctx context.Context, tokenString string) (*Claims, error) {
	// Сначала валидируем подпись и claims
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	// Если blacklist не настроен — возвращаем claims
	if m.blacklist == nil {
		return claims, nil
	}

	// Проверяем blacklist по jti (конкретный токен)
	blacklisted, err := m.blacklist.Check(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки blacklist: %w", err)
	}
	if blacklisted {
		return nil, fmt.Errorf("токен отозван")
	}

	// Проверяем инвалидацию пользователя (массовый отзыв)
	if claims.IssuedAt != nil {
		invalidated, err := m.blacklist.IsUserInvalidated(ctx, claims.Subject, claims.IssuedAt.Time)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки инвалидации пользователя: %w", err)
		}
		if invalidated {
			return nil, fmt.Errorf("все токены пользователя отозваны")
		}
	}

	return claims, nil
}

// GenerateForTest подписывает токен переданным приватным ключом.
// Используется только в тестах, где нет внешнего сервиса аутентификации.
func GenerateForTest(privateKey *rsa.PrivateKey, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// LoadPublicKey загружает RSA публичный ключ из PEM файла.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("не удалось декодировать PEM блок из %s", path)
	}

	// Пробуем PKIX формат (PUBLIC KEY)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Пробуем PKCS#1 формат (RSA PUBLIC KEY)
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ключ не является RSA публичным ключом")
	}

	return rsaKey, nil
}
