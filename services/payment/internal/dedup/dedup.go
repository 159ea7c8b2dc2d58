// Package dedup реализует дедупликацию платёжных callback через Redis.
// Провайдеры доставляют callback минимум один раз; повторная доставка
// с тем же transaction_id должна вернуть ранее записанный результат,
// не затрагивая состояние оплаты.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/payment/internal/domain"
)

const (
	// keyPrefix — префикс ключей дедупликации в Redis.
	keyPrefix = "payment:callback:"

	// reserveMarker — значение ключа, пока callback обрабатывается.
	// Финальный результат перезаписывает маркер JSON-ом ProcessingResult.
	reserveMarker = "processing"
)

// ErrInFlight — та же транзакция прямо сейчас обрабатывается другой доставкой.
var ErrInFlight = errors.New("callback уже обрабатывается")

// ProcessingResult — записанный результат обработки callback.
// Повторная доставка получает этот результат без повторной обработки.
type ProcessingResult struct {
	TransactionID string               `json:"transaction_id"`
	BookingID     string               `json:"booking_id"`
	Status        domain.PaymentStatus `json:"status"`
	RecordedAt    time.Time            `json:"recorded_at"`
}

// Config — настройки дедупликации.
type Config struct {
	// ReserveTTL ограничивает время удержания in-flight маркера.
	// Если обработчик упал, не сняв маркер, повторная доставка
	// пройдёт после истечения TTL.
	ReserveTTL time.Duration

	// ResultTTL — срок хранения финального результата.
	ResultTTL time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
// Результат храним 30 дней — дольше провайдеры callback не повторяют.
func DefaultConfig() Config {
	return Config{
		ReserveTTL: 30 * time.Second,
		ResultTTL:  30 * 24 * time.Hour,
	}
}

// Store — Redis-хранилище результатов обработки callback.
type Store struct {
	redis *redis.Client
	cfg   Config
}

// NewStore создаёт хранилище дедупликации.
func NewStore(client *redis.Client, cfg Config) *Store {
	return &Store{redis: client, cfg: cfg}
}

// Reserve атомарно резервирует транзакцию за текущей доставкой.
// Возможные исходы:
//   - (nil, nil) — резервация получена, доставка обрабатывает callback;
//   - (result, nil) — финальный результат уже записан, это повтор;
//   - (nil, ErrInFlight) — другая доставка держит резервацию.
func (s *Store) Reserve(ctx context.Context, transactionID string) (*ProcessingResult, error) {
	key := keyPrefix + transactionID

	wasSet, err := s.redis.SetNX(ctx, key, reserveMarker, s.cfg.ReserveTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка Redis при резервации callback: %w", err)
	}
	if wasSet {
		return nil, nil
	}

	// Ключ занят: либо финальный результат, либо in-flight маркер.
	val, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		// Ключ истёк между SetNX и Get — пробуем ещё раз.
		return s.Reserve(ctx, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка Redis при чтении результата callback: %w", err)
	}

	if val == reserveMarker {
		return nil, ErrInFlight
	}

	result := &ProcessingResult{}
	if err := json.Unmarshal([]byte(val), result); err != nil {
		return nil, fmt.Errorf("ошибка разбора записанного результата callback: %w", err)
	}
	return result, nil
}

// Record перезаписывает резервацию финальным результатом.
// Вызывается только доставкой, выигравшей Reserve.
func (s *Store) Record(ctx context.Context, result *ProcessingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата callback: %w", err)
	}

	key := keyPrefix + result.TransactionID
	if err := s.redis.Set(ctx, key, data, s.cfg.ResultTTL).Err(); err != nil {
		return fmt.Errorf("ошибка Redis при записи результата callback: %w", err)
	}
	return nil
}

// Release снимает резервацию при ошибке до Record.
// Повторная доставка провайдера после этого обрабатывается заново.
func (s *Store) Release(ctx context.Context, transactionID string) {
	key := keyPrefix + transactionID
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		// Не фатально: маркер истечёт по ReserveTTL.
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("transaction_id", transactionID).
			Msg("Ошибка снятия резервации callback")
	}
}

// WaitForResult опрашивает результат, пока другая доставка держит резервацию.
// Используется проигравшей доставкой той же транзакции: обе должны
// завершиться успехом (Scenario: два конкурентных идентичных callback).
func (s *Store) WaitForResult(ctx context.Context, transactionID string, pollInterval time.Duration, maxWait time.Duration) (*ProcessingResult, error) {
	key := keyPrefix + transactionID
	deadline := time.Now().Add(maxWait)

	for {
		val, err := s.redis.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("ошибка Redis при ожидании результата callback: %w", err)
		}

		if err == nil && val != reserveMarker {
			result := &ProcessingResult{}
			if uErr := json.Unmarshal([]byte(val), result); uErr != nil {
				return nil, fmt.Errorf("ошибка разбора записанного результата callback: %w", uErr)
			}
			return result, nil
		}

		// redis.Nil: победитель снял резервацию (Release) — результата не будет.
		if err == redis.Nil {
			return nil, ErrInFlight
		}

		if time.Now().After(deadline) {
			return nil, ErrInFlight
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
