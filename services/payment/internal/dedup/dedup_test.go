package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-booking/services/payment/internal/domain"
)

// setupTestStore создаёт хранилище поверх miniredis.
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := Config{
		ReserveTTL: 30 * time.Second,
		ResultTTL:  30 * 24 * time.Hour,
	}
	return NewStore(client, cfg), mr
}

func TestStore_ReserveFirstDelivery(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	result, err := store.Reserve(ctx, "pi_test_123")

	require.NoError(t, err)
	assert.Nil(t, result, "первая доставка получает резервацию без результата")
}

func TestStore_ReserveInFlight(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	// Вторая доставка той же транзакции до Record
	result, err := store.Reserve(ctx, "pi_test_123")

	assert.ErrorIs(t, err, ErrInFlight)
	assert.Nil(t, result)
}

func TestStore_ReserveReplay(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	recorded := &ProcessingResult{
		TransactionID: "pi_test_123",
		BookingID:     "booking-42",
		Status:        domain.PaymentStatusPaid,
		RecordedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Record(ctx, recorded))

	// Повторная доставка возвращает записанный результат
	result, err := store.Reserve(ctx, "pi_test_123")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "pi_test_123", result.TransactionID)
	assert.Equal(t, "booking-42", result.BookingID)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

func TestStore_ReserveAfterRelease(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	store.Release(ctx, "pi_test_123")

	// После снятия резервации транзакция обрабатывается заново
	result, err := store.Reserve(ctx, "pi_test_123")

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStore_ReserveAfterTTLExpiry(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	// Обработчик упал, не сняв маркер — TTL истекает
	mr.FastForward(31 * time.Second)

	result, err := store.Reserve(ctx, "pi_test_123")

	require.NoError(t, err)
	assert.Nil(t, result, "после истечения ReserveTTL резервация доступна снова")
}

func TestStore_RecordDifferentTransactionsIndependent(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_aaa")
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, &ProcessingResult{
		TransactionID: "pi_aaa",
		BookingID:     "booking-1",
		Status:        domain.PaymentStatusPaid,
	}))

	// Другая транзакция не затронута
	result, err := store.Reserve(ctx, "pi_bbb")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStore_WaitForResult(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	// Победитель записывает результат параллельно
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.Record(context.Background(), &ProcessingResult{
			TransactionID: "pi_test_123",
			BookingID:     "booking-42",
			Status:        domain.PaymentStatusPaid,
		})
	}()

	result, err := store.WaitForResult(ctx, "pi_test_123", 10*time.Millisecond, 2*time.Second)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

func TestStore_WaitForResultWinnerReleased(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	// Победитель упал и снял резервацию — результата не будет
	go func() {
		time.Sleep(50 * time.Millisecond)
		store.Release(context.Background(), "pi_test_123")
	}()

	result, err := store.WaitForResult(ctx, "pi_test_123", 10*time.Millisecond, 2*time.Second)

	assert.ErrorIs(t, err, ErrInFlight)
	assert.Nil(t, result)
}

func TestStore_WaitForResultTimeout(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "pi_test_123")
	require.NoError(t, err)

	result, err := store.WaitForResult(ctx, "pi_test_123", 10*time.Millisecond, 50*time.Millisecond)

	assert.ErrorIs(t, err, ErrInFlight)
	assert.Nil(t, result)
}

func TestStore_WaitForResultContextCanceled(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Reserve(context.Background(), "pi_test_123")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.WaitForResult(ctx, "pi_test_123", 10*time.Millisecond, 2*time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.ReserveTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.ResultTTL)
}
