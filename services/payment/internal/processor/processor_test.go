package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-booking/services/payment/internal/dedup"
	"example.com/travel-booking/services/payment/internal/domain"
	"example.com/travel-booking/services/payment/internal/gateway"
	"example.com/travel-booking/services/payment/internal/service"
)

// =============================================================================
// Моки
// =============================================================================

// fakeStrategy — стратегия с настраиваемым результатом проверки callback.
type fakeStrategy struct {
	name         string
	verification *domain.PaymentVerification
	verifyErr    error
}

func (f *fakeStrategy) Provider() string { return f.name }

func (f *fakeStrategy) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	return &domain.PaymentResponse{TransactionID: "tx-" + f.name}, nil
}

func (f *fakeStrategy) VerifyCallback(ctx context.Context, cb gateway.Callback) (*domain.PaymentVerification, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	v := *f.verification
	return &v, nil
}

// mockRequestLoader — in-memory хранилище платёжных запросов.
type mockRequestLoader struct {
	mu       sync.Mutex
	requests map[string]*domain.PaymentRequest
}

func newMockRequestLoader() *mockRequestLoader {
	return &mockRequestLoader{requests: make(map[string]*domain.PaymentRequest)}
}

func (m *mockRequestLoader) add(req *domain.PaymentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.TransactionID] = req
}

func (m *mockRequestLoader) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[transactionID]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, domain.ErrRequestNotFound
}

// mockTransitionApplier — считает применённые переходы.
// Потокобезопасен для теста конкурентных доставок.
type mockTransitionApplier struct {
	mu       sync.Mutex
	applied  int
	statuses map[string]domain.PaymentStatus
	delay    time.Duration // искусственная задержка для конкурентных тестов
	err      error
}

func newMockTransitionApplier() *mockTransitionApplier {
	return &mockTransitionApplier{statuses: make(map[string]domain.PaymentStatus)}
}

func (m *mockTransitionApplier) Transition(ctx context.Context, bookingID string, target domain.PaymentStatus, transactionID string) (*service.TransitionResult, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	current, exists := m.statuses[bookingID]
	payment := &domain.BookingPayment{BookingID: bookingID, Status: target}
	if exists && current == target {
		return &service.TransitionResult{Payment: payment, Applied: false}, nil
	}

	m.statuses[bookingID] = target
	m.applied++
	return &service.TransitionResult{Payment: payment, Applied: true}, nil
}

func (m *mockTransitionApplier) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// =============================================================================
// Вспомогательные функции
// =============================================================================

func setupDedupStore(t *testing.T) *dedup.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return dedup.NewStore(client, dedup.DefaultConfig())
}

func paidVerification() *domain.PaymentVerification {
	return &domain.PaymentVerification{
		TransactionID: "pi_test_123",
		Provider:      "stripe",
		Status:        domain.PaymentStatusPaid,
		Amount:        15000,
		Currency:      "EUR",
		RawEventType:  "payment_intent.succeeded",
	}
}

func testRequest() *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:            "req-uuid-1",
		TransactionID: "pi_test_123",
		BookingID:     "booking-42",
		OrderID:       "order-42",
		UserID:        "user-42",
		Provider:      "stripe",
		Amount:        15000,
		Currency:      "EUR",
	}
}

// setupProcessor собирает конвейер с fakeStrategy и in-memory зависимостями.
func setupProcessor(t *testing.T, strategy *fakeStrategy) (*Processor, *mockRequestLoader, *mockTransitionApplier) {
	t.Helper()

	registry := gateway.NewRegistry()
	require.NoError(t, registry.Register(strategy))

	requests := newMockRequestLoader()
	transitions := newMockTransitionApplier()
	p := NewProcessor(registry, requests, transitions, setupDedupStore(t))

	return p, requests, transitions
}

// =============================================================================
// Тесты HandleCallback
// =============================================================================

func TestHandleCallback_Paid(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.NoError(t, err)
	assert.Equal(t, "pi_test_123", result.TransactionID)
	assert.Equal(t, "booking-42", result.BookingID)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
	assert.False(t, result.Replayed)
	assert.Equal(t, 1, transitions.appliedCount())
}

func TestHandleCallback_Failed(t *testing.T) {
	verification := paidVerification()
	verification.Status = domain.PaymentStatusFailed
	verification.RawEventType = "payment_intent.payment_failed"
	strategy := &fakeStrategy{name: "stripe", verification: verification}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, result.Status)
	assert.Equal(t, 1, transitions.appliedCount())
}

func TestHandleCallback_Replay(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	first, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
	require.NoError(t, err)
	require.False(t, first.Replayed)

	// Повторная доставка того же callback
	second, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, 1, transitions.appliedCount(), "переход применяется ровно один раз")
}

func TestHandleCallback_ConcurrentIdenticalDeliveries(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	// Задержка перехода гарантирует пересечение доставок во времени
	transitions.delay = 200 * time.Millisecond

	const deliveries = 2
	results := make([]*CallbackResult, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
		}(i)
	}
	wg.Wait()

	// Обе доставки успешны, переход применён один раз
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i], "доставка %d", i)
		assert.Equal(t, domain.PaymentStatusPaid, results[i].Status, "доставка %d", i)
	}
	assert.Equal(t, 1, transitions.appliedCount(), "переход применяется ровно один раз")
}

func TestHandleCallback_UnknownProvider(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, _, transitions := setupProcessor(t, strategy)

	result, err := p.HandleCallback(context.Background(), "paypal", gateway.Callback{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Nil(t, result)
	assert.Equal(t, 0, transitions.appliedCount())
}

func TestHandleCallback_AuthenticityFailure(t *testing.T) {
	strategy := &fakeStrategy{
		name:      "stripe",
		verifyErr: errors.Join(domain.ErrAuthenticity, errors.New("подпись не совпадает")),
	}
	p, _, transitions := setupProcessor(t, strategy)

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthenticity)
	assert.Nil(t, result)
	assert.Equal(t, 0, transitions.appliedCount(), "поддельный callback не меняет состояние")
}

func TestHandleCallback_PendingEventIsNoOp(t *testing.T) {
	verification := paidVerification()
	verification.Status = domain.PaymentStatusPending
	verification.RawEventType = "payment_intent.created"
	strategy := &fakeStrategy{name: "stripe", verification: verification}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, 0, transitions.appliedCount())

	// Промежуточное событие не записывается: терминальное событие
	// той же транзакции обрабатывается после него
	strategy.verification = paidVerification()
	terminal, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, terminal.Status)
	assert.False(t, terminal.Replayed)
	assert.Equal(t, 1, transitions.appliedCount())
}

func TestHandleCallback_AmountMismatch(t *testing.T) {
	verification := paidVerification()
	verification.Amount = 99999
	strategy := &fakeStrategy{name: "stripe", verification: verification}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Nil(t, result)
	assert.Equal(t, 0, transitions.appliedCount())

	// Резервация снята: корректная повторная доставка обрабатывается
	strategy.verification = paidVerification()
	retried, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, retried.Status)
	assert.False(t, retried.Replayed)
}

func TestHandleCallback_CurrencyMismatch(t *testing.T) {
	verification := paidVerification()
	verification.Currency = "USD"
	strategy := &fakeStrategy{name: "stripe", verification: verification}
	p, requests, _ := setupProcessor(t, strategy)
	requests.add(testRequest())

	_, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
}

func TestHandleCallback_UnknownTransaction(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, _, transitions := setupProcessor(t, strategy)

	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	assert.Nil(t, result)
	assert.Equal(t, 0, transitions.appliedCount())
}

func TestHandleCallback_TransitionError(t *testing.T) {
	strategy := &fakeStrategy{name: "stripe", verification: paidVerification()}
	p, requests, transitions := setupProcessor(t, strategy)
	requests.add(testRequest())
	transitions.err = errors.New("ошибка БД")

	_, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
	require.Error(t, err)

	// Резервация снята — после восстановления БД доставка обрабатывается
	transitions.err = nil
	result, err := p.HandleCallback(context.Background(), "stripe", gateway.Callback{})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
	assert.False(t, result.Replayed)
}
