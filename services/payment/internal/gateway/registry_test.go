package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-booking/services/payment/internal/domain"
)

// fakeStrategy — минимальная стратегия для тестов реестра.
type fakeStrategy struct {
	name string
}

func (f *fakeStrategy) Provider() string { return f.name }

func (f *fakeStrategy) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	return &domain.PaymentResponse{TransactionID: "tx-" + f.name}, nil
}

func (f *fakeStrategy) VerifyCallback(ctx context.Context, cb Callback) (*domain.PaymentVerification, error) {
	return &domain.PaymentVerification{Provider: f.name}, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&fakeStrategy{name: "stripe"}))
	require.NoError(t, r.Register(&fakeStrategy{name: "alipay"}))

	s, err := r.Resolve("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", s.Provider())

	s, err = r.Resolve("alipay")
	require.NoError(t, err)
	assert.Equal(t, "alipay", s.Provider())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeStrategy{name: "stripe"}))

	s, err := r.Resolve("paypal")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "paypal")
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&fakeStrategy{name: "stripe"}))
	err := r.Register(&fakeStrategy{name: "stripe"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "уже зарегистрирован")
}

func TestRegistry_Providers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeStrategy{name: "stripe"}))
	require.NoError(t, r.Register(&fakeStrategy{name: "alipay"}))

	providers := r.Providers()

	assert.ElementsMatch(t, []string{"stripe", "alipay"}, providers)
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeStrategy{name: "stripe"}))

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			s, err := r.Resolve("stripe")
			assert.NoError(t, err)
			assert.NotNil(t, s)
		}()
	}

	wg.Wait()
}
