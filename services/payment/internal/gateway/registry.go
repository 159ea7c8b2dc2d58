package gateway

import (
	"fmt"
	"sync"

	"example.com/travel-booking/services/payment/internal/domain"
)

// Registry — реестр платёжных стратегий по идентификатору провайдера.
// Регистрация происходит при старте процесса, Resolve — конкурентно
// из обработчиков webhook.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register добавляет стратегию в реестр.
// Повторная регистрация того же провайдера — ошибка конфигурации.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Provider()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("провайдер %s уже зарегистрирован", name)
	}
	r.strategies[name] = s
	return nil
}

// Resolve возвращает стратегию для провайдера.
// Для незарегистрированного провайдера возвращает domain.ErrUnknownProvider.
func (r *Registry) Resolve(provider string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}
	return s, nil
}

// Providers возвращает список зарегистрированных провайдеров.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}
