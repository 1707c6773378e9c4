package strategy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// Factory создаёт экземпляр стратегии по дескриптору модели.
type Factory func(model domain.ModelDescriptor) (Strategy, error)

// Definition — описание стратегии в реестре.
type Definition struct {
	// Name — тег стратегии (ModelDescriptor.Strategy).
	Name string

	// Multiplier — множитель, при котором hits/points сходится к Reference.
	Multiplier float64

	// Reference — точное значение оцениваемой величины (для отчёта об ошибке).
	// 0 — неизвестно.
	Reference float64

	// New — фабрика экземпляров.
	New Factory
}

// Registry — реестр стратегий по тегу.
//
// Потокобезопасен.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]Definition),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными стратегиями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(Definition{
		Name:       "circle",
		Multiplier: 4,
		Reference:  math.Pi,
		New: func(model domain.ModelDescriptor) (Strategy, error) {
			return newSampler(model.Seed, circleHit), nil
		},
	})

	r.Register(Definition{
		Name:       "sphere",
		Multiplier: 6,
		Reference:  math.Pi,
		New: func(model domain.ModelDescriptor) (Strategy, error) {
			return newSampler(model.Seed, sphereHit), nil
		},
	})

	r.Register(Definition{
		Name:       "parabola",
		Multiplier: 3,
		Reference:  1,
		New: func(model domain.ModelDescriptor) (Strategy, error) {
			p := 2.0
			if v, ok := model.Params["exponent"]; ok {
				p = v
			}
			if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: exponent must be positive, got %v", ErrInvalidParams, p)
			}
			return newSampler(model.Seed, parabolaHit(p)), nil
		},
	})

	return r
}

// Register регистрирует стратегию.
// Если стратегия с таким тегом уже существует, она будет перезаписана.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
}

// Lookup возвращает описание стратегии по тегу.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

// Instantiate создаёт стратегию для дескриптора модели.
// Возвращает ErrUnknownStrategy, если тег не зарегистрирован.
func (r *Registry) Instantiate(model domain.ModelDescriptor) (Strategy, error) {
	model = model.Normalize()

	def, ok := r.Lookup(model.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, model.Strategy)
	}

	s, err := def.New(model)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", model.Strategy, err)
	}
	return s, nil
}

// Names возвращает список всех зарегистрированных тегов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
