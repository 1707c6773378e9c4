package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// --- Registry Tests ---

func TestDefaultRegistry_Names(t *testing.T) {
	names := DefaultRegistry().Names()
	expected := []string{"circle", "parabola", "sphere"}

	if len(names) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("expected %s at %d, got %s", expected[i], i, names[i])
		}
	}
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	_, err := DefaultRegistry().Instantiate(domain.ModelDescriptor{Version: "v1", Strategy: "exec"})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRegistry_DefaultStrategyIsCircle(t *testing.T) {
	s, err := DefaultRegistry().Instantiate(domain.ModelDescriptor{Version: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("strategy should not be nil")
	}
}

func TestRegistry_InvalidParams(t *testing.T) {
	_, err := DefaultRegistry().Instantiate(domain.ModelDescriptor{
		Version:  "v1",
		Strategy: "parabola",
		Params:   map[string]float64{"exponent": -1},
	})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

// --- Strategy Tests ---

func TestStrategies_HitsWithinBounds(t *testing.T) {
	registry := DefaultRegistry()

	for _, name := range registry.Names() {
		s, err := registry.Instantiate(domain.ModelDescriptor{Version: "v1", Strategy: name, Seed: 42})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}

		for _, n := range []int{1, 7, 100, 10000} {
			hits, err := s.Execute(context.Background(), n)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", name, err)
			}
			if hits < 0 || hits > n {
				t.Errorf("%s: hits %d out of [0, %d]", name, hits, n)
			}
		}
	}
}

func TestStrategies_ConvergeToReference(t *testing.T) {
	registry := DefaultRegistry()
	for _, name := range registry.Names() {
		def, _ := registry.Lookup(name)
		multiplier := def.Multiplier
		s, _ := registry.Instantiate(domain.ModelDescriptor{Version: "v1", Strategy: name, Seed: 7})

		const n = 200000
		hits, err := s.Execute(context.Background(), n)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}

		estimate := multiplier * float64(hits) / n
		if math.Abs(estimate-def.Reference) > 0.05 {
			t.Errorf("%s: estimate %v too far from %v", name, estimate, def.Reference)
		}
	}
}

func TestStrategy_SameSeedIsDeterministic(t *testing.T) {
	registry := DefaultRegistry()
	model := domain.ModelDescriptor{Version: "v1", Seed: 99}

	a, _ := registry.Instantiate(model)
	b, _ := registry.Instantiate(model)

	ha, _ := a.Execute(context.Background(), 5000)
	hb, _ := b.Execute(context.Background(), 5000)
	if ha != hb {
		t.Errorf("same seed should give same hits: %d != %d", ha, hb)
	}
}

func TestStrategy_InvalidSampleCount(t *testing.T) {
	s, _ := DefaultRegistry().Instantiate(domain.ModelDescriptor{Version: "v1"})
	if _, err := s.Execute(context.Background(), 0); !errors.Is(err, ErrInvalidSampleCount) {
		t.Errorf("expected ErrInvalidSampleCount, got %v", err)
	}
}

func TestStrategy_ContextCancel(t *testing.T) {
	s, _ := DefaultRegistry().Instantiate(domain.ModelDescriptor{Version: "v1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Отменяем сразу

	if _, err := s.Execute(ctx, 1_000_000); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
