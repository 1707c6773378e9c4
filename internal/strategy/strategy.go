package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
)

// checkEvery — как часто (в точках) проверять отмену контекста.
const checkEvery = 4096

// Strategy — вычисление попаданий для одного сценария.
type Strategy interface {
	// Execute генерирует sampleCount точек и возвращает число попаданий.
	Execute(ctx context.Context, sampleCount int) (int, error)
}

// hitFunc — тест попадания одной точки.
type hitFunc func(rng *rand.Rand) bool

// sampler — общая реализация Strategy поверх теста попадания.
//
// Не потокобезопасен: один экземпляр принадлежит одному Worker'у.
type sampler struct {
	rng *rand.Rand
	hit hitFunc
}

// newSampler создаёт sampler с PCG-генератором.
// seed=0 — случайное зерно.
func newSampler(seed uint64, hit hitFunc) *sampler {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &sampler{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		hit: hit,
	}
}

// Execute реализует Strategy.
func (s *sampler) Execute(ctx context.Context, sampleCount int) (int, error) {
	if sampleCount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSampleCount, sampleCount)
	}

	hits := 0
	for i := 0; i < sampleCount; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if s.hit(s.rng) {
			hits++
		}
	}

	return hits, nil
}

// circleHit — точка в четверти единичного круга.
func circleHit(rng *rand.Rand) bool {
	x, y := rng.Float64(), rng.Float64()
	return x*x+y*y <= 1
}

// sphereHit — точка в октанте единичного шара.
func sphereHit(rng *rand.Rand) bool {
	x, y, z := rng.Float64(), rng.Float64(), rng.Float64()
	return x*x+y*y+z*z <= 1
}

// parabolaHit возвращает тест попадания под кривую y = x^p.
func parabolaHit(p float64) hitFunc {
	return func(rng *rand.Rand) bool {
		x, y := rng.Float64(), rng.Float64()
		return y <= math.Pow(x, p)
	}
}
