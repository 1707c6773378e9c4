// Package strategy — закрытый реестр стратегий сэмплирования.
//
// Стратегия выбирается по тегу из ModelDescriptor.Strategy и создаётся
// при bootstrap Worker'а. Исполняемый код по сети не передаётся:
// всё, что может выполнить Worker, зарегистрировано здесь на этапе сборки.
//
// Стандартные стратегии:
//   - circle   — четверть единичного круга, estimate = 4 × hits / points ≈ π
//   - sphere   — октант единичного шара, estimate = 6 × hits / points ≈ π
//   - parabola — площадь под y = x^p на [0, 1], estimate = (p+1) × hits / points ≈ 1
//
// Контракт Strategy:
//
//	type Strategy interface {
//	    Execute(ctx context.Context, sampleCount int) (hits int, err error)
//	}
//
// Инвариант: 0 ≤ hits ≤ sampleCount. Execute проверяет ctx каждые
// checkEvery точек, поэтому зависшую задачу можно прервать по таймауту.
package strategy
