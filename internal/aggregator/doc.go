// Package aggregator сворачивает результаты сценариев в общую оценку.
//
// На каждый ResultRecord:
//
//	total_points += sample_count
//	total_hits   += hit_count
//	estimate      = multiplier × total_hits / total_points  (0, пока точек нет)
//	scenario_count++, per_worker_counts[worker_id]++
//
// Транспорт доставляет результаты at-least-once, поэтому State по умолчанию
// отсеивает повторы по scenario_id. Наивный режим (без дедупликации)
// оставлен для сравнения: повторная доставка в нём удваивает вклад.
//
// Единственный писатель — consumer; HTTP API и отчёт читают Snapshot.
// Опционально состояние сохраняется в PostgreSQL (CheckpointStore),
// право записи run'а держит один экземпляр (advisory lock).
package aggregator
