package domain

// AggregateState — накопленная статистика по потоку результатов.
//
// Живёт, пока жив Aggregator. Суммы только растут.
type AggregateState struct {
	TotalPoints   int64   `json:"total_points"`
	TotalHits     int64   `json:"total_hits"`
	Estimate      float64 `json:"estimate"`
	Multiplier    float64 `json:"multiplier"`
	ScenarioCount int     `json:"scenario_count"`

	// ModelVersion — версия модели, принятая по первому результату.
	// Пусто — результаты приходили без метки модели.
	ModelVersion string `json:"model_version,omitempty"`

	// PerWorkerCounts — сколько сценариев посчитал каждый worker.
	PerWorkerCounts map[string]int `json:"per_worker_counts"`

	// Duplicates — повторные доставки, отброшенные дедупликацией.
	Duplicates int `json:"duplicates"`

	// Rejected — результаты, не прошедшие проверку.
	Rejected int `json:"rejected"`
}

// Estimate возвращает multiplier × hits / points; 0, пока точек нет.
func Estimate(multiplier float64, hits, points int64) float64 {
	if points <= 0 {
		return 0
	}
	return multiplier * float64(hits) / float64(points)
}

// Clone возвращает глубокую копию.
func (s AggregateState) Clone() AggregateState {
	workers := make(map[string]int, len(s.PerWorkerCounts))
	for id, n := range s.PerWorkerCounts {
		workers[id] = n
	}
	s.PerWorkerCounts = workers
	return s
}
