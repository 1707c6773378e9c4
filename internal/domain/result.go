package domain

import (
	"fmt"
	"time"
)

// ResultRecord — результат одного сценария.
//
// Инвариант: 0 ≤ HitCount ≤ SampleCount.
// Создаётся Worker'ом, потребляется Aggregator'ом и после свёртки не хранится.
type ResultRecord struct {
	// ScenarioID — id исходного ScenarioTask.
	ScenarioID string `json:"scenario_id" validate:"required"`

	// SampleCount — количество точек (копия из задачи).
	SampleCount int `json:"sample_count" validate:"gt=0"`

	// HitCount — количество попаданий.
	HitCount int `json:"hit_count" validate:"gte=0"`

	// WorkerID — кто посчитал.
	WorkerID string `json:"worker_id"`

	// Duration — время выполнения в секундах.
	Duration float64 `json:"duration" validate:"gte=0"`
}

// NewResultRecord собирает результат по задаче.
func NewResultRecord(task ScenarioTask, hits int, workerID string, elapsed time.Duration) ResultRecord {
	return ResultRecord{
		ScenarioID:  task.ID,
		SampleCount: task.SampleCount,
		HitCount:    hits,
		WorkerID:    workerID,
		Duration:    elapsed.Seconds(),
	}
}

// Validate проверяет структуру и инвариант диапазона попаданий.
func (r ResultRecord) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.HitCount > r.SampleCount {
		return fmt.Errorf("%w: %w: %d > %d", ErrMalformed, ErrHitsOutOfRange, r.HitCount, r.SampleCount)
	}
	return nil
}

// ParseResult разбирает тело сообщения из очереди результатов.
func ParseResult(body []byte) (ResultRecord, error) {
	var rec ResultRecord
	if err := decode(body, &rec); err != nil {
		return ResultRecord{}, err
	}

	if err := rec.Validate(); err != nil {
		return ResultRecord{}, err
	}
	return rec, nil
}
