package api

import (
	"math"
	"sort"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// EstimateResponse — текущая оценка.
type EstimateResponse struct {
	Estimate      float64  `json:"estimate"`
	Multiplier    float64  `json:"multiplier"`
	TotalPoints   int64    `json:"total_points"`
	TotalHits     int64    `json:"total_hits"`
	ScenarioCount int      `json:"scenario_count"`
	Workers       int      `json:"workers"`
	Duplicates    int      `json:"duplicates"`
	Rejected      int      `json:"rejected"`
	ModelVersion  string   `json:"model_version,omitempty"`
	AbsError      *float64 `json:"abs_error,omitempty"`
}

// EstimateFromDomain конвертирует снимок в EstimateResponse.
//
// reference != 0 и непустой снимок — добавляется abs_error.
func EstimateFromDomain(s domain.AggregateState, reference float64) EstimateResponse {
	resp := EstimateResponse{
		Estimate:      s.Estimate,
		Multiplier:    s.Multiplier,
		TotalPoints:   s.TotalPoints,
		TotalHits:     s.TotalHits,
		ScenarioCount: s.ScenarioCount,
		Workers:       len(s.PerWorkerCounts),
		Duplicates:    s.Duplicates,
		Rejected:      s.Rejected,
		ModelVersion:  s.ModelVersion,
	}

	if reference != 0 && s.TotalPoints > 0 {
		absErr := math.Abs(s.Estimate - reference)
		resp.AbsError = &absErr
	}

	return resp
}

// WorkerResponse — активность одного worker'а.
type WorkerResponse struct {
	WorkerID  string  `json:"worker_id"`
	Scenarios int     `json:"scenarios"`
	Share     float64 `json:"share"`
}

// WorkersFromDomain строит таблицу активности по убыванию числа сценариев.
func WorkersFromDomain(s domain.AggregateState) []WorkerResponse {
	result := make([]WorkerResponse, 0, len(s.PerWorkerCounts))
	for id, n := range s.PerWorkerCounts {
		w := WorkerResponse{WorkerID: id, Scenarios: n}
		if s.ScenarioCount > 0 {
			w.Share = float64(n) / float64(s.ScenarioCount)
		}
		result = append(result, w)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Scenarios != result[j].Scenarios {
			return result[i].Scenarios > result[j].Scenarios
		}
		return result[i].WorkerID < result[j].WorkerID
	})
	return result
}
