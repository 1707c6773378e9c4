package domain

import (
	"errors"
	"testing"
	"time"
)

// --- ScenarioTask Tests ---

func TestParseTask_Valid(t *testing.T) {
	task, err := ParseTask([]byte(`{"id":"s1","sample_count":100}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != "s1" || task.SampleCount != 100 {
		t.Errorf("unexpected task: %+v", task)
	}
}

func TestParseTask_MissingSampleCount(t *testing.T) {
	_, err := ParseTask([]byte(`{"id":"s1"}`), "")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseTask_NonPositiveSampleCount(t *testing.T) {
	for _, body := range []string{`{"id":"s1","sample_count":0}`, `{"id":"s1","sample_count":-5}`} {
		if _, err := ParseTask([]byte(body), ""); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", body, err)
		}
	}
}

func TestParseTask_NotJSON(t *testing.T) {
	_, err := ParseTask([]byte(`[{"x":0.1,"y":0.2}]`), "")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseTask_FallbackID(t *testing.T) {
	task, err := ParseTask([]byte(`{"sample_count":10}`), "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != "msg-1" {
		t.Errorf("expected fallback id, got %q", task.ID)
	}

	if _, err := ParseTask([]byte(`{"sample_count":10}`), ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("task without any id should be malformed, got %v", err)
	}
}

// --- ModelDescriptor Tests ---

func TestParseModel_Defaults(t *testing.T) {
	model, err := ParseModel([]byte(`{"version":"v1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Strategy != DefaultStrategy {
		t.Errorf("expected default strategy, got %q", model.Strategy)
	}
	if model.Multiplier != DefaultMultiplier {
		t.Errorf("expected default multiplier, got %v", model.Multiplier)
	}
}

func TestParseModel_MissingVersion(t *testing.T) {
	_, err := ParseModel([]byte(`{"multiplier":4}`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseModel_SourceCodeRejected(t *testing.T) {
	// Исполняемая форма модели (исходный код строкой) не поддерживается.
	_, err := ParseModel([]byte("def modelo(n):\n    return n"))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

// --- ResultRecord Tests ---

func TestResultRecord_Validate(t *testing.T) {
	rec := NewResultRecord(ScenarioTask{ID: "s1", SampleCount: 10}, 7, "w1", 1500*time.Millisecond)
	if err := rec.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Duration != 1.5 {
		t.Errorf("expected duration 1.5, got %v", rec.Duration)
	}

	rec.HitCount = 11
	err := rec.Validate()
	if !errors.Is(err, ErrHitsOutOfRange) || !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrHitsOutOfRange, got %v", err)
	}

	rec.HitCount = -1
	if err := rec.Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for negative hits, got %v", err)
	}
}

func TestParseResult(t *testing.T) {
	rec, err := ParseResult([]byte(`{"scenario_id":"s1","sample_count":100,"hit_count":78,"worker_id":"w1","duration":0.01}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.HitCount != 78 || rec.WorkerID != "w1" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, err := ParseResult([]byte(`{"scenario_id":"","sample_count":100,"hit_count":1}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for empty scenario_id, got %v", err)
	}
}

// --- Status Tests ---

func TestWorkerState_HasModel(t *testing.T) {
	if WorkerStateBootstrapping.HasModel() {
		t.Error("BOOTSTRAPPING should not have model")
	}
	if !WorkerStateReady.HasModel() || !WorkerStateProcessing.HasModel() {
		t.Error("READY and PROCESSING should have model")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	if ParseFailurePolicy("drop") != FailurePolicyDrop {
		t.Error("expected drop")
	}
	if ParseFailurePolicy("") != FailurePolicyDeadLetter {
		t.Error("expected dead-letter by default")
	}
}

// --- AggregateState Tests ---

func TestEstimate_GuardsZeroPoints(t *testing.T) {
	if got := Estimate(4, 0, 0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := Estimate(4, 3, 4); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestAggregateState_Clone(t *testing.T) {
	orig := AggregateState{PerWorkerCounts: map[string]int{"w1": 1}}
	clone := orig.Clone()
	clone.PerWorkerCounts["w1"] = 5

	if orig.PerWorkerCounts["w1"] != 1 {
		t.Error("clone should not share the per-worker map")
	}
}
