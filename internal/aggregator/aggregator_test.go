package aggregator

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/mq/memq"
	"github.com/shaiso/Montecarlo/internal/producer"
	"github.com/shaiso/Montecarlo/internal/telemetry"
	"github.com/shaiso/Montecarlo/internal/worker"
)

func record(id, workerID string, samples, hits int) domain.ResultRecord {
	return domain.ResultRecord{ScenarioID: id, SampleCount: samples, HitCount: hits, WorkerID: workerID}
}

// --- State Tests ---

func TestState_EstimateAfterEveryFold(t *testing.T) {
	s := NewState(4, true)
	records := []domain.ResultRecord{
		record("a", "w1", 100, 80),
		record("b", "w2", 200, 150),
		record("c", "w1", 300, 240),
	}

	var hits, points int64
	for _, rec := range records {
		if _, err := s.Fold(rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		hits += int64(rec.HitCount)
		points += int64(rec.SampleCount)

		snap := s.Snapshot()
		expected := 4 * float64(hits) / float64(points)
		if math.Abs(snap.Estimate-expected) > 1e-12 {
			t.Errorf("expected estimate %v, got %v", expected, snap.Estimate)
		}
	}

	snap := s.Snapshot()
	if snap.TotalPoints != 600 || snap.ScenarioCount != 3 {
		t.Errorf("unexpected totals: %+v", snap)
	}
	if snap.PerWorkerCounts["w1"] != 2 || snap.PerWorkerCounts["w2"] != 1 {
		t.Errorf("unexpected per-worker counts: %v", snap.PerWorkerCounts)
	}
}

func TestState_EmptyEstimateIsZero(t *testing.T) {
	snap := NewState(0, true).Snapshot()
	if snap.Estimate != 0 {
		t.Errorf("expected 0, got %v", snap.Estimate)
	}
	if snap.Multiplier != domain.DefaultMultiplier {
		t.Errorf("expected default multiplier, got %v", snap.Multiplier)
	}
}

func TestState_NaiveDoubleCountsRedelivery(t *testing.T) {
	s := NewState(4, false)
	rec := record("a", "w1", 100, 78)

	s.Fold(rec)
	before := s.Snapshot()
	applied, _ := s.Fold(rec)
	after := s.Snapshot()

	if !applied {
		t.Error("naive state applies every delivery")
	}
	if after.TotalPoints == before.TotalPoints || after.ScenarioCount == before.ScenarioCount {
		t.Error("naive state should change on redelivery")
	}
}

func TestState_DedupIgnoresRedelivery(t *testing.T) {
	s := NewState(4, true)
	rec := record("a", "w1", 100, 78)

	s.Fold(rec)
	before := s.Snapshot()
	applied, err := s.Fold(rec)
	after := s.Snapshot()

	if err != nil || applied {
		t.Errorf("duplicate should not be applied: applied=%v err=%v", applied, err)
	}
	if after.TotalPoints != before.TotalPoints || after.TotalHits != before.TotalHits ||
		after.ScenarioCount != before.ScenarioCount || after.Estimate != before.Estimate ||
		after.PerWorkerCounts["w1"] != before.PerWorkerCounts["w1"] {
		t.Errorf("state changed on redelivery: %+v → %+v", before, after)
	}
	if after.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", after.Duplicates)
	}
}

func TestState_RejectsOutOfRange(t *testing.T) {
	s := NewState(4, true)

	_, err := s.Fold(record("a", "w1", 10, 11))
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
	_, err = s.Fold(record("", "w1", 10, 1))
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected for empty id, got %v", err)
	}

	snap := s.Snapshot()
	if snap.TotalPoints != 0 || snap.Rejected != 2 {
		t.Errorf("rejected records should not be folded: %+v", snap)
	}
}

func TestState_SnapshotIsCopy(t *testing.T) {
	s := NewState(4, true)
	s.Fold(record("a", "w1", 10, 5))

	snap := s.Snapshot()
	snap.PerWorkerCounts["w1"] = 100
	snap.TotalPoints = 0

	if s.Snapshot().PerWorkerCounts["w1"] != 1 {
		t.Error("snapshot should not alias live state")
	}
}

func TestState_CheckpointRestore(t *testing.T) {
	s := NewState(4, true)
	s.Fold(record("a", "w1", 10, 5))
	s.Fold(record("b", "w2", 20, 15))
	cp := s.Checkpoint()

	restored := NewState(4, true)
	restored.Restore(cp)

	if restored.Snapshot().TotalPoints != 30 {
		t.Errorf("expected 30 points, got %d", restored.Snapshot().TotalPoints)
	}
	if applied, _ := restored.Fold(record("a", "w1", 10, 5)); applied {
		t.Error("restored state should remember consumed ids")
	}
}

func TestState_DeltaHoldsOnlyUnsavedIDs(t *testing.T) {
	s := NewState(4, true)
	s.Fold(record("a", "w1", 10, 5))
	s.Fold(record("b", "w1", 10, 5))

	cp, mark, dirty := s.Delta()
	if !dirty || len(cp.ConsumedIDs) != 2 {
		t.Fatalf("expected 2 pending ids, got %v (dirty=%v)", cp.ConsumedIDs, dirty)
	}
	s.MarkSaved(cp, mark)

	if _, _, dirty := s.Delta(); dirty {
		t.Error("state should be clean after MarkSaved")
	}

	s.Fold(record("a", "w1", 10, 5))
	if _, _, dirty := s.Delta(); dirty {
		t.Error("duplicate should not dirty the state")
	}

	s.Fold(record("c", "w2", 10, 5))
	cp, _, dirty = s.Delta()
	if !dirty || len(cp.ConsumedIDs) != 1 || cp.ConsumedIDs[0] != "c" {
		t.Errorf("expected only c pending, got %v", cp.ConsumedIDs)
	}
	if cp.State.TotalPoints != 30 {
		t.Errorf("delta should carry full totals, got %d", cp.State.TotalPoints)
	}
}

func TestState_AdoptModel(t *testing.T) {
	s := NewState(4, true)
	s.Fold(record("a", "w1", 100, 50))

	if err := s.Adopt(domain.ModelStamp{Version: "v1", Strategy: "sphere", Multiplier: 6}); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	snap := s.Snapshot()
	if snap.Multiplier != 6 || snap.Estimate != 3 || snap.ModelVersion != "v1" {
		t.Errorf("expected multiplier 6 and estimate 3, got %+v", snap)
	}

	if err := s.Adopt(domain.ModelStamp{Version: "v1", Multiplier: 6}); err != nil {
		t.Errorf("same version should pass: %v", err)
	}
	if err := s.Adopt(domain.ModelStamp{Version: "v2", Multiplier: 4}); !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}
	if s.Snapshot().Multiplier != 6 {
		t.Error("mismatch should not change multiplier")
	}
}

func TestState_RestoreKeepsAdoptedMultiplier(t *testing.T) {
	s := NewState(4, true)
	s.Adopt(domain.ModelStamp{Version: "v1", Multiplier: 6})
	s.Fold(record("a", "w1", 100, 50))

	restored := NewState(4, true)
	restored.Restore(s.Checkpoint())

	snap := restored.Snapshot()
	if snap.Multiplier != 6 || snap.Estimate != 3 {
		t.Errorf("expected adopted multiplier after restore, got %+v", snap)
	}
	if _, _, dirty := restored.Delta(); dirty {
		t.Error("restored state should be clean")
	}
}

func TestSortedWorkers(t *testing.T) {
	snap := domain.AggregateState{PerWorkerCounts: map[string]int{"b": 1, "a": 1, "c": 5}}
	workers := SortedWorkers(snap)

	if len(workers) != 3 || workers[0].WorkerID != "c" || workers[1].WorkerID != "a" {
		t.Errorf("unexpected order: %+v", workers)
	}
}

// --- Aggregator Tests ---

func publishResult(t *testing.T, b mq.Broker, rec domain.ResultRecord) {
	t.Helper()
	publishStamped(t, b, rec, domain.ModelStamp{})
}

func publishStamped(t *testing.T, b mq.Broker, rec domain.ResultRecord, stamp domain.ModelStamp) {
	t.Helper()
	if err := mq.NewPublisher(b, telemetry.Discard()).PublishResult(context.Background(), rec, stamp); err != nil {
		t.Fatalf("publish result: %v", err)
	}
}

func runAggregator(t *testing.T, b *memq.Broker, cfg Config) *Aggregator {
	t.Helper()

	cfg.Broker = b
	cfg.Logger = telemetry.Discard()
	a := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := b.WaitIdle(waitCtx, mq.QueueResults); err != nil {
		t.Fatalf("results were not consumed: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	return a
}

func TestAggregator_ConsumesAndDedups(t *testing.T) {
	b := memq.New(nil)
	publishResult(t, b, record("a", "w1", 100, 70))
	publishResult(t, b, record("a", "w1", 100, 70))
	publishResult(t, b, record("b", "w2", 100, 90))
	if err := b.Publish(context.Background(), mq.QueueResults, amqp.Publishing{Body: []byte("garbage")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	a := runAggregator(t, b, Config{Multiplier: 4, Dedup: true})
	snap := a.State().Snapshot()

	if snap.TotalPoints != 200 || snap.TotalHits != 160 {
		t.Errorf("unexpected totals: %+v", snap)
	}
	if snap.Duplicates != 1 || snap.Rejected != 1 {
		t.Errorf("expected 1 duplicate and 1 rejected, got %+v", snap)
	}
	if snap.Estimate != 3.2 {
		t.Errorf("expected 3.2, got %v", snap.Estimate)
	}
}

func TestAggregator_AdoptsModelMultiplier(t *testing.T) {
	b := memq.New(nil)
	sphere := domain.ModelStamp{Version: "v1", Strategy: "sphere", Multiplier: 6}
	publishStamped(t, b, record("a", "w1", 100, 50), sphere)
	publishStamped(t, b, record("b", "w1", 100, 50), sphere)
	publishStamped(t, b, record("c", "w2", 100, 50), domain.ModelStamp{Version: "v2", Multiplier: 4})

	a := runAggregator(t, b, Config{Multiplier: 4, Dedup: true})
	snap := a.State().Snapshot()

	if snap.Multiplier != 6 || snap.Estimate != 3 {
		t.Errorf("expected sphere multiplier 6 and estimate 3, got %+v", snap)
	}
	if snap.TotalPoints != 200 || snap.Rejected != 1 {
		t.Errorf("other model version should be rejected: %+v", snap)
	}
}

func TestAggregator_InvalidSchedule(t *testing.T) {
	a := New(Config{Broker: memq.New(nil), ReportSchedule: "every now and then", Logger: telemetry.Discard()})
	if err := a.Run(context.Background()); err == nil {
		t.Error("invalid schedule should fail")
	}
}

// memStore — CheckpointStore в памяти.
type memStore struct {
	mu     sync.Mutex
	locked bool
	saved  map[string]Checkpoint
	saves  int

	// failSaves — сколько ближайших Save завершатся ошибкой.
	failSaves int
}

func (m *memStore) Lock(_ context.Context, runID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return nil, ErrLocked
	}
	m.locked = true
	return func() {
		m.mu.Lock()
		m.locked = false
		m.mu.Unlock()
	}, nil
}

func (m *memStore) Load(_ context.Context, runID string) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.saved[runID]
	return cp, ok, nil
}

func (m *memStore) Save(_ context.Context, runID string, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves > 0 {
		m.failSaves--
		return errors.New("connection reset")
	}
	if m.saved == nil {
		m.saved = make(map[string]Checkpoint)
	}

	ids := append([]string(nil), m.saved[runID].ConsumedIDs...)
	for _, id := range cp.ConsumedIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	m.saved[runID] = Checkpoint{State: cp.State.Clone(), ConsumedIDs: ids}
	m.saves++
	return nil
}

func TestAggregator_CheckpointSurvivesRestart(t *testing.T) {
	store := &memStore{}
	b := memq.New(nil)
	publishResult(t, b, record("a", "w1", 100, 70))

	runAggregator(t, b, Config{Dedup: true, Store: store, RunID: "run-1"})
	if store.saves != 1 {
		t.Fatalf("expected 1 save, got %d", store.saves)
	}
	if store.locked {
		t.Error("lock should be released after run")
	}

	// Повторная доставка после перезапуска отсеивается по сохранённым id
	publishResult(t, b, record("a", "w1", 100, 70))
	publishResult(t, b, record("b", "w1", 100, 80))

	a := runAggregator(t, b, Config{Dedup: true, Store: store, RunID: "run-1"})
	snap := a.State().Snapshot()
	if snap.TotalPoints != 200 || snap.ScenarioCount != 2 {
		t.Errorf("unexpected totals after restart: %+v", snap)
	}
}

func TestAggregator_FailedSaveRetriedBeforeAck(t *testing.T) {
	store := &memStore{failSaves: 1}
	b := memq.New(nil)
	publishResult(t, b, record("a", "w1", 100, 70))

	// Первый Save падает: сообщение возвращается, повторная доставка
	// уже дубликат, но checkpoint всё равно сохраняется до ack
	runAggregator(t, b, Config{Dedup: true, Store: store, RunID: "run-1"})

	cp, ok := store.saved["run-1"]
	if !ok || cp.State.TotalPoints != 100 || !slices.Contains(cp.ConsumedIDs, "a") {
		t.Fatalf("result acked without checkpoint: ok=%v cp=%+v", ok, cp)
	}

	a := runAggregator(t, b, Config{Dedup: true, Store: store, RunID: "run-1"})
	if snap := a.State().Snapshot(); snap.TotalPoints != 100 || snap.ScenarioCount != 1 {
		t.Errorf("unexpected totals after restart: %+v", snap)
	}
}

func TestAggregator_CheckpointSavesOnlyNewIDs(t *testing.T) {
	store := &recordingStore{}
	b := memq.New(nil)
	publishResult(t, b, record("a", "w1", 100, 70))
	publishResult(t, b, record("b", "w1", 100, 70))
	publishResult(t, b, record("c", "w1", 100, 70))

	runAggregator(t, b, Config{Dedup: true, Store: store, RunID: "run-1"})

	if len(store.batches) != 3 {
		t.Fatalf("expected 3 saves, got %d", len(store.batches))
	}
	for i, ids := range store.batches {
		if len(ids) != 1 {
			t.Errorf("save %d: expected 1 new id, got %v", i, ids)
		}
	}
}

// recordingStore запоминает id каждого Save.
type recordingStore struct {
	memStore
	batches [][]string
}

func (r *recordingStore) Save(ctx context.Context, runID string, cp Checkpoint) error {
	r.batches = append(r.batches, cp.ConsumedIDs)
	return r.memStore.Save(ctx, runID, cp)
}

func TestAggregator_CheckpointLocked(t *testing.T) {
	store := &memStore{locked: true}
	a := New(Config{Broker: memq.New(nil), Store: store, Logger: telemetry.Discard()})

	if err := a.Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

// --- End-to-end Tests ---

func TestEndToEnd_SequentialWorker(t *testing.T) {
	b := memq.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := producer.New(producer.Config{
		Publisher: mq.NewPublisher(b, telemetry.Discard()),
		Logger:    telemetry.Discard(),
	})
	if _, err := p.Publish(ctx, domain.ModelDescriptor{Version: "v1", Multiplier: 4}, []int{100, 200, 300}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	w := worker.New(worker.Config{ID: "w1", Broker: b, Logger: telemetry.Discard()})
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Run(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := b.WaitIdle(waitCtx, mq.QueueTasks); err != nil {
		t.Fatalf("tasks were not processed: %v", err)
	}

	a := runAggregator(t, b, Config{Multiplier: 4, Dedup: true})
	cancel()
	<-workerDone

	snap := a.State().Snapshot()
	if snap.TotalPoints != 600 {
		t.Errorf("expected 600 points, got %d", snap.TotalPoints)
	}
	if snap.ScenarioCount != 3 {
		t.Errorf("expected 3 scenarios, got %d", snap.ScenarioCount)
	}
	if snap.PerWorkerCounts["w1"] != 3 {
		t.Errorf("expected 3 scenarios from w1, got %v", snap.PerWorkerCounts)
	}

	expected := 4 * float64(snap.TotalHits) / 600
	if math.Abs(snap.Estimate-expected) > 1e-9 {
		t.Errorf("expected estimate %v, got %v", expected, snap.Estimate)
	}
	if math.Abs(snap.Estimate-math.Pi) > 0.5 {
		t.Errorf("estimate %v too far from pi", snap.Estimate)
	}
}
