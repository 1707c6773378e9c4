package aggregator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// State — владелец AggregateState.
//
// Пишет только consumer Aggregator'а через Fold. Читатели получают копию
// через Snapshot, живая ссылка наружу не отдаётся.
type State struct {
	mu    sync.RWMutex
	dedup bool
	agg   domain.AggregateState

	// seen — scenario_id уже учтённых результатов (только при dedup).
	seen map[string]struct{}

	// pending — id из seen, ещё не попавшие в сохранённый checkpoint.
	pending []string

	// changes/saved — счётчики изменений: всего и на момент последнего Save.
	changes uint64
	saved   uint64
}

// NewState создаёт пустое состояние.
//
// multiplier <= 0 — domain.DefaultMultiplier. dedup=false — наивная свёртка:
// повторная доставка того же результата учитывается повторно.
func NewState(multiplier float64, dedup bool) *State {
	if multiplier <= 0 {
		multiplier = domain.DefaultMultiplier
	}

	return &State{
		dedup: dedup,
		agg: domain.AggregateState{
			Multiplier:      multiplier,
			PerWorkerCounts: make(map[string]int),
		},
		seen: make(map[string]struct{}),
	}
}

// Fold учитывает результат.
//
// applied=false без ошибки — дубликат (при dedup). Ошибка оборачивает
// ErrRejected: запись нарушает инвариант и в суммы не попадает.
func (s *State) Fold(rec domain.ResultRecord) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := rec.Validate(); err != nil {
		s.agg.Rejected++
		return false, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	if s.dedup {
		if _, ok := s.seen[rec.ScenarioID]; ok {
			s.agg.Duplicates++
			return false, nil
		}
		s.seen[rec.ScenarioID] = struct{}{}
		s.pending = append(s.pending, rec.ScenarioID)
	}

	s.changes++
	s.agg.TotalPoints += int64(rec.SampleCount)
	s.agg.TotalHits += int64(rec.HitCount)
	s.agg.ScenarioCount++
	s.agg.PerWorkerCounts[rec.WorkerID]++
	s.agg.Estimate = domain.Estimate(s.agg.Multiplier, s.agg.TotalHits, s.agg.TotalPoints)

	return true, nil
}

// Adopt принимает модель run'а по первому помеченному результату.
//
// Множитель модели заменяет заданный в конфигурации, оценка пересчитывается.
// Результат другой версии модели — ошибка, оборачивающая ErrModelMismatch.
func (s *State) Adopt(stamp domain.ModelStamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agg.ModelVersion == stamp.Version {
		return nil
	}
	if s.agg.ModelVersion != "" {
		s.agg.Rejected++
		return fmt.Errorf("%w: got %s, run uses %s", ErrModelMismatch, stamp.Version, s.agg.ModelVersion)
	}

	s.agg.ModelVersion = stamp.Version
	if stamp.Multiplier > 0 {
		s.agg.Multiplier = stamp.Multiplier
	}
	s.agg.Estimate = domain.Estimate(s.agg.Multiplier, s.agg.TotalHits, s.agg.TotalPoints)
	s.changes++
	return nil
}

// Snapshot возвращает копию текущего состояния.
func (s *State) Snapshot() domain.AggregateState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Clone()
}

// Dedup сообщает, включена ли дедупликация.
func (s *State) Dedup() bool {
	return s.dedup
}

// Checkpoint — сохраняемое состояние агрегатора.
//
// В Save ConsumedIDs — только id, учтённые после прошлого сохранения;
// из Load приходят все сохранённые id run'а.
type Checkpoint struct {
	State       domain.AggregateState `json:"state"`
	ConsumedIDs []string              `json:"consumed_ids"`
}

// Delta возвращает состояние и id, ещё не попавшие в checkpoint.
// dirty=false — с прошлого MarkSaved ничего не изменилось.
func (s *State) Delta() (cp Checkpoint, mark uint64, dirty bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.pending))
	copy(ids, s.pending)
	return Checkpoint{State: s.agg.Clone(), ConsumedIDs: ids}, s.changes, s.changes != s.saved
}

// MarkSaved отмечает сохранённым состояние, полученное из Delta.
func (s *State) MarkSaved(cp Checkpoint, mark uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = mark
	s.pending = s.pending[len(cp.ConsumedIDs):]
}

// Checkpoint возвращает копию состояния вместе со всеми учтёнными id.
func (s *State) Checkpoint() Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return Checkpoint{State: s.agg.Clone(), ConsumedIDs: ids}
}

// Restore заменяет состояние сохранённым и считает его сохранённым.
//
// Multiplier берётся из checkpoint'а, если модель уже была принята,
// иначе остаётся текущим. Оценка пересчитывается.
func (s *State) Restore(cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	multiplier := s.agg.Multiplier
	s.agg = cp.State.Clone()
	if s.agg.ModelVersion == "" || s.agg.Multiplier <= 0 {
		s.agg.Multiplier = multiplier
	}
	s.agg.Estimate = domain.Estimate(s.agg.Multiplier, s.agg.TotalHits, s.agg.TotalPoints)

	s.seen = make(map[string]struct{}, len(cp.ConsumedIDs))
	for _, id := range cp.ConsumedIDs {
		s.seen[id] = struct{}{}
	}
	s.pending = nil
	s.saved = s.changes
}

// Reject учитывает сообщение, которое не удалось разобрать.
func (s *State) Reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.Rejected++
}
