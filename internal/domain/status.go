package domain

// WorkerState — состояние Worker'а.
//
// Жизненный цикл:
//
//	BOOTSTRAPPING → READY → PROCESSING → READY → …
//	                                   ↘ STOPPED (внешняя остановка)
//
// READY необратим: после получения модели Worker не возвращается в BOOTSTRAPPING.
type WorkerState string

const (
	// WorkerStateBootstrapping — ожидание дескриптора модели.
	WorkerStateBootstrapping WorkerState = "BOOTSTRAPPING"

	// WorkerStateReady — модель загружена, ждём задачу.
	WorkerStateReady WorkerState = "READY"

	// WorkerStateProcessing — выполняется одна задача.
	WorkerStateProcessing WorkerState = "PROCESSING"

	// WorkerStateStopped — worker остановлен.
	WorkerStateStopped WorkerState = "STOPPED"
)

// String возвращает строковое представление WorkerState.
func (s WorkerState) String() string {
	return string(s)
}

// HasModel возвращает true, если модель уже загружена.
func (s WorkerState) HasModel() bool {
	switch s {
	case WorkerStateReady, WorkerStateProcessing:
		return true
	default:
		return false
	}
}

// FailurePolicy — что делать с задачей, выполнение которой упало.
type FailurePolicy string

const (
	// FailurePolicyDeadLetter — ограниченный retry, затем DLQ.
	FailurePolicyDeadLetter FailurePolicy = "dead-letter"

	// FailurePolicyDrop — ack и лог (поведение исходной системы).
	FailurePolicyDrop FailurePolicy = "drop"
)

// ParseFailurePolicy парсит строку в FailurePolicy.
func ParseFailurePolicy(s string) FailurePolicy {
	switch s {
	case "drop":
		return FailurePolicyDrop
	default:
		return FailurePolicyDeadLetter
	}
}
