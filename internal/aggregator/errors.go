package aggregator

import "errors"

// Ошибки агрегатора.
var (
	// ErrRejected — результат не прошёл проверку и не учтён.
	ErrRejected = errors.New("result rejected")

	// ErrModelMismatch — результат посчитан другой версией модели.
	ErrModelMismatch = errors.New("model version mismatch")

	// ErrLocked — checkpoint run'а пишет другой экземпляр.
	ErrLocked = errors.New("checkpoint locked by another aggregator")
)
