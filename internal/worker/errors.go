package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoModel — задача пришла до загрузки модели.
	ErrNoModel = errors.New("model not loaded")

	// ErrBootstrapAborted — worker остановлен до получения модели.
	ErrBootstrapAborted = errors.New("bootstrap aborted")

	// ErrExecutionTimeout — выполнение задачи превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionFailed — стратегия завершилась ошибкой.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
