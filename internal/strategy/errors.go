package strategy

import "errors"

// Ошибки стратегий.
var (
	// ErrUnknownStrategy — тег стратегии не зарегистрирован.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidSampleCount — количество точек должно быть > 0.
	ErrInvalidSampleCount = errors.New("sample count must be positive")

	// ErrInvalidParams — некорректные параметры стратегии.
	ErrInvalidParams = errors.New("invalid strategy params")
)
