package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrCorrupted — сохранённые данные не удалось разобрать.
	ErrCorrupted = errors.New("corrupted checkpoint")
)
