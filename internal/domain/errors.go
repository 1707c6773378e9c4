package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrMalformed — сообщение не прошло структурную валидацию.
	ErrMalformed = errors.New("malformed message")

	// ErrHitsOutOfRange — hit_count вне диапазона [0, sample_count].
	ErrHitsOutOfRange = errors.New("hit count out of range")
)
