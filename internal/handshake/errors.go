package handshake

import "errors"

// Ошибки handshake. При любой из них Worker использует локальный размер задачи.
var (
	// ErrDisabled — negotiator не настроен.
	ErrDisabled = errors.New("handshake disabled")

	// ErrRejected — сервер ответил accepted=false.
	ErrRejected = errors.New("handshake rejected")

	// ErrTimeout — ответ не получен за отведённое время.
	ErrTimeout = errors.New("handshake timeout")

	// ErrInvalidReply — accepted=true, но unit_size не положительный.
	ErrInvalidReply = errors.New("invalid handshake reply")
)
