package mq

import "errors"

// Ошибки транспорта.
var (
	// ErrConnectionFailed — не удалось подключиться за отведённое число попыток.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNoChannel — AMQP канал недоступен.
	ErrNoChannel = errors.New("no channel available")

	// ErrRequeue — обработчик просит вернуть сообщение в очередь.
	// Оборачивается через fmt.Errorf("...: %w", ErrRequeue).
	ErrRequeue = errors.New("requeue message")

	// ErrUnknownQueue — очередь не описана в топологии.
	ErrUnknownQueue = errors.New("unknown queue")
)
