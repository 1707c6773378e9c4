package api

import (
	"log/slog"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// SnapshotSource отдаёт копию текущего AggregateState.
//
// Реализация: aggregator.State.
type SnapshotSource interface {
	Snapshot() domain.AggregateState
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	source    SnapshotSource
	reference float64
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Source SnapshotSource

	// Reference — точное значение для поля abs_error (0 — не выводить).
	Reference float64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		source:    cfg.Source,
		reference: cfg.Reference,
		logger:    logger,
	}
}
