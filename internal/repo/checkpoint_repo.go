package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Montecarlo/internal/aggregator"
)

// schema — таблицы checkpoint'ов агрегатора.
//
// aggregator_consumed растёт добавлением: Save пишет только новые id.
var schema = []string{`
	CREATE TABLE IF NOT EXISTS aggregator_checkpoints (
		run_id     TEXT PRIMARY KEY,
		state      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, `
	CREATE TABLE IF NOT EXISTS aggregator_consumed (
		run_id      TEXT NOT NULL,
		scenario_id TEXT NOT NULL,
		PRIMARY KEY (run_id, scenario_id)
	)`,
}

// CheckpointRepo хранит checkpoint'ы агрегатора в PostgreSQL.
//
// Право записи run'а защищено session-level advisory lock'ом:
// lock держит выделенное соединение пула, пока жив Aggregator.
type CheckpointRepo struct {
	pool *pgxpool.Pool
}

var _ aggregator.CheckpointStore = (*CheckpointRepo)(nil)

// NewCheckpointRepo создаёт новый CheckpointRepo.
func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

// EnsureSchema создаёт таблицы, если их нет.
func (r *CheckpointRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create checkpoint tables: %w", err)
		}
	}
	return nil
}

// Lock захватывает advisory lock run'а на отдельном соединении.
func (r *CheckpointRepo) Lock(ctx context.Context, runID string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock(hashtext($1))", runID).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("run %s: %w", runID, aggregator.ErrLocked)
	}

	release := func() {
		// ctx Run'а к этому моменту уже отменён
		_, _ = conn.Exec(context.Background(), "select pg_advisory_unlock(hashtext($1))", runID)
		conn.Release()
	}
	return release, nil
}

// Load возвращает checkpoint run'а вместе со всеми учтёнными id.
func (r *CheckpointRepo) Load(ctx context.Context, runID string) (aggregator.Checkpoint, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		"SELECT state FROM aggregator_checkpoints WHERE run_id = $1", runID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aggregator.Checkpoint{}, false, nil
		}
		return aggregator.Checkpoint{}, false, fmt.Errorf("select checkpoint: %w", err)
	}

	var cp aggregator.Checkpoint
	if err := json.Unmarshal(raw, &cp.State); err != nil {
		return aggregator.Checkpoint{}, false, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if cp.State.PerWorkerCounts == nil {
		cp.State.PerWorkerCounts = make(map[string]int)
	}

	rows, err := r.pool.Query(ctx,
		"SELECT scenario_id FROM aggregator_consumed WHERE run_id = $1", runID,
	)
	if err != nil {
		return aggregator.Checkpoint{}, false, fmt.Errorf("select consumed ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return aggregator.Checkpoint{}, false, fmt.Errorf("scan consumed ids: %w", err)
	}
	cp.ConsumedIDs = ids

	return cp, true, nil
}

// Save в одной транзакции перезаписывает состояние и добавляет новые id.
func (r *CheckpointRepo) Save(ctx context.Context, runID string, cp aggregator.Checkpoint) error {
	raw, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	upsert := `
		INSERT INTO aggregator_checkpoints (run_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (run_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`
	insertIDs := `
		INSERT INTO aggregator_consumed (run_id, scenario_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert, runID, raw); err != nil {
			return fmt.Errorf("upsert checkpoint: %w", err)
		}
		if len(cp.ConsumedIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertIDs, runID, cp.ConsumedIDs); err != nil {
			return fmt.Errorf("insert consumed ids: %w", err)
		}
		return nil
	})
}

// Delete удаляет checkpoint run'а.
func (r *CheckpointRepo) Delete(ctx context.Context, runID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM aggregator_consumed WHERE run_id = $1", runID); err != nil {
			return fmt.Errorf("delete consumed ids: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM aggregator_checkpoints WHERE run_id = $1", runID); err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		return nil
	})
}
