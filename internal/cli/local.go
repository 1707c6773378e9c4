package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Montecarlo/internal/aggregator"
	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/mq/memq"
	"github.com/shaiso/Montecarlo/internal/producer"
	"github.com/shaiso/Montecarlo/internal/worker"
)

// localView — итог команды local в JSON режиме.
type localView struct {
	Estimate EstimateResponse `json:"estimate"`
	Workers  []WorkerResponse `json:"workers"`
	Elapsed  string           `json:"elapsed"`
}

// LocalOptions — параметры запуска всей системы в одном процессе.
type LocalOptions struct {
	Model   domain.ModelDescriptor
	Counts  []int
	Workers int
	Dedup   bool
	Logger  *slog.Logger
}

// RunLocal публикует workload в memq, запускает Workers worker'ов и aggregator
// и возвращает снимок после обработки всех задач.
func RunLocal(ctx context.Context, opts LocalOptions) (domain.AggregateState, error) {
	b := memq.New(nil)
	model := opts.Model.Normalize()

	p := producer.New(producer.Config{
		Publisher:   mq.NewPublisher(b, opts.Logger),
		ModelCopies: opts.Workers,
		Logger:      opts.Logger,
	})
	if _, err := p.Publish(ctx, model, opts.Counts); err != nil {
		return domain.AggregateState{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := aggregator.New(aggregator.Config{
		Broker:     b,
		Multiplier: model.Multiplier,
		Dedup:      opts.Dedup,
		Logger:     opts.Logger,
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return agg.Run(gctx) })
	for range opts.Workers {
		w := worker.New(worker.Config{Broker: b, Logger: opts.Logger})
		g.Go(func() error {
			// Задач меньше, чем worker'ов: лишний worker так и не получит модель
			if err := w.Run(gctx); err != nil && !errors.Is(err, worker.ErrBootstrapAborted) {
				return err
			}
			return nil
		})
	}

	// Результат публикуется до ack задачи: пустая очередь задач значит,
	// что все результаты уже в очереди результатов
	waitErr := b.WaitIdle(gctx, mq.QueueTasks)
	if waitErr == nil {
		waitErr = b.WaitIdle(gctx, mq.QueueResults)
	}

	cancel()
	if err := g.Wait(); err != nil {
		return agg.State().Snapshot(), err
	}
	if waitErr != nil && ctx.Err() != nil {
		return agg.State().Snapshot(), ctx.Err()
	}
	return agg.State().Snapshot(), nil
}

// NewLocalCmd создаёт команду локального прогона.
func NewLocalCmd(outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	var (
		workload workloadFlags
		workers  int
		naive    bool
	)

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run producer, workers and aggregator in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			if workers <= 0 {
				return fmt.Errorf("--workers must be positive, got %d", workers)
			}

			model, def, err := workload.model()
			if err != nil {
				return err
			}
			counts, _, err := workload.counts(ctx, logger)
			if err != nil {
				return err
			}

			start := time.Now()
			snap, err := RunLocal(ctx, LocalOptions{
				Model:   model,
				Counts:  counts,
				Workers: workers,
				Dedup:   !naive,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			est := estimateFromSnapshot(snap, def.Reference)
			ws := workersFromSnapshot(snap)

			if out.jsonMode {
				out.JSON(localView{Estimate: est, Workers: ws, Elapsed: elapsed.String()})
				return nil
			}

			out.Successf("Processed %d scenarios in %s", snap.ScenarioCount, elapsed.Round(time.Millisecond))
			out.PrintFields(estimateFields(&est), nil)
			fmt.Fprintln(out.w)
			out.Table([]string{"WORKER", "SCENARIOS", "SHARE"}, workerRows(ws))
			return nil
		},
	}

	workload.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 3, "Number of workers")
	cmd.Flags().BoolVar(&naive, "naive", false, "Disable deduplication of redelivered results")

	return cmd
}

func estimateFromSnapshot(s domain.AggregateState, reference float64) EstimateResponse {
	est := EstimateResponse{
		Estimate:      s.Estimate,
		Multiplier:    s.Multiplier,
		TotalPoints:   s.TotalPoints,
		TotalHits:     s.TotalHits,
		ScenarioCount: s.ScenarioCount,
		Workers:       len(s.PerWorkerCounts),
		Duplicates:    s.Duplicates,
		Rejected:      s.Rejected,
	}
	if reference != 0 && s.TotalPoints > 0 {
		absErr := math.Abs(s.Estimate - reference)
		est.AbsError = &absErr
	}
	return est
}

func workersFromSnapshot(s domain.AggregateState) []WorkerResponse {
	activity := aggregator.SortedWorkers(s)
	result := make([]WorkerResponse, len(activity))
	for i, a := range activity {
		result[i] = WorkerResponse{WorkerID: a.WorkerID, Scenarios: a.Scenarios}
		if s.ScenarioCount > 0 {
			result[i].Share = float64(a.Scenarios) / float64(s.ScenarioCount)
		}
	}
	return result
}

