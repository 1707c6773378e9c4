package cli

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/producer"
)

// NewProduceCmd создаёт команду публикации модели и задач.
//
// defaults — значения флагов из конфигурации.
func NewProduceCmd(brokerFn BrokerFunc, outputFn func() *Output, logger *slog.Logger, defaults config.ProducerConfig) *cobra.Command {
	var (
		workload    workloadFlags
		ttl         time.Duration
		rps         float64
		modelCopies int
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish the model descriptor and scenario tasks",
		Long: `Publish the model descriptor and scenario tasks.

Tasks come from --file (one sample count per line) or from --points,
partitioned into tasks of --unit-size points. With --interval the producer
keeps publishing one task per interval until stopped. With --handshake-addr
the task size is negotiated first and --unit-size is the fallback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			model, _, err := workload.model()
			if err != nil {
				return err
			}

			b, closeFn, err := brokerFn(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			p := producer.New(producer.Config{
				Publisher:   mq.NewPublisher(b, logger),
				ModelTTL:    ttl,
				ModelCopies: modelCopies,
				Rate:        rps,
				Logger:      logger,
			})

			var report producer.Report
			if interval > 0 {
				report, err = p.Stream(ctx, model, workload.negotiatedUnitSize(ctx, logger), interval)
				if err != nil && ctx.Err() == nil {
					return err
				}
			} else {
				counts, skipped, err := workload.counts(ctx, logger)
				if err != nil {
					return err
				}
				report, err = p.Publish(ctx, model, counts)
				if err != nil {
					return err
				}
				report.Skipped += skipped
			}

			out.Successf("Published model %s (%s, multiplier %g)", model.Version, model.Strategy, model.Multiplier)
			out.Print(
				[]string{"MODELS", "TASKS", "POINTS", "SKIPPED"},
				[][]string{{
					strconv.Itoa(report.ModelsPublished),
					strconv.Itoa(report.Tasks),
					strconv.Itoa(report.Points),
					strconv.Itoa(report.Skipped),
				}},
				report,
			)
			return nil
		},
	}

	workload.register(cmd)
	cmd.Flags().DurationVar(&ttl, "ttl", defaults.ModelTTL, "Model descriptor TTL in the queue")
	cmd.Flags().Float64Var(&rps, "rate", defaults.Rate, "Tasks per second (0 = unlimited)")
	cmd.Flags().IntVar(&modelCopies, "model-copies", defaults.ModelCopies, "Model descriptor copies, one per worker")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Publish one task per interval until stopped")

	return cmd
}
