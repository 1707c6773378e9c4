package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Montecarlo/internal/mq"
)

// purgeResult — строка отчёта purge.
type purgeResult struct {
	Queue  string `json:"queue"`
	Purged int    `json:"purged"`
}

// NewPurgeCmd создаёт команду очистки всех очередей.
func NewPurgeCmd(brokerFn BrokerFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Purge the model, task, result and dead-letter queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			b, closeFn, err := brokerFn(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			results := make([]purgeResult, 0, len(mq.AllQueues()))
			rows := make([][]string, 0, len(mq.AllQueues()))
			for _, q := range mq.AllQueues() {
				n, err := b.Purge(ctx, q)
				if err != nil {
					return fmt.Errorf("purge %s: %w", q, err)
				}
				results = append(results, purgeResult{Queue: string(q), Purged: n})
				rows = append(rows, []string{string(q), strconv.Itoa(n)})
			}

			out.Print([]string{"QUEUE", "PURGED"}, rows, results)
			out.Successf("Queues purged")
			return nil
		},
	}
}

// NewStatusCmd создаёт команду вывода глубины очередей.
func NewStatusCmd(brokerFn BrokerFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depths and consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			b, closeFn, err := brokerFn(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			infos := make([]mq.QueueInfo, 0, len(mq.AllQueues()))
			rows := make([][]string, 0, len(mq.AllQueues()))
			for _, q := range mq.AllQueues() {
				info, err := b.Inspect(ctx, q)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", q, err)
				}
				infos = append(infos, info)
				rows = append(rows, []string{info.Name, strconv.Itoa(info.Messages), strconv.Itoa(info.Consumers)})
			}

			out.Print([]string{"QUEUE", "MESSAGES", "CONSUMERS"}, rows, infos)
			return nil
		},
	}
}
