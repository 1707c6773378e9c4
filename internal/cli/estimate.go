package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// estimateView — ответ команды estimate в JSON режиме.
type estimateView struct {
	Estimate *EstimateResponse `json:"estimate"`
	Workers  []WorkerResponse  `json:"workers"`
}

// NewEstimateCmd создаёт команду чтения оценки из API Aggregator'а.
func NewEstimateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate",
		Short: "Show the current estimate and worker activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			est, err := client.GetEstimate()
			if err != nil {
				return err
			}
			workers, err := client.ListWorkers()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(estimateView{Estimate: est, Workers: workers})
				return nil
			}

			out.PrintFields(estimateFields(est), nil)
			fmt.Fprintln(out.w)
			out.Table([]string{"WORKER", "SCENARIOS", "SHARE"}, workerRows(workers))
			return nil
		},
	}
}

func estimateFields(est *EstimateResponse) [][2]string {
	fields := [][2]string{
		{"Estimate", strconv.FormatFloat(est.Estimate, 'f', 6, 64)},
		{"Multiplier", strconv.FormatFloat(est.Multiplier, 'g', -1, 64)},
		{"Total points", strconv.FormatInt(est.TotalPoints, 10)},
		{"Total hits", strconv.FormatInt(est.TotalHits, 10)},
		{"Scenarios", strconv.Itoa(est.ScenarioCount)},
		{"Workers", strconv.Itoa(est.Workers)},
		{"Duplicates", strconv.Itoa(est.Duplicates)},
		{"Rejected", strconv.Itoa(est.Rejected)},
	}
	if est.AbsError != nil {
		fields = append(fields, [2]string{"Abs error", strconv.FormatFloat(*est.AbsError, 'e', 3, 64)})
	}
	return fields
}

func workerRows(workers []WorkerResponse) [][]string {
	rows := make([][]string, len(workers))
	for i, w := range workers {
		rows[i] = []string{w.WorkerID, strconv.Itoa(w.Scenarios), fmt.Sprintf("%.1f%%", w.Share*100)}
	}
	return rows
}
