// Montecarlo CLI — инструмент оператора распределённой оценки Monte Carlo.
//
// Использование:
//
//	montecarlo [--rabbitmq-url URL] [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	produce   Публикация модели и задач
//	purge     Очистка очередей
//	status    Глубина очередей
//	estimate  Текущая оценка из API Aggregator'а
//	local     Весь конвейер в одном процессе
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Montecarlo/internal/cli"
	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger()

	var (
		rabbitURL  string
		apiURL     string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:           "montecarlo",
		Short:         "Montecarlo CLI — distributed Monte Carlo estimation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&rabbitURL, "rabbitmq-url", cfg.RabbitMQURL, "RabbitMQ URL")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:"+cfg.Aggregator.Port, "Aggregator API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	brokerFn := cli.AMQPBroker(&rabbitURL, logger)
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewProduceCmd(brokerFn, outputFn, logger, cfg.Producer),
		cli.NewPurgeCmd(brokerFn, outputFn),
		cli.NewStatusCmd(brokerFn, outputFn),
		cli.NewEstimateCmd(clientFn, outputFn),
		cli.NewLocalCmd(outputFn, logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
