package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/handshake"
	"github.com/shaiso/Montecarlo/internal/producer"
	"github.com/shaiso/Montecarlo/internal/strategy"
)

// workloadFlags — флаги модели и объёма работы, общие для produce и local.
type workloadFlags struct {
	file       string
	points     int
	unitSize   int
	strategy   string
	multiplier float64
	version    string
	seed       uint64

	handshakeAddr string
	clientID      string
}

func (f *workloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "File with one sample count per line")
	cmd.Flags().IntVar(&f.points, "points", 0, "Total points, partitioned into tasks of --unit-size")
	cmd.Flags().IntVar(&f.unitSize, "unit-size", handshake.DefaultUnitSize, "Points per task with --points")
	cmd.Flags().StringVar(&f.strategy, "strategy", domain.DefaultStrategy, "Strategy name")
	cmd.Flags().Float64Var(&f.multiplier, "multiplier", 0, "Estimate multiplier (0 = strategy default)")
	cmd.Flags().StringVar(&f.version, "version", "v1", "Model version")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Base RNG seed (0 = random)")
	cmd.Flags().StringVar(&f.handshakeAddr, "handshake-addr", "", "Negotiate unit size with the handshake server")
	cmd.Flags().StringVar(&f.clientID, "client-id", "producer", "Identity for the handshake")
	cmd.MarkFlagsMutuallyExclusive("file", "points")
}

// model строит дескриптор по флагам. Стратегия проверяется по реестру.
func (f *workloadFlags) model() (domain.ModelDescriptor, strategy.Definition, error) {
	def, ok := strategy.DefaultRegistry().Lookup(f.strategy)
	if !ok {
		return domain.ModelDescriptor{}, strategy.Definition{}, fmt.Errorf("%w: %q (available: %v)",
			strategy.ErrUnknownStrategy, f.strategy, strategy.DefaultRegistry().Names())
	}

	multiplier := f.multiplier
	if multiplier == 0 {
		multiplier = def.Multiplier
	}

	model := domain.ModelDescriptor{
		Version:    f.version,
		Strategy:   def.Name,
		Multiplier: multiplier,
		Seed:       f.seed,
	}
	return model, def, nil
}

// counts возвращает размеры задач из файла или из --points.
func (f *workloadFlags) counts(ctx context.Context, logger *slog.Logger) ([]int, int, error) {
	switch {
	case f.file != "":
		file, err := os.Open(f.file)
		if err != nil {
			return nil, 0, fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		return producer.ParseSampleCounts(file, logger)

	case f.points > 0:
		return producer.Partition(f.points, f.negotiatedUnitSize(ctx, logger)), 0, nil
	}

	return nil, 0, fmt.Errorf("either --file or --points is required")
}

// negotiatedUnitSize возвращает согласованный размер задачи; при сбое
// handshake — --unit-size.
func (f *workloadFlags) negotiatedUnitSize(ctx context.Context, logger *slog.Logger) int {
	unitSize, err := f.resolveUnitSize(ctx, logger)
	if err != nil {
		logger.Warn("handshake fallback", "unit_size", unitSize, "error", err)
	}
	return unitSize
}

// resolveUnitSize согласует размер задачи, если задан --handshake-addr.
func (f *workloadFlags) resolveUnitSize(ctx context.Context, logger *slog.Logger) (int, error) {
	if f.handshakeAddr == "" {
		return f.unitSize, nil
	}

	client, err := handshake.NewClient(f.handshakeAddr, handshake.DefaultTimeout)
	if err != nil {
		return f.unitSize, err
	}
	defer client.Close()

	unitSize, err := handshake.Resolve(ctx, client, f.clientID, f.unitSize)
	if err == nil {
		logger.Info("unit size negotiated", "unit_size", unitSize)
	}
	return unitSize, err
}

