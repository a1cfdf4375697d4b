package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jihwankim/shufflebench/pkg/aggregator"
	"github.com/jihwankim/shufflebench/pkg/bench"
	"github.com/jihwankim/shufflebench/pkg/binder"
	"github.com/jihwankim/shufflebench/pkg/config"
	"github.com/jihwankim/shufflebench/pkg/reporting"
	"github.com/jihwankim/shufflebench/pkg/topology"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Args:  cobra.NoArgs,
	Short: "Run every shuffle method over the same plan and compare results",
	Long:  `Drives every point-to-point shuffle variant plus both TAM variants over an identical (N, K, policy, data_size, throttle) plan, reporting whether every method produced byte-identical output (SPEC_FULL.md method-sweep mode).`,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().IntP("world", "n", 8, "world size N")
	sweepCmd.Flags().IntP("aggregators", "a", 1, "global aggregator count K")
	sweepCmd.Flags().IntP("procs-per-node", "p", 4, "processes per node P")
	sweepCmd.Flags().IntP("data-size", "d", 1024, "per-pair data size D, bytes")
	sweepCmd.Flags().IntP("throttle", "c", 0, "outstanding-request throttle C (0 = unthrottled)")
	sweepCmd.Flags().StringP("policy", "t", "contiguous", "aggregator election policy T")
	sweepCmd.Flags().StringSlice("methods", nil, "comma-separated method list (default: every known method)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	n, _ := cmd.Flags().GetInt("world")
	k, _ := cmd.Flags().GetInt("aggregators")
	p, _ := cmd.Flags().GetInt("procs-per-node")
	d, _ := cmd.Flags().GetInt("data-size")
	c, _ := cmd.Flags().GetInt("throttle")
	policy, _ := cmd.Flags().GetString("policy")
	methods, _ := cmd.Flags().GetStringSlice("methods")

	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN)
	if err != nil {
		return err
	}
	csvWriter, err := reporting.NewCSVWriter(filepath.Join(storage.GetOutputDir(), "sweep-"+cfg.Reporting.CSVFile))
	if err != nil {
		return err
	}
	defer csvWriter.Close()

	progress := reporting.NewProgressReporter(os.Stdout)

	sweepCfg := bench.SweepConfig{
		N:            n,
		K:            k,
		ProcsPerNode: p,
		Mode:         topology.AssignmentMode(cfg.Topology.Assignment),
		Policy:       aggregator.Policy(policy),
		BinderMode:   binder.Mode(cfg.Aggregation.BindMode),
		BinderCount:  cfg.Aggregation.Co,
		DataSize:     d,
		Throttle:     c,
		Repeats:      1,
		Variants:     methods,
	}

	outcomes, err := bench.Sweep(context.Background(), sweepCfg, csvWriter, progress)
	if err != nil {
		return err
	}

	var disagreements []string
	for _, o := range outcomes {
		if o.Err != nil {
			disagreements = append(disagreements, fmt.Sprintf("%s: %v", o.Summary.Method, o.Err))
			continue
		}
		if !o.Agrees {
			disagreements = append(disagreements, fmt.Sprintf("%s: recv buffers differ from the first method run", o.Summary.Method))
		}
	}
	if len(disagreements) > 0 {
		return fmt.Errorf("sweep found %d disagreement(s):\n%s", len(disagreements), strings.Join(disagreements, "\n"))
	}
	return nil
}
