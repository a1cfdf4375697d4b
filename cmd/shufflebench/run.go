package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/shufflebench/pkg/aggregator"
	"github.com/jihwankim/shufflebench/pkg/bench"
	"github.com/jihwankim/shufflebench/pkg/binder"
	"github.com/jihwankim/shufflebench/pkg/config"
	"github.com/jihwankim/shufflebench/pkg/engine"
	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/reporting"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
	"github.com/jihwankim/shufflebench/pkg/tam"
	"github.com/jihwankim/shufflebench/pkg/topology"
	"github.com/jihwankim/shufflebench/pkg/verify"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run a single shuffle experiment",
	Long:  `Elects aggregators, binds producers, and runs the chosen shuffle method over an in-process rank substrate, reporting per-round timings.`,
	RunE:  runShuffle,
}

func init() {
	runCmd.Flags().IntP("world", "n", 8, "world size N")
	runCmd.Flags().IntP("aggregators", "a", 1, "global aggregator count K")
	runCmd.Flags().IntP("procs-per-node", "p", 4, "processes per node P")
	runCmd.Flags().IntP("data-size", "d", 1024, "per-pair data size D, bytes")
	runCmd.Flags().IntP("throttle", "c", 0, "outstanding-request throttle C (0 = unthrottled)")
	runCmd.Flags().IntP("experiments", "i", 1, "number of experiments I")
	runCmd.Flags().IntP("repeats", "k", 1, "inner repeats per experiment R")
	runCmd.Flags().StringP("policy", "t", "contiguous", "aggregator election policy T")
	runCmd.Flags().StringP("barrier", "b", "none", "barrier type B (none|each_step|each_block)")
	runCmd.Flags().StringP("method", "m", "all_to_many", "shuffle method M")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics at this address (e.g. :9090); empty disables")
}

func runShuffle(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	n, _ := cmd.Flags().GetInt("world")
	k, _ := cmd.Flags().GetInt("aggregators")
	p, _ := cmd.Flags().GetInt("procs-per-node")
	d, _ := cmd.Flags().GetInt("data-size")
	c, _ := cmd.Flags().GetInt("throttle")
	experiments, _ := cmd.Flags().GetInt("experiments")
	repeats, _ := cmd.Flags().GetInt("repeats")
	policy, _ := cmd.Flags().GetString("policy")
	method, _ := cmd.Flags().GetString("method")
	barrier, _ := cmd.Flags().GetString("barrier")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if experiments < 1 {
		return fmt.Errorf("-i/--experiments must be >= 1, got %d", experiments)
	}
	if repeats < 1 {
		return fmt.Errorf("-k/--repeats must be >= 1, got %d", repeats)
	}
	switch engine.Barrier(barrier) {
	case engine.BarrierNone, engine.BarrierEachStep, engine.BarrierEachBlock:
	default:
		return fmt.Errorf("-b/--barrier must be one of none|each_step|each_block, got %q", barrier)
	}

	logLevel := reporting.LogLevelInfo
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})

	topo, err := topology.NewStatic(n, p, topology.AssignmentMode(cfg.Topology.Assignment))
	if err != nil {
		return err
	}
	agg, err := aggregator.Elect(n, k, aggregator.Policy(policy), topo)
	if err != nil {
		return err
	}
	bind, err := binder.Bind(topo, agg.Global, cfg.Aggregation.Co, binder.Mode(cfg.Aggregation.BindMode))
	if err != nil {
		return err
	}
	logger.Info("topology elected", "world", n, "nodes", topo.NumNodes(), "aggregators", len(agg.Global))

	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN)
	if err != nil {
		return err
	}
	csvWriter, err := reporting.NewCSVWriter(filepath.Join(storage.GetOutputDir(), cfg.Reporting.CSVFile))
	if err != nil {
		return err
	}
	defer csvWriter.Close()

	progress := reporting.NewProgressReporter(os.Stdout)

	exporter := metrics.NewExporter()
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: exporter.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	for exp := 0; exp < experiments; exp++ {
		var last []metrics.RoundTimes
		for rep := 0; rep < repeats; rep++ {
			plans := bench.BuildManyToFewPlans(n, d, c, agg, bind)
			if err := plan.ValidateRound(plans); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), config.ExperimentTimeout())
			times, err := runOne(ctx, topo, plans, method, engine.Barrier(barrier))
			cancel()
			if err != nil {
				progress.RoundFailed(method, exp*repeats+rep+1, experiments*repeats, err)
				return err
			}
			for _, pl := range plans {
				if v := verify.Verify(pl.Rank, pl.Sizes.RecvLen, pl.RecvBuf, pl.RoundID); !v.Ok {
					return v.Err()
				}
			}
			last = times
			for r, rt := range times {
				exporter.Observe(r, method, rt)
			}
			progress.RoundCompleted(method, exp*repeats+rep+1, experiments*repeats, times[0].Total.Seconds())
		}

		summary := reporting.RoundSummary{
			Method:   method,
			N:        n,
			K:        k,
			DataSize: d,
			Throttle: c,
			Repeats:  repeats,
			Policy:   policy,
			Rank0:    last[0],
			Max:      metrics.ReduceMax(last),
		}
		if err := csvWriter.Write(summary); err != nil {
			return err
		}
		logger.Round("round completed", summary)

		report := &reporting.RoundReport{
			ID:        fmt.Sprintf("%s-%d", method, time.Now().UnixNano()),
			Variant:   method,
			N:         n,
			K:         k,
			DataSize:  d,
			Throttle:  c,
			StartedAt: time.Now(),
			PerRank:   last,
		}
		if err := storage.SaveReport(report); err != nil {
			logger.Warn("failed to save round report", "error", err)
		} else {
			logger.Report("round report saved", report)
		}
	}

	progress.SweepSummary(experiments*repeats, 0)
	return nil
}

func runOne(ctx context.Context, topo *topology.Topology, plans []*plan.Plan, method string, barrier engine.Barrier) ([]metrics.RoundTimes, error) {
	n := len(plans)
	comms := substrate.NewWorld(n, nil)
	times := make([]metrics.RoundTimes, n)
	eg, egctx := errgroup.WithContext(ctx)
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			switch method {
			case "tam_message":
				res, err := tam.Round(egctx, comms[r], topo, plans[r], tam.MessageBased)
				if err != nil {
					return err
				}
				times[r] = res.Times
			case "tam_window":
				res, err := tam.Round(egctx, comms[r], topo, plans[r], tam.SharedWindow)
				if err != nil {
					return err
				}
				times[r] = res.Times
			default:
				res, err := engine.ShuffleWithBarrier(egctx, comms[r], plans[r], engine.Variant(method), barrier)
				if err != nil {
					return shuffleerr.SubstrateError("shuffle round failed", err)
				}
				times[r] = res.Times
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return times, nil
}
