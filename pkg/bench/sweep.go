package bench

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/shufflebench/pkg/aggregator"
	"github.com/jihwankim/shufflebench/pkg/binder"
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

// tamMessage and tamWindow name TAM's two variants in the method-sweep's
// namespace, alongside pkg/engine.AllVariants, so a sweep row's "method"
// column can tell them apart (SPEC_FULL.md §12).
const (
	tamMessage = "tam_message"
	tamWindow  = "tam_window"
)

// SweepConfig is one experiment's parameters, reused across every variant
// a sweep runs so their results are directly comparable.
type SweepConfig struct {
	N            int
	K            int
	ProcsPerNode int
	Mode         topology.AssignmentMode
	Policy       aggregator.Policy
	BinderMode   binder.Mode
	BinderCount  int
	DataSize     int
	Throttle     int
	Repeats      int
	Barrier      engine.Barrier // zero value behaves as engine.BarrierNone
	Variants     []string       // empty means every known variant, including tam
}

// SweepOutcome is one variant's result within a sweep: its CSV-ready
// summary plus whether its recv buffers matched the first variant run.
type SweepOutcome struct {
	Summary reporting.RoundSummary
	Agrees  bool
	Err     error
}

// Sweep drives every requested variant, in order, over freshly built
// plans with identical (N, K, policy, data_size, throttle) parameters,
// and reports whether every variant produced byte-identical recv buffers
// (spec §8's "variant equivalence" testable property).
func Sweep(ctx context.Context, cfg SweepConfig, w *reporting.CSVWriter, progress *reporting.ProgressReporter) ([]SweepOutcome, error) {
	topo, err := topology.NewStatic(cfg.N, cfg.ProcsPerNode, cfg.Mode)
	if err != nil {
		return nil, shuffleerr.TopologyUnavailable("build static topology", err)
	}
	agg, err := aggregator.Elect(cfg.N, cfg.K, cfg.Policy, topo)
	if err != nil {
		return nil, fmt.Errorf("elect aggregators: %w", err)
	}
	bind, err := binder.Bind(topo, agg.Global, cfg.BinderCount, cfg.BinderMode)
	if err != nil {
		return nil, fmt.Errorf("bind local aggregators: %w", err)
	}

	names := cfg.Variants
	if len(names) == 0 {
		names = allVariantNames()
	}

	var reference [][]byte
	outcomes := make([]SweepOutcome, 0, len(names))
	for i, name := range names {
		comms := substrate.NewWorld(cfg.N, nil)
		plans := BuildManyToFewPlans(cfg.N, cfg.DataSize, cfg.Throttle, agg, bind)
		if err := plan.ValidateRound(plans); err != nil {
			return nil, err
		}

		if progress != nil {
			progress.RoundStarted(name, i+1, len(names))
		}
		times, err := runVariant(ctx, comms, topo, plans, name, cfg.Barrier)
		if err != nil {
			if progress != nil {
				progress.RoundFailed(name, i+1, len(names), err)
			}
			outcomes = append(outcomes, SweepOutcome{
				Summary: reporting.RoundSummary{Method: name, N: cfg.N, K: cfg.K, DataSize: cfg.DataSize, Throttle: cfg.Throttle, Repeats: cfg.Repeats, Policy: string(cfg.Policy)},
				Err:     err,
			})
			continue
		}
		for _, pl := range plans {
			if v := verify.Verify(pl.Rank, pl.Sizes.RecvLen, pl.RecvBuf, pl.RoundID); !v.Ok {
				err = v.Err()
				break
			}
		}

		flat := flattenRecv(plans)
		agrees := true
		if reference == nil {
			reference = flat
		} else {
			agrees = sameBytes(reference, flat)
		}

		summary := reporting.RoundSummary{
			Method:   name,
			N:        cfg.N,
			K:        cfg.K,
			DataSize: cfg.DataSize,
			Throttle: cfg.Throttle,
			Repeats:  cfg.Repeats,
			Policy:   string(cfg.Policy),
			Rank0:    times[0],
			Max:      metrics.ReduceMax(times),
		}
		if w != nil {
			if werr := w.Write(summary); werr != nil {
				return outcomes, werr
			}
		}
		if progress != nil {
			progress.RoundCompleted(name, i+1, len(names), summary.Rank0.Total.Seconds())
		}
		outcomes = append(outcomes, SweepOutcome{Summary: summary, Agrees: agrees, Err: err})
	}

	if progress != nil {
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil || !o.Agrees {
				failed++
			}
		}
		progress.SweepSummary(len(outcomes), failed)
	}
	return outcomes, nil
}

func allVariantNames() []string {
	names := make([]string, 0, len(engine.AllVariants)+2)
	for _, v := range engine.AllVariants {
		names = append(names, string(v))
	}
	return append(names, tamMessage, tamWindow)
}

// runVariant executes one named variant over every rank's plan
// concurrently and returns each rank's RoundTimes in rank order.
func runVariant(ctx context.Context, comms []substrate.Comm, topo *topology.Topology, plans []*plan.Plan, name string, barrier engine.Barrier) ([]metrics.RoundTimes, error) {
	n := len(comms)
	times := make([]metrics.RoundTimes, n)
	eg, egctx := errgroup.WithContext(ctx)
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			switch name {
			case tamMessage:
				res, err := tam.Round(egctx, comms[r], topo, plans[r], tam.MessageBased)
				if err != nil {
					return err
				}
				times[r] = res.Times
				return nil
			case tamWindow:
				res, err := tam.Round(egctx, comms[r], topo, plans[r], tam.SharedWindow)
				if err != nil {
					return err
				}
				times[r] = res.Times
				return nil
			default:
				res, err := engine.ShuffleWithBarrier(egctx, comms[r], plans[r], engine.Variant(name), barrier)
				if err != nil {
					return err
				}
				times[r] = res.Times
				return nil
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return times, nil
}

// BuildManyToFewPlans constructs one Plan per rank for a many-to-few
// round: every rank sends dataSize bytes to every global aggregator other
// than itself, and every global aggregator receives dataSize bytes from
// every rank, per spec §3's "K of N producers forward to aggregators"
// model. Non-aggregator destinations carry zero length. Shared by
// cmd/shufflebench's run and sweep subcommands so both exercise the same
// plan-construction logic.
func BuildManyToFewPlans(n, dataSize, throttle int, agg *aggregator.Result, bind *binder.Result) []*plan.Plan {
	isGlobal := make([]bool, n)
	for _, g := range agg.Global {
		isGlobal[g] = true
	}
	isLocal := make([]bool, n)
	for _, l := range bind.Local {
		isLocal[l] = true
	}

	sendLens := make([][]int, n)
	for i := 0; i < n; i++ {
		sendLens[i] = make([]int, n)
		for _, g := range agg.Global {
			if g == i {
				continue
			}
			sendLens[i][g] = dataSize
		}
	}

	plans := make([]*plan.Plan, n)
	for r := 0; r < n; r++ {
		sizes := plan.NewSizeMatrix(n)
		copy(sizes.SendLen, sendLens[r])
		for j := 0; j < n; j++ {
			sizes.RecvLen[j] = sendLens[j][r]
		}
		sendBuf := plan.NewBuffer(sizes.SendLen)
		for j := 0; j < n; j++ {
			if sizes.SendLen[j] == 0 {
				continue
			}
			verify.Fill(sendBuf.Segment(j)[:sizes.SendLen[j]], r, j, 0)
		}
		if throttle <= 0 {
			throttle = n
		}
		plans[r] = &plan.Plan{
			Rank:     r,
			World:    n,
			RoundID:  0,
			Throttle: throttle,
			Sizes:    sizes,
			SendBuf:  sendBuf,
			RecvBuf:  plan.NewBuffer(sizes.RecvLen),
			IsGlobal: isGlobal[r],
			Global:   agg.Global,
			IsLocal:  isLocal[r],
			Local:    bind.Local,
			Bind:     bind.Bind,
		}
	}
	return plans
}

func flattenRecv(plans []*plan.Plan) [][]byte {
	out := make([][]byte, len(plans))
	for i, pl := range plans {
		out[i] = append([]byte(nil), pl.RecvBuf.Data...)
	}
	return out
}

func sameBytes(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
