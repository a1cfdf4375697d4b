package reporting

import (
	"fmt"
	"io"
)

// ProgressReporter prints one line per completed round to an output
// stream, for console use during a sweep. Grounded on the teacher's
// pkg/reporting/progress.go text-format path, with the TUI/JSON formats
// and fault/criterion event types stripped since this driver has no
// fault-injection lifecycle to narrate, only rounds.
type ProgressReporter struct {
	out io.Writer
}

// NewProgressReporter returns a reporter writing to out.
func NewProgressReporter(out io.Writer) *ProgressReporter {
	return &ProgressReporter{out: out}
}

// RoundStarted reports that one (variant, experiment) pair has begun.
func (p *ProgressReporter) RoundStarted(variant string, experiment, of int) {
	fmt.Fprintf(p.out, "[%d/%d] %s: starting\n", experiment, of, variant)
}

// RoundCompleted reports a completed round's rank-0 total time.
func (p *ProgressReporter) RoundCompleted(variant string, experiment, of int, totalSeconds float64) {
	fmt.Fprintf(p.out, "[%d/%d] %s: done in %.6fs\n", experiment, of, variant, totalSeconds)
}

// RoundFailed reports a round that aborted with an error.
func (p *ProgressReporter) RoundFailed(variant string, experiment, of int, err error) {
	fmt.Fprintf(p.out, "[%d/%d] %s: FAILED: %v\n", experiment, of, variant, err)
}

// SweepSummary reports the final tally once every variant has run.
func (p *ProgressReporter) SweepSummary(total, failed int) {
	if failed == 0 {
		fmt.Fprintf(p.out, "sweep complete: %d rounds, all agreed\n", total)
		return
	}
	fmt.Fprintf(p.out, "sweep complete: %d rounds, %d failed\n", total, failed)
}
