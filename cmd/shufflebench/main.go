package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "shufflebench",
	Short: "Topology-aware many-to-few data shuffle benchmark",
	Long: `shufflebench drives a single many-to-few/few-to-many collective shuffle
round over an in-process rank substrate: it elects aggregators, binds
producers to local aggregators, and runs one of several point-to-point
shuffle schedules (or the two-phase aggregation mover), reporting
per-rank timings.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./shufflebench.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - sweepCmd in sweep.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
