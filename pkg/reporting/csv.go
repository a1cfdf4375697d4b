package reporting

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/jihwankim/shufflebench/pkg/metrics"
)

// csvColumns is spec §6.4's exact column set, reproduced byte-for-byte
// rather than re-derived: method, N, K, data_size, throttle, repeats,
// policy, then rank-0 and MAX-reduced per-phase timings.
var csvColumns = []string{
	"method", "N", "K", "data_size", "throttle", "repeats", "policy",
	"rank0_post", "rank0_wait_send", "rank0_wait_recv", "rank0_total",
	"max_post", "max_wait_send", "max_wait_recv", "max_total",
}

// RoundSummary is one CSV row's worth of data: the experiment parameters
// plus rank 0's own timings and the MAX-reduced timings across all ranks,
// grounded on original_source/mpi_test.c's summarize_results.
type RoundSummary struct {
	Method   string
	N        int
	K        int
	DataSize int
	Throttle int
	Repeats  int
	Policy   string
	Rank0    metrics.RoundTimes
	Max      metrics.RoundTimes
}

// CSVWriter appends RoundSummary rows to a single results file, writing
// the header once on first use.
type CSVWriter struct {
	path   string
	f      *os.File
	w      *csv.Writer
	header bool
}

// NewCSVWriter opens path for appending, writing the header row if the
// file is new or empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	info, statErr := os.Stat(path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	w := &CSVWriter{path: path, f: f, w: csv.NewWriter(f)}
	if needsHeader {
		if err := w.w.Write(csvColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.w.Flush()
	}
	return w, nil
}

// Write appends one row and flushes immediately, so a crash mid-sweep
// never loses a completed round's data.
func (w *CSVWriter) Write(s RoundSummary) error {
	row := []string{
		s.Method,
		fmt.Sprintf("%d", s.N),
		fmt.Sprintf("%d", s.K),
		fmt.Sprintf("%d", s.DataSize),
		fmt.Sprintf("%d", s.Throttle),
		fmt.Sprintf("%d", s.Repeats),
		s.Policy,
		fmt.Sprintf("%g", s.Rank0.Post.Seconds()),
		fmt.Sprintf("%g", s.Rank0.WaitSend.Seconds()),
		fmt.Sprintf("%g", s.Rank0.WaitRecv.Seconds()),
		fmt.Sprintf("%g", s.Rank0.Total.Seconds()),
		fmt.Sprintf("%g", s.Max.Post.Seconds()),
		fmt.Sprintf("%g", s.Max.WaitSend.Seconds()),
		fmt.Sprintf("%g", s.Max.WaitRecv.Seconds()),
		fmt.Sprintf("%g", s.Max.Total.Seconds()),
	}
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file.
func (w *CSVWriter) Close() error {
	w.w.Flush()
	return w.f.Close()
}

// DetailWriter writes one per-rank-per-round detail file for a single
// phase: rows are ranks, columns are round index, values are cumulative
// seconds, per spec §6.4's "one CSV per phase" detail format.
type DetailWriter struct {
	f *os.File
	w *csv.Writer
}

// NewDetailWriter creates (truncating) a fresh per-phase detail file.
func NewDetailWriter(path string) (*DetailWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create detail file: %w", err)
	}
	return &DetailWriter{f: f, w: csv.NewWriter(f)}, nil
}

// WriteRow appends one rank's cumulative-seconds series, one column per
// round.
func (d *DetailWriter) WriteRow(rank int, cumulativeSeconds []float64) error {
	row := make([]string, 0, len(cumulativeSeconds)+1)
	row = append(row, fmt.Sprintf("rank%d", rank))
	for _, v := range cumulativeSeconds {
		row = append(row, fmt.Sprintf("%g", v))
	}
	if err := d.w.Write(row); err != nil {
		return fmt.Errorf("write detail row: %w", err)
	}
	d.w.Flush()
	return d.w.Error()
}

// Close flushes and closes the underlying file.
func (d *DetailWriter) Close() error {
	d.w.Flush()
	return d.f.Close()
}
