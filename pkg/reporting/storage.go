package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jihwankim/shufflebench/pkg/metrics"
)

// RoundReport is one experiment's full result, persisted as JSON:
// parameters plus the per-rank timing series a CSV row summarizes.
type RoundReport struct {
	ID        string               `json:"id"`
	Variant   string               `json:"variant"`
	N         int                  `json:"n"`
	K         int                  `json:"k"`
	DataSize  int                  `json:"data_size"`
	Throttle  int                  `json:"throttle"`
	StartedAt time.Time            `json:"started_at"`
	PerRank   []metrics.RoundTimes `json:"per_rank"`
}

// Storage persists RoundReports to OutputDir as JSON files, keeping only
// the most recent KeepLastN. Grounded on the teacher's
// pkg/reporting/storage.go: same file-naming-by-ID and
// cleanup-after-every-save idiom, generalized from chaos TestReports to
// shuffle RoundReports.
type Storage struct {
	dir       string
	keepLastN int
}

// NewStorage creates the output directory if needed and returns a
// Storage bound to it.
func NewStorage(dir string, keepLastN int) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Storage{dir: dir, keepLastN: keepLastN}, nil
}

func (s *Storage) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("round-%s.json", id))
}

// SaveReport writes r to disk and prunes old reports beyond KeepLastN.
func (s *Storage) SaveReport(r *RoundReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal round report: %w", err)
	}
	if err := os.WriteFile(s.path(r.ID), data, 0644); err != nil {
		return fmt.Errorf("write round report: %w", err)
	}
	return s.cleanupOldReports()
}

// LoadReport reads back a previously saved report by ID.
func (s *Storage) LoadReport(id string) (*RoundReport, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read round report: %w", err)
	}
	var r RoundReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal round report: %w", err)
	}
	return &r, nil
}

// ListReports returns every saved report's filesystem path, oldest first.
func (s *Storage) ListReports() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		fi, _ := os.Stat(paths[i])
		fj, _ := os.Stat(paths[j])
		if fi == nil || fj == nil {
			return paths[i] < paths[j]
		}
		return fi.ModTime().Before(fj.ModTime())
	})
	return paths, nil
}

// cleanupOldReports deletes the oldest reports once count exceeds
// KeepLastN. A non-positive KeepLastN disables pruning.
func (s *Storage) cleanupOldReports() error {
	if s.keepLastN <= 0 {
		return nil
	}
	paths, err := s.ListReports()
	if err != nil {
		return err
	}
	if len(paths) <= s.keepLastN {
		return nil
	}
	for _, p := range paths[:len(paths)-s.keepLastN] {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("prune old report %s: %w", p, err)
		}
	}
	return nil
}

// GetOutputDir returns the directory reports are saved under.
func (s *Storage) GetOutputDir() string { return s.dir }
