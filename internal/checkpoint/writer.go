// Package checkpoint persists interim crawl progress so a crash loses at
// most one checkpoint interval of records.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rawjobs-crawler/internal/metrics"
	"rawjobs-crawler/internal/schema"
)

// FileName is the interim file within the run directory. It is rewritten in
// place (one file, never a growing series) and removed on successful
// finalization.
const FileName = "checkpoint.json"

// State is the serialized checkpoint payload: everything needed to resume.
type State struct {
	RunID     string                 `json:"run_id"`
	WrittenAt time.Time              `json:"written_at"`
	JobsDone  int                    `json:"jobs_done"`
	Jobs      []schema.JobRecord     `json:"jobs"`
	Companies []schema.CompanyRecord `json:"companies"`
}

// Writer accumulates records and rewrites the interim file every Interval
// successfully extracted job records.
type Writer struct {
	dir      string
	runID    string
	interval int
	logger   *zap.Logger
	now      func() time.Time

	jobs       []schema.JobRecord
	sinceFlush int
	writeCount int
}

// NewWriter builds a writer rooted at the run directory.
func NewWriter(dir, runID string, interval int, logger *zap.Logger, now func() time.Time) (*Writer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("checkpoint interval must be > 0, got %d", interval)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Writer{
		dir:      dir,
		runID:    runID,
		interval: interval,
		logger:   logger,
		now:      now,
	}, nil
}

// Add appends a successfully extracted job record and rewrites the interim
// file when the interval boundary is reached. companies is the full company
// set so far; it rides along with every write.
func (w *Writer) Add(job schema.JobRecord, companies []schema.CompanyRecord) error {
	w.jobs = append(w.jobs, job)
	w.sinceFlush++
	if w.sinceFlush < w.interval {
		return nil
	}
	return w.Flush(companies)
}

// Flush rewrites the interim file with everything accumulated so far,
// regardless of the interval. Used for the boundary writes and for partial
// writes on cancellation.
func (w *Writer) Flush(companies []schema.CompanyRecord) error {
	state := State{
		RunID:     w.runID,
		WrittenAt: w.now().UTC(),
		JobsDone:  len(w.jobs),
		Jobs:      w.jobs,
		Companies: companies,
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write to a temp file and rename so a crash mid-write never leaves a
	// torn checkpoint behind.
	target := filepath.Join(w.dir, FileName)
	tmp, err := os.CreateTemp(w.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	w.sinceFlush = 0
	w.writeCount++
	metrics.ObserveCheckpoint()
	w.logger.Debug("checkpoint written",
		zap.Int("jobs", len(w.jobs)),
		zap.Int("companies", len(companies)),
		zap.Int("write", w.writeCount),
	)
	return nil
}

// Jobs returns the accumulated job records.
func (w *Writer) Jobs() []schema.JobRecord {
	return w.jobs
}

// Pending reports how many records were added since the last write.
func (w *Writer) Pending() int {
	return w.sinceFlush
}

// WriteCount reports how many times the interim file was rewritten.
func (w *Writer) WriteCount() int {
	return w.writeCount
}

// Remove deletes the interim file after a successful finalize. A missing
// file is not an error.
func (w *Writer) Remove() error {
	err := os.Remove(filepath.Join(w.dir, FileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Load reads an interim file left by a previous run, for resumption.
func Load(dir string) (State, error) {
	payload, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return State{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return State{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return state, nil
}
