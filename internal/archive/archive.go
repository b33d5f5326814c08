// Package archive finalizes a crawl run into an immutable on-disk archive:
// jobs.jsonl, companies.jsonl, crawl_log.json, and optional raw HTML
// snapshots. Records are validated against the frozen schema before writing
// and the finished files are made read-only.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rawjobs-crawler/internal/faillog"
	"rawjobs-crawler/internal/schema"
)

// Archive file names within a run directory.
const (
	JobsFile      = "jobs.jsonl"
	CompaniesFile = "companies.jsonl"
	CrawlLogFile  = "crawl_log.json"
	SnapshotsDir  = "snapshots"
)

// CrawlLog is the run-level summary written alongside the record archives.
type CrawlLog struct {
	RunID          string          `json:"run_id"`
	Keyword        string          `json:"keyword"`
	Location       string          `json:"location"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	FinalState     string          `json:"final_state"`
	JobsWritten    int             `json:"jobs_written"`
	JobsSkipped    int             `json:"jobs_skipped"`
	Companies      int             `json:"companies"`
	PagesSearched  int             `json:"pages_searched"`
	Failures       []faillog.Entry `json:"failures"`
	ScraperVersion string          `json:"scraper_version"`
	SchemaVersion  string          `json:"raw_schema_version"`
}

// Writer finalizes one run directory.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter roots an archive writer at the run directory, creating it if
// needed.
func NewWriter(dir string, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the run directory the writer finalizes into.
func (w *Writer) Dir() string { return w.dir }

// WriteJobs writes the job archive. Records that violate the frozen schema
// or fail to encode are logged and skipped, never silently dropped; the
// remaining records are still written. Returns how many records made it in.
func (w *Writer) WriteJobs(jobs []schema.JobRecord) (int, error) {
	return writeJSONL(w, JobsFile, len(jobs), func(i int) (string, any, error) {
		rec := jobs[i]
		if err := validateJob(rec); err != nil {
			return rec.JobIdentity.JobIDRaw, nil, err
		}
		return rec.JobIdentity.JobIDRaw, rec, nil
	})
}

// WriteCompanies writes the company archive with the same skip-and-log
// policy as WriteJobs.
func (w *Writer) WriteCompanies(companies []schema.CompanyRecord) (int, error) {
	return writeJSONL(w, CompaniesFile, len(companies), func(i int) (string, any, error) {
		rec := companies[i]
		if err := validateCompany(rec); err != nil {
			return rec.CompanyIdentity.CompanyIDHash, nil, err
		}
		return rec.CompanyIdentity.CompanyIDHash, rec, nil
	})
}

// WriteCrawlLog writes the run summary.
func (w *Writer) WriteCrawlLog(log CrawlLog) error {
	payload, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return &SerializationError{RecordID: log.RunID, Err: err}
	}
	path := filepath.Join(w.dir, CrawlLogFile)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write crawl log: %w", err)
	}
	return sealFile(path)
}

// SaveSnapshot stores a raw HTML page under snapshots/. kind is "job" or
// "company"; id distinguishes the record.
func (w *Writer) SaveSnapshot(kind, id string, body []byte) error {
	dir := filepath.Join(w.dir, SnapshotsDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshots dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.html", kind, id))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// writeJSONL streams records through an encoder, skipping (with a log line)
// any record whose callback reports a violation or that cannot be encoded.
func writeJSONL(w *Writer, name string, n int, record func(i int) (string, any, error)) (int, error) {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}

	enc := json.NewEncoder(f)
	written := 0
	for i := 0; i < n; i++ {
		id, rec, err := record(i)
		if err != nil {
			w.logger.Error("record violates frozen schema, skipped",
				zap.String("file", name), zap.String("record_id", id), zap.Error(err))
			continue
		}
		if err := enc.Encode(rec); err != nil {
			serr := &SerializationError{RecordID: id, Err: err}
			w.logger.Error("record could not be serialized, skipped",
				zap.String("file", name), zap.Error(serr))
			continue
		}
		written++
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", name, err)
	}
	return written, sealFile(path)
}

// sealFile drops write permission so the archive cannot be mutated in place.
func sealFile(path string) error {
	if err := os.Chmod(path, 0o444); err != nil {
		return fmt.Errorf("seal %s: %w", path, err)
	}
	return nil
}

func validateJob(rec schema.JobRecord) error {
	if rec.RawSchemaVersion != schema.RawSchemaVersion {
		return &SchemaViolationError{
			RecordType: "job",
			RecordID:   rec.JobIdentity.JobIDRaw,
			Field:      "raw_schema_version",
			Detail:     fmt.Sprintf("is %q, want %q", rec.RawSchemaVersion, schema.RawSchemaVersion),
		}
	}
	if rec.JobIdentity.JobIDRaw == "" {
		return &SchemaViolationError{RecordType: "job", Field: "job_identity.job_id_raw", Detail: "is empty"}
	}
	if rec.JobIdentity.JobURL == "" {
		return &SchemaViolationError{
			RecordType: "job",
			RecordID:   rec.JobIdentity.JobIDRaw,
			Field:      "job_identity.job_url",
			Detail:     "is empty",
		}
	}
	return nil
}

func validateCompany(rec schema.CompanyRecord) error {
	if rec.RawSchemaVersion != schema.RawSchemaVersion {
		return &SchemaViolationError{
			RecordType: "company",
			RecordID:   rec.CompanyIdentity.CompanyIDHash,
			Field:      "raw_schema_version",
			Detail:     fmt.Sprintf("is %q, want %q", rec.RawSchemaVersion, schema.RawSchemaVersion),
		}
	}
	if rec.CompanyIdentity.CompanyIDHash == "" {
		return &SchemaViolationError{RecordType: "company", Field: "company_identity.company_id_hash", Detail: "is empty"}
	}
	if rec.CompanyIdentity.CompanyURL == "" {
		return &SchemaViolationError{
			RecordType: "company",
			RecordID:   rec.CompanyIdentity.CompanyIDHash,
			Field:      "company_identity.company_url",
			Detail:     "is empty",
		}
	}
	return nil
}
