// Package pipeline drives a crawl end to end: listing discovery, per-job
// extraction, company resolution through the cache, periodic checkpointing,
// and finalization into the immutable archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rawjobs-crawler/internal/archive"
	"rawjobs-crawler/internal/checkpoint"
	"rawjobs-crawler/internal/config"
	"rawjobs-crawler/internal/extract"
	"rawjobs-crawler/internal/faillog"
	"rawjobs-crawler/internal/metrics"
	"rawjobs-crawler/internal/schema"
	"rawjobs-crawler/internal/search"
	"rawjobs-crawler/internal/session"
)

// State is the orchestrator's position in the crawl lifecycle.
type State string

// Lifecycle states. FAILED is terminal and reachable from any stage.
const (
	StateInit          State = "INIT"
	StateSearching     State = "SEARCHING"
	StateExtracting    State = "EXTRACTING"
	StateCheckpointing State = "CHECKPOINTING"
	StateFinalizing    State = "FINALIZING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// lockFile guards the output directory against concurrent crawls.
const lockFile = ".crawl.lock"

// Searcher yields listing stubs for the configured query.
type Searcher interface {
	Discover(ctx context.Context, keyword, location string, limit int) (search.Result, error)
}

// JobExtractor turns one listing into a frozen job record.
type JobExtractor interface {
	Extract(ctx context.Context, listing extract.Listing, meta schema.ScrapeMetadata) (schema.JobRecord, []byte, error)
}

// CompanyResolver deduplicates company fetches across listings.
type CompanyResolver interface {
	GetOrFetch(ctx context.Context, companyURL string, nameHint *string) (*schema.CompanyRecord, bool, []byte, error)
	Records() []schema.CompanyRecord
	Len() int
}

// Progress is a point-in-time snapshot published to the status endpoint.
type Progress struct {
	RunID            string `json:"run_id"`
	State            State  `json:"state"`
	PagesSearched    int    `json:"pages_searched"`
	ListingsFound    int    `json:"listings_found"`
	JobsExtracted    int    `json:"jobs_extracted"`
	JobsFailed       int    `json:"jobs_failed"`
	Companies        int    `json:"companies"`
	CheckpointWrites int    `json:"checkpoint_writes"`
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	Dir         string
	FinalState  State
	JobsWritten int
	JobsSkipped int
	Companies   int
	Failures    int
	Interrupted bool
}

// Orchestrator runs the crawl state machine. One orchestrator drives one run.
type Orchestrator struct {
	cfg       config.Config
	searcher  Searcher
	jobs      JobExtractor
	companies CompanyResolver
	failures  *faillog.Log
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	progress Progress
}

// New wires an orchestrator from its collaborators. A nil now defaults to
// time.Now.
func New(cfg config.Config, searcher Searcher, jobs JobExtractor, companies CompanyResolver, failures *faillog.Log, logger *zap.Logger, now func() time.Time) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if failures == nil {
		failures = faillog.New(logger, now)
	}
	return &Orchestrator{
		cfg:       cfg,
		searcher:  searcher,
		jobs:      jobs,
		companies: companies,
		failures:  failures,
		logger:    logger,
		now:       now,
		progress:  Progress{State: StateInit},
	}
}

// Progress returns a copy of the current counters.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.Progress().State
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.progress.State = s
	o.mu.Unlock()
	o.logger.Info("state transition", zap.String("state", string(s)))
}

func (o *Orchestrator) update(fn func(p *Progress)) {
	o.mu.Lock()
	fn(&o.progress)
	o.mu.Unlock()
}

// Run executes the crawl. Cancellation is graceful: the in-flight record
// finishes, a partial checkpoint is written, and finalization runs over what
// was collected. A crawl-level error moves the machine to FAILED and leaves
// the last checkpoint on disk.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID := uuid.New().String()
	runDir := filepath.Join(o.cfg.Output.Dir, runID)
	startedAt := o.now().UTC()

	o.update(func(p *Progress) { p.RunID = runID })

	if err := os.MkdirAll(o.cfg.Output.Dir, 0o750); err != nil {
		return o.fail(runID, runDir, fmt.Errorf("create output dir: %w", err))
	}

	lock := flock.New(filepath.Join(o.cfg.Output.Dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return o.fail(runID, runDir, fmt.Errorf("acquire run lock: %w", err))
	}
	if !locked {
		return o.fail(runID, runDir, fmt.Errorf("another crawl holds the run lock on %s", o.cfg.Output.Dir))
	}
	defer lock.Unlock()

	arch, err := archive.NewWriter(runDir, o.logger)
	if err != nil {
		return o.fail(runID, runDir, err)
	}
	cp, err := checkpoint.NewWriter(runDir, runID, o.cfg.Checkpoint.Interval, o.logger, o.now)
	if err != nil {
		return o.fail(runID, runDir, err)
	}

	o.setState(StateSearching)
	result, err := o.searcher.Discover(ctx, o.cfg.Search.Keywords, o.cfg.Search.Location, o.cfg.Search.Limit)
	if err != nil {
		return o.fail(runID, runDir, fmt.Errorf("listing discovery: %w", err))
	}
	o.update(func(p *Progress) {
		p.PagesSearched = result.Pages
		p.ListingsFound = len(result.Listings)
	})
	o.logger.Info("listings discovered",
		zap.Int("listings", len(result.Listings)),
		zap.Int("pages", result.Pages),
	)

	o.setState(StateExtracting)
	meta := extract.MetadataFor(o.cfg.Search.Keywords, o.cfg.Search.Location, o.cfg.HTTP.UserAgent, o.now())
	interrupted := false
	for _, listing := range result.Listings {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		o.crawlOne(ctx, listing, meta, arch, cp)
	}

	// Partial batch, either from cancellation or a listing count that is not
	// a multiple of the interval.
	if cp.Pending() > 0 {
		o.setState(StateCheckpointing)
		if err := cp.Flush(o.companies.Records()); err != nil {
			return o.fail(runID, runDir, err)
		}
		o.update(func(p *Progress) { p.CheckpointWrites = cp.WriteCount() })
	}

	o.setState(StateFinalizing)
	jobsWritten, err := arch.WriteJobs(cp.Jobs())
	if err != nil {
		return o.fail(runID, runDir, err)
	}
	companiesWritten, err := arch.WriteCompanies(o.companies.Records())
	if err != nil {
		return o.fail(runID, runDir, err)
	}
	log := archive.CrawlLog{
		RunID:          runID,
		Keyword:        o.cfg.Search.Keywords,
		Location:       o.cfg.Search.Location,
		StartedAt:      startedAt,
		FinishedAt:     o.now().UTC(),
		FinalState:     string(StateDone),
		JobsWritten:    jobsWritten,
		JobsSkipped:    len(cp.Jobs()) - jobsWritten + o.Progress().JobsFailed,
		Companies:      companiesWritten,
		PagesSearched:  result.Pages,
		Failures:       o.failures.Entries(),
		ScraperVersion: schema.ScraperVersion,
		SchemaVersion:  schema.RawSchemaVersion,
	}
	if err := arch.WriteCrawlLog(log); err != nil {
		return o.fail(runID, runDir, err)
	}
	// Best effort mirror of the failures for grepping without the crawl log.
	_ = o.failures.WriteFile(filepath.Join(runDir, "failures.jsonl"))
	// The archive is durable; the interim file has served its purpose.
	if err := cp.Remove(); err != nil {
		return o.fail(runID, runDir, err)
	}

	o.setState(StateDone)
	summary := Summary{
		RunID:       runID,
		Dir:         runDir,
		FinalState:  StateDone,
		JobsWritten: jobsWritten,
		JobsSkipped: log.JobsSkipped,
		Companies:   companiesWritten,
		Failures:    o.failures.Len(),
		Interrupted: interrupted,
	}
	o.logger.Info("crawl finished",
		zap.String("run_id", runID),
		zap.Int("jobs", jobsWritten),
		zap.Int("companies", companiesWritten),
		zap.Int("failures", summary.Failures),
		zap.Bool("interrupted", interrupted),
	)
	return summary, nil
}

// crawlOne extracts one listing and resolves its company. Per-record failures
// are logged and swallowed; the crawl continues.
func (o *Orchestrator) crawlOne(ctx context.Context, listing extract.Listing, meta schema.ScrapeMetadata, arch *archive.Writer, cp *checkpoint.Writer) {
	rec, body, err := o.jobs.Extract(ctx, listing, meta)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation surfacing through the fetch, not a real failure.
			return
		}
		o.update(func(p *Progress) { p.JobsFailed++ })
		o.failures.Record("job", listing.JobURL, rec.JobIdentity.JobIDRaw, jobFailureClass(err), failedSelector(err), rec.QualityTracking.RetryCount, err)
		return
	}

	if listing.CompanyURL != nil {
		company, fetched, companyBody, err := o.companies.GetOrFetch(ctx, *listing.CompanyURL, listing.CompanyRaw)
		if err != nil {
			o.failures.Record("company", *listing.CompanyURL, "", companyFailureClass(err), "", 0, err)
		} else {
			rec.CompanyInfo.CompanyIDHash = &company.CompanyIdentity.CompanyIDHash
			if fetched {
				metrics.ObserveRecord("company", string(company.QualityTracking.ExtractionQuality))
			}
			if fetched && o.cfg.Output.SaveSnapshots {
				if err := arch.SaveSnapshot("company", company.CompanyIdentity.CompanyIDHash, companyBody); err != nil {
					o.logger.Warn("company snapshot not saved", zap.Error(err))
				}
			}
		}
	}

	if o.cfg.Output.SaveSnapshots {
		if err := arch.SaveSnapshot("job", rec.JobIdentity.JobIDRaw, body); err != nil {
			o.logger.Warn("job snapshot not saved", zap.Error(err))
		}
	}

	wasWritten := cp.WriteCount()
	if cp.Pending()+1 >= o.cfg.Checkpoint.Interval {
		o.setState(StateCheckpointing)
	}
	if err := cp.Add(rec, o.companies.Records()); err != nil {
		// Checkpointing failures are not worth killing the record over; the
		// next boundary retries the write.
		o.logger.Error("checkpoint write failed", zap.Error(err))
	}
	if cp.WriteCount() > wasWritten {
		o.update(func(p *Progress) { p.CheckpointWrites = cp.WriteCount() })
		o.setState(StateExtracting)
	}

	metrics.ObserveRecord("job", string(rec.QualityTracking.ExtractionQuality))
	o.update(func(p *Progress) {
		p.JobsExtracted++
		p.Companies = o.companies.Len()
	})
}

// fail moves the machine to FAILED, keeping whatever checkpoint exists.
func (o *Orchestrator) fail(runID, runDir string, err error) (Summary, error) {
	o.setState(StateFailed)
	o.logger.Error("crawl failed", zap.String("run_id", runID), zap.Error(err))
	return Summary{RunID: runID, Dir: runDir, FinalState: StateFailed, Failures: o.failures.Len()}, err
}

func jobFailureClass(err error) string {
	switch {
	case errors.Is(err, extract.ErrDescriptionMissing):
		return faillog.ClassMissingField
	case session.IsTransient(err):
		return faillog.ClassFetchTransient
	case session.IsTerminal(err):
		return faillog.ClassFetchTerminal
	default:
		return faillog.ClassFetchTerminal
	}
}

func companyFailureClass(err error) string {
	switch {
	case session.IsTransient(err):
		return faillog.ClassFetchTransient
	case session.IsTerminal(err):
		return faillog.ClassFetchTerminal
	default:
		return faillog.ClassBadURL
	}
}

func failedSelector(err error) string {
	if errors.Is(err, extract.ErrDescriptionMissing) {
		return "description"
	}
	return ""
}
