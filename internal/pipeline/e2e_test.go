package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rawjobs-crawler/internal/archive"
	"rawjobs-crawler/internal/companycache"
	"rawjobs-crawler/internal/extract"
	"rawjobs-crawler/internal/hash/sha256"
	"rawjobs-crawler/internal/schema"
	"rawjobs-crawler/internal/search"
	"rawjobs-crawler/internal/session"
)

const e2eDescription = "We are looking for a data engineer to build and operate " +
	"batch and streaming data pipelines across the analytics platform, owning " +
	"ingestion, quality checks and the serving layer end to end."

func e2eSearchPage(serverURL string, start, total int) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := start; i < start+search.PageSize && i < total; i++ {
		fmt.Fprintf(&b, `
<div class="base-search-card">
  <a class="base-card__full-link" href="%s/jobs/view/job-%d?trk=guest"></a>
  <h3 class="base-search-card__title">Data Engineer %d</h3>
  <h4 class="base-search-card__subtitle"><a href="%s/company/acme-%d">Acme %d</a></h4>
  <span class="job-search-card__location">Berlin, Germany</span>
  <time class="job-search-card__listdate" datetime="2026-02-20">3 days ago</time>
</div>`, serverURL, i, i, serverURL, i%3, i%3)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func e2eJobPage(i int) string {
	return fmt.Sprintf(`<html><body>
<div class="show-more-less-html__markup">%s Posting %d.</div>
<div class="top-card-layout__entity-info">Acme · Berlin · 3 days ago</div>
<span class="job-search-card__location">Berlin, Germany</span>
<span class="top-card-layout__salary-info">€70,000 - €90,000</span>
<span class="num-applicants__caption">Over 200 applicants</span>
<ul>
  <li class="description__job-criteria-item">
    <h3 class="description__job-criteria-subheader">Employment type</h3>
    <span class="description__job-criteria-text">Full-time</span>
  </li>
</ul>
<script type="application/ld+json">{"@type":"JobPosting","title":"Data Engineer %d"}</script>
</body></html>`, e2eDescription, i, i)
}

const e2eCompanyPage = `<html><body>
<p class="break-words">Acme builds industrial anvils and related heavy goods for a global market.</p>
<dl>
  <div><dt>Industry</dt><dd>Manufacturing</dd></div>
  <div><dt>Company size</dt><dd>201-500 employees</dd></div>
  <div><dt>Headquarters</dt><dd>Berlin, DE</dd></div>
</dl>
</body></html>`

// TestCrawlEndToEnd runs the real stack (session manager, search client,
// extractors, cache, checkpointing, archive) against a local server: 25
// listings across 3 companies at checkpoint interval 10.
func TestCrawlEndToEnd(t *testing.T) {
	const totalJobs = 25

	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/jobs/search", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		fmt.Fprint(w, e2eSearchPage(srv.URL, start, totalJobs))
	})
	mux.HandleFunc("/jobs/view/", func(w http.ResponseWriter, r *http.Request) {
		i, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/jobs/view/job-"))
		fmt.Fprint(w, e2eJobPage(i))
	})
	companyFetches := 0
	mux.HandleFunc("/company/", func(w http.ResponseWriter, r *http.Request) {
		companyFetches++
		fmt.Fprint(w, e2eCompanyPage)
	})

	cfg := testConfig(t.TempDir())
	cfg.Search.BaseURL = srv.URL + "/jobs/search"
	cfg.Search.Limit = totalJobs

	manager := session.New(session.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           cfg.HTTP.Timeout(),
		MaxAttempts:       cfg.HTTP.MaxAttempts,
		BackoffInitial:    cfg.HTTP.BackoffInitial(),
		BackoffMax:        cfg.HTTP.BackoffMax(),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, nil)
	defer manager.Close()

	hasher := sha256.New()
	searcher := search.NewClient(manager, cfg.Search.BaseURL, nil)
	jobs := extract.NewJobExtractor(manager, hasher, nil)
	cache := companycache.New(extract.NewCompanyExtractor(manager, hasher, nil), nil)

	o := New(cfg, searcher, jobs, cache, nil, nil, nil)
	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDone, summary.FinalState)
	require.Equal(t, totalJobs, summary.JobsWritten)
	require.Zero(t, summary.Failures)

	// 25 records at interval 10 means at least two interim rewrites before
	// the final flush.
	require.GreaterOrEqual(t, o.Progress().CheckpointWrites, 2)

	// Three distinct companies across 25 listings, each fetched exactly once.
	require.Equal(t, 3, companyFetches)
	require.Equal(t, 3, summary.Companies)

	jobsPath := filepath.Join(summary.Dir, archive.JobsFile)
	f, err := os.Open(jobsPath)
	require.NoError(t, err)
	defer f.Close()

	seenIDs := map[string]bool{}
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
		var rec schema.JobRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		require.Equal(t, schema.RawSchemaVersion, rec.RawSchemaVersion)
		require.Equal(t, schema.QualityHigh, rec.QualityTracking.ExtractionQuality)
		require.NotNil(t, rec.JobPageRaw.JobDescriptionRawText)
		require.Contains(t, *rec.JobPageRaw.JobDescriptionRawText, "data engineer")
		require.Equal(t, "success", rec.JobPageRaw.SalaryStatus)
		require.NotNil(t, rec.CompanyInfo.CompanyIDHash)
		require.False(t, seenIDs[rec.JobIdentity.JobIDRaw], "stable ids must be unique per job")
		seenIDs[rec.JobIdentity.JobIDRaw] = true
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, totalJobs, lines)

	// The CSV view flattens the archive and survives the list-valued history.
	csvPath := filepath.Join(summary.Dir, "jobs.csv")
	require.NoError(t, archive.ExportCSV(jobsPath, csvPath, nil))
	csvBody, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Contains(t, string(csvBody), "job_identity.job_url")
	require.NotContains(t, string(csvBody), "status_code_history")

	var log archive.CrawlLog
	payload, err := os.ReadFile(filepath.Join(summary.Dir, archive.CrawlLogFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &log))
	require.Equal(t, "DONE", log.FinalState)
	require.Equal(t, totalJobs, log.JobsWritten)
}
