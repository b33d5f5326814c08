package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"rawjobs-crawler/internal/hash/sha256"
	"rawjobs-crawler/internal/metrics"
	"rawjobs-crawler/internal/schema"
)

// Listing carries the raw job-card fields harvested during search, plus the
// links the detail pass needs.
type Listing struct {
	TitleRaw       *string
	CompanyRaw     *string
	LocationRaw    *string
	DatePostedRaw  *string
	DatePostedAttr *string
	JobURL         string
	CompanyURL     *string
}

// JobExtractor fetches a job detail page and assembles the frozen raw record.
type JobExtractor struct {
	fetcher Fetcher
	hasher  *sha256.Hasher
	logger  *zap.Logger
}

// NewJobExtractor builds a job extractor.
func NewJobExtractor(fetcher Fetcher, hasher *sha256.Hasher, logger *zap.Logger) *JobExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobExtractor{fetcher: fetcher, hasher: hasher, logger: logger}
}

// Extract fetches the listing's detail page and builds the job record. It
// also returns the raw page body for optional snapshot archiving. A nil
// error with a degraded quality rating is normal; an error means this single
// record failed terminally and should be logged and skipped.
func (e *JobExtractor) Extract(ctx context.Context, listing Listing, meta schema.ScrapeMetadata) (schema.JobRecord, []byte, error) {
	resp, err := e.fetcher.Get(ctx, listing.JobURL)
	if err != nil {
		metrics.ObserveFetch("job", "failure")
		return schema.JobRecord{}, nil, fmt.Errorf("fetch job page: %w", err)
	}
	metrics.ObserveFetch("job", "success")

	doc, err := parseHTML(resp.Body)
	if err != nil {
		return schema.JobRecord{}, nil, fmt.Errorf("parse job page: %w", err)
	}

	tracker := NewTracker(resp.Retries, resp.StatusHistory)

	record := schema.NewJobRecord()
	record.ScrapeMetadata = meta
	record.JobIdentity = schema.JobIdentity{
		JobIDRaw: e.hasher.StableID(listing.JobURL),
		JobURL:   listing.JobURL,
	}
	record.JobCardRaw = schema.JobCardRaw{
		TitleRaw:       listing.TitleRaw,
		CompanyRaw:     listing.CompanyRaw,
		LocationRaw:    listing.LocationRaw,
		DatePostedRaw:  listing.DatePostedRaw,
		DatePostedAttr: listing.DatePostedAttr,
	}

	page, err := e.extractPage(doc, listing.JobURL, tracker)
	if err != nil {
		return schema.JobRecord{}, nil, err
	}
	record.JobPageRaw = page

	if listing.CompanyURL != nil {
		record.CompanyInfo = schema.CompanyInfo{
			CompanyURL:    listing.CompanyURL,
			CompanyIDHash: schema.String(e.hasher.StableID(*listing.CompanyURL)),
		}
	}

	record.Hashing = schema.JobHashing{
		JobPostIDHash: e.hasher.Hash(strings.ToLower(strings.TrimSpace(listing.JobURL))),
	}
	if page.JobDescriptionRawText != nil {
		record.Hashing.JobDescriptionContentHash = schema.String(e.hasher.Hash(*page.JobDescriptionRawText))
	}

	record.QualityTracking = tracker.Tracking()
	return record, resp.Body, nil
}

func (e *JobExtractor) extractPage(doc *goquery.Document, url string, tracker *Tracker) (schema.JobPageRaw, error) {
	var page schema.JobPageRaw

	// Description first: it is the only required group.
	text, html, method, ok := e.extractDescription(doc)
	if !ok {
		e.logger.Error("all description selectors missed; page layout may have changed",
			zap.String("url", url),
			zap.Int("selectors_tried", len(descriptionSelectors)),
		)
		return page, ErrDescriptionMissing
	}
	tracker.Hit()
	if method == -1 {
		e.logger.Warn("description captured via largest-block fallback",
			zap.String("url", url))
	}
	page.JobDescriptionRawText = &text
	page.JobDescriptionRawHTML = html
	page.DescriptionExtractMethod = &method

	if node, _, found := firstMatch(doc, insightSelectors, 1); found {
		tracker.Hit()
		page.JobInsightSectionRawText = schema.String(blockText(node))
		page.JobInsightSectionRawHTML = outerHTML(node)
	} else {
		tracker.Miss()
	}

	if node, _, found := firstMatch(doc, locationPanelSelectors, 1); found {
		tracker.Hit()
		page.LocationFromPanelRaw = schema.String(strings.TrimSpace(node.Text()))
	} else {
		tracker.Miss()
	}

	page.SalaryRawText, page.SalaryStatus = fieldWithStatus(doc, salarySelectors)
	if page.SalaryStatus == statusSuccess {
		tracker.Hit()
	} else {
		tracker.Miss()
	}

	page.ApplicantCountRaw, page.ApplicantCountStatus = fieldWithStatus(doc, applicantSelectors)
	if page.ApplicantCountStatus == statusSuccess {
		tracker.Hit()
	} else {
		tracker.Miss()
	}

	// Badge-style groups are optional; absence is common and not a defect.
	page.EasyApplyFlagRaw, page.EasyApplyFlagStatus = fieldWithStatus(doc, easyApplySelectors)
	tracker.HitIf(page.EasyApplyFlagStatus == statusSuccess)
	page.RemoteLabelRaw, page.RemoteLabelStatus = fieldWithStatus(doc, remoteLabelSelectors)
	tracker.HitIf(page.RemoteLabelStatus == statusSuccess)
	page.PostedByRaw, page.PostedByStatus = fieldWithStatus(doc, postedBySelectors)
	tracker.HitIf(page.PostedByStatus == statusSuccess)

	criteria := extractCriteria(doc)
	page.EmploymentTypeRaw = criteria["employment_type"]
	page.SeniorityRaw = criteria["seniority_level"]
	page.IndustryRaw = criteria["industries"]
	page.JobFunctionRaw = criteria["job_function"]
	if len(criteria) > 0 {
		tracker.Hit()
	} else {
		tracker.Miss()
	}

	page.EmbeddedJSONLD = extractEmbeddedJSONLD(doc)
	tracker.HitIf(page.EmbeddedJSONLD != nil)
	page.EmbeddedJobJSON = extractEmbeddedJobJSON(doc)
	tracker.HitIf(page.EmbeddedJobJSON != nil)

	return page, nil
}

// extractDescription walks the selector table, then falls back to the
// largest text block on the page (method -1) before giving up.
func (e *JobExtractor) extractDescription(doc *goquery.Document) (string, *string, int, bool) {
	if node, method, found := firstMatch(doc, descriptionSelectors, 50); found {
		return blockText(node), outerHTML(node), method, true
	}

	var best *goquery.Selection
	bestLen := 0
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if l := len(s.Text()); l > bestLen {
			best = s
			bestLen = l
		}
	})
	if best != nil && len(blockText(best)) > 200 {
		return blockText(best), outerHTML(best), -1, true
	}
	return "", nil, 0, false
}

// extractCriteria scans the criteria list into lowercased underscore keys,
// e.g. "Seniority level" -> seniority_level.
func extractCriteria(doc *goquery.Document) map[string]*string {
	criteria := make(map[string]*string)
	doc.Find("li.description__job-criteria-item").Each(func(_ int, item *goquery.Selection) {
		header := strings.TrimSpace(item.Find("h3.description__job-criteria-subheader").First().Text())
		value := strings.TrimSpace(item.Find("span.description__job-criteria-text").First().Text())
		if header == "" || value == "" {
			return
		}
		key := strings.ReplaceAll(strings.ToLower(header), " ", "_")
		criteria[key] = &value
	})
	return criteria
}

// MetadataFor stamps the scrape context shared by every record of a run.
func MetadataFor(keyword, location, userAgent string, now time.Time) schema.ScrapeMetadata {
	return schema.ScrapeMetadata{
		SearchKeyword:   keyword,
		SearchLocation:  location,
		ScrapeTimestamp: now.UTC(),
		UserAgentUsed:   userAgent,
	}
}
