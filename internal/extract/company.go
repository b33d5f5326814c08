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

// CompanyExtractor fetches a company about page and assembles the frozen raw
// company record.
type CompanyExtractor struct {
	fetcher Fetcher
	hasher  *sha256.Hasher
	logger  *zap.Logger
}

// NewCompanyExtractor builds a company extractor.
func NewCompanyExtractor(fetcher Fetcher, hasher *sha256.Hasher, logger *zap.Logger) *CompanyExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyExtractor{fetcher: fetcher, hasher: hasher, logger: logger}
}

// Extract fetches the company page and builds its record. nameHint is the
// company name as seen on the job card, kept raw. The returned body is the
// raw page for optional snapshot archiving.
func (e *CompanyExtractor) Extract(ctx context.Context, companyURL string, nameHint *string, now time.Time) (schema.CompanyRecord, []byte, error) {
	resp, err := e.fetcher.Get(ctx, companyURL)
	if err != nil {
		metrics.ObserveFetch("company", "failure")
		return schema.CompanyRecord{}, nil, fmt.Errorf("fetch company page: %w", err)
	}
	metrics.ObserveFetch("company", "success")

	doc, err := parseHTML(resp.Body)
	if err != nil {
		return schema.CompanyRecord{}, nil, fmt.Errorf("parse company page: %w", err)
	}

	tracker := NewTracker(resp.Retries, resp.StatusHistory)

	record := schema.NewCompanyRecord()
	record.CompanyIdentity = schema.CompanyIdentity{
		CompanyIDHash:  e.hasher.StableID(companyURL),
		CompanyNameRaw: nameHint,
		CompanyURL:     companyURL,
	}
	record.Timestamps = schema.Timestamps{FirstSeen: now.UTC(), LastSeen: now.UTC()}
	record.Hashing.CompanyURLHash = e.hasher.Hash(strings.ToLower(strings.TrimSpace(companyURL)))

	record.CompanyPageRaw = e.extractPage(doc, tracker)
	if record.CompanyPageRaw.CompanyAboutRawText != nil {
		record.Hashing.CompanyContentHash = schema.String(e.hasher.Hash(*record.CompanyPageRaw.CompanyAboutRawText))
	}

	record.QualityTracking = tracker.Tracking()
	return record, resp.Body, nil
}

func (e *CompanyExtractor) extractPage(doc *goquery.Document, tracker *Tracker) schema.CompanyPageRaw {
	var page schema.CompanyPageRaw

	if node, _, found := firstMatch(doc, aboutSelectors, 10); found {
		tracker.Hit()
		page.CompanyAboutRawText = schema.String(blockText(node))
		page.CompanyAboutRawHTML = outerHTML(node)
	} else {
		tracker.Miss()
	}

	fields := extractCompanyFields(doc)
	assign := func(key string, dst **string, expected bool) {
		if v, ok := fields[key]; ok {
			*dst = v
			tracker.Hit()
			return
		}
		if expected {
			tracker.Miss()
		}
	}
	assign("industry", &page.CompanyIndustryRaw, true)
	assign("size", &page.CompanySizeRaw, true)
	assign("headquarters", &page.CompanyHeadquartersRaw, true)
	assign("type", &page.CompanyTypeRaw, false)
	assign("specialties", &page.CompanySpecialtiesRaw, false)

	// Fallback for industry: some page variants tag it with a test id
	// instead of the dt/dd list.
	if page.CompanyIndustryRaw == nil {
		node := doc.Find(`div[data-test-id="about-us__industry"]`).First()
		if text := strings.TrimSpace(node.Text()); text != "" {
			page.CompanyIndustryRaw = &text
		}
	}

	return page
}

// extractCompanyFields scans every dt/dd pair on the page and maps known
// labels to schema fields. Values stay raw.
func extractCompanyFields(doc *goquery.Document) map[string]*string {
	fields := make(map[string]*string)
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(dt.Text()))
		if label == "" {
			return
		}
		for _, entry := range companyFieldLabels {
			if !strings.Contains(label, entry.keyword) {
				continue
			}
			if _, taken := fields[entry.field]; taken {
				break
			}
			dd := dt.NextFiltered("dd").First()
			if value := strings.TrimSpace(dd.Text()); value != "" {
				fields[entry.field] = &value
			}
			break
		}
	})
	return fields
}
