// Package extract fetches job and company pages and assembles raw records.
// It is a pure capture layer: values land in the schema exactly as they
// appear on the page, with no normalization or inference.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rawjobs-crawler/internal/session"
)

// ErrDescriptionMissing marks a job page where no description selector (nor
// the fallback) produced text. The description is the only required field
// group; its absence fails the record.
var ErrDescriptionMissing = errors.New("job description not found on page")

// Fetcher is the slice of the session manager the extractors need.
type Fetcher interface {
	Get(ctx context.Context, url string) (*session.Response, error)
}

// statuses recorded alongside optional field groups.
const (
	statusSuccess  = "success"
	statusNotFound = "not_found"
)

func parseHTML(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// firstMatch walks a selector table and returns the first element whose text
// is at least minLen runes, along with the selector's index.
func firstMatch(doc *goquery.Document, selectors []string, minLen int) (*goquery.Selection, int, bool) {
	for i, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(node.Text())) >= minLen {
			return node, i, true
		}
	}
	return nil, 0, false
}

// fieldWithStatus extracts an optional field group, returning the raw text
// and a success/not_found status.
func fieldWithStatus(doc *goquery.Document, selectors []string) (*string, string) {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(node.Text())
		if text != "" {
			return &text, statusSuccess
		}
	}
	return nil, statusNotFound
}

func outerHTML(sel *goquery.Selection) *string {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return nil
	}
	return &html
}

// blockText renders a selection's text with newline separators between
// block-ish children, mirroring how the raw corpus was originally captured.
func blockText(sel *goquery.Selection) string {
	var parts []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n")
}

// extractEmbeddedJSONLD returns the first syntactically valid ld+json blob,
// verbatim.
func extractEmbeddedJSONLD(doc *goquery.Document) *string {
	var found *string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := strings.TrimSpace(s.Text())
		if content == "" || !json.Valid([]byte(content)) {
			return true
		}
		found = &content
		return false
	})
	return found
}

// extractEmbeddedJobJSON scans non-ld+json scripts for job-related JSON
// objects and returns the first balanced, valid one verbatim.
func extractEmbeddedJobJSON(doc *goquery.Document) *string {
	var found *string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if typ, _ := s.Attr("type"); typ == "application/ld+json" {
			return true
		}
		content := strings.TrimSpace(s.Text())
		if content == "" || !containsAny(content, jobJSONPatterns) {
			return true
		}
		if candidate := balancedJSON(content); candidate != "" {
			found = &candidate
			return false
		}
		return true
	})
	return found
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// balancedJSON finds the first {...} or [...] span in s via depth tracking
// and returns it if it parses as JSON.
func balancedJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}
