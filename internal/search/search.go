// Package search discovers job listings by paging through the guest search
// endpoint and parsing the result cards. It only yields listing stubs; the
// extractors do the heavy lifting per job.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"rawjobs-crawler/internal/extract"
	"rawjobs-crawler/internal/metrics"
)

// PageSize is the number of cards the guest endpoint returns per page.
const PageSize = 25

// Card selectors on the guest search results markup.
const (
	cardSelector     = "div.base-search-card, div.base-card"
	titleSelector    = "h3.base-search-card__title"
	companySelector  = "h4.base-search-card__subtitle"
	locationSelector = "span.job-search-card__location"
	jobLinkSelector  = "a.base-card__full-link"
	dateSelector     = "time.job-search-card__listdate, time.job-search-card__listdate--new"
)

// Client pages through search results.
type Client struct {
	fetcher extract.Fetcher
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a search client against the given endpoint, typically
// config's search.base_url.
func NewClient(fetcher extract.Fetcher, baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

// Result is one discovered page of listings.
type Result struct {
	Listings []extract.Listing
	Pages    int
}

// Discover pages through the endpoint until limit listings are collected or
// a page comes back empty. Fetch errors propagate to the caller; an
// unreachable search endpoint is a crawl-level failure, not a per-record one.
func (c *Client) Discover(ctx context.Context, keyword, location string, limit int) (Result, error) {
	var out Result
	for start := 0; len(out.Listings) < limit; start += PageSize {
		pageURL, err := c.pageURL(keyword, location, start)
		if err != nil {
			return out, err
		}

		resp, err := c.fetcher.Get(ctx, pageURL)
		if err != nil {
			metrics.ObserveFetch("search", "failure")
			return out, fmt.Errorf("search page at offset %d: %w", start, err)
		}
		metrics.ObserveFetch("search", "success")
		out.Pages++

		listings, err := parseCards(resp.Body)
		if err != nil {
			return out, fmt.Errorf("parse search page at offset %d: %w", start, err)
		}
		if len(listings) == 0 {
			// End of results.
			break
		}

		c.logger.Debug("search page parsed",
			zap.Int("offset", start),
			zap.Int("cards", len(listings)),
		)
		out.Listings = append(out.Listings, listings...)
	}

	if len(out.Listings) > limit {
		out.Listings = out.Listings[:limit]
	}
	return out, nil
}

func (c *Client) pageURL(keyword, location string, start int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse search base url: %w", err)
	}
	q := u.Query()
	q.Set("keywords", keyword)
	q.Set("location", location)
	q.Set("start", strconv.Itoa(start))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseCards extracts listing stubs from one results page.
func parseCards(body []byte) ([]extract.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var listings []extract.Listing
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		link := card.Find(jobLinkSelector).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			// A card without a job link is useless; skip it.
			return
		}

		listing := extract.Listing{
			JobURL:      stripQuery(href),
			TitleRaw:    textOrNil(card.Find(titleSelector).First()),
			LocationRaw: textOrNil(card.Find(locationSelector).First()),
		}

		company := card.Find(companySelector).First()
		listing.CompanyRaw = textOrNil(company)
		if companyHref, ok := company.Find("a").First().Attr("href"); ok && companyHref != "" {
			listing.CompanyURL = &companyHref
		}

		if date := card.Find(dateSelector).First(); date.Length() > 0 {
			listing.DatePostedRaw = textOrNil(date)
			if attr, ok := date.Attr("datetime"); ok {
				listing.DatePostedAttr = &attr
			}
		}

		listings = append(listings, listing)
	})
	return listings, nil
}

// stripQuery drops tracking query strings from the card's job link; the path
// alone identifies the posting and keys the stable id.
func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func textOrNil(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return nil
	}
	return &text
}
