package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rawjobs-crawler/internal/session"
)

// pagedFetcher serves deterministic search result pages keyed by the start
// offset, mimicking the guest endpoint's pagination.
type pagedFetcher struct {
	t         *testing.T
	totalJobs int
	calls     int
	fail      bool
}

func (f *pagedFetcher) Get(_ context.Context, rawURL string) (*session.Response, error) {
	f.calls++
	if f.fail {
		return nil, &session.FetchError{Kind: session.KindTerminal, URL: rawURL, StatusCode: 404}
	}
	u, err := url.Parse(rawURL)
	require.NoError(f.t, err)
	start, err := strconv.Atoi(u.Query().Get("start"))
	require.NoError(f.t, err)

	var cards strings.Builder
	for i := start; i < start+PageSize && i < f.totalJobs; i++ {
		fmt.Fprintf(&cards, `
<div class="base-search-card">
  <a class="base-card__full-link" href="https://example.com/jobs/view/job-%d?refId=abc&trk=guest"></a>
  <h3 class="base-search-card__title"> Data Engineer %d </h3>
  <h4 class="base-search-card__subtitle"><a href="https://example.com/company/acme-%d">Acme %d</a></h4>
  <span class="job-search-card__location">Berlin, Germany</span>
  <time class="job-search-card__listdate" datetime="2026-02-2%d">3 days ago</time>
</div>`, i, i, i%3, i%3, i%9)
	}
	body := "<html><body><ul>" + cards.String() + "</ul></body></html>"
	return &session.Response{URL: rawURL, StatusCode: 200, Body: []byte(body), StatusHistory: []int{200}}, nil
}

func TestDiscoverSinglePage(t *testing.T) {
	t.Parallel()
	fetcher := &pagedFetcher{t: t, totalJobs: 10}
	client := NewClient(fetcher, "https://example.com/jobs/search", nil)

	result, err := client.Discover(context.Background(), "data engineer", "Berlin", 10)
	require.NoError(t, err)
	require.Len(t, result.Listings, 10)
	require.Equal(t, 1, result.Pages)

	first := result.Listings[0]
	require.Equal(t, "https://example.com/jobs/view/job-0", first.JobURL, "tracking query must be stripped")
	require.NotNil(t, first.TitleRaw)
	require.Equal(t, "Data Engineer 0", *first.TitleRaw)
	require.NotNil(t, first.CompanyRaw)
	require.Equal(t, "Acme 0", *first.CompanyRaw)
	require.NotNil(t, first.CompanyURL)
	require.Equal(t, "https://example.com/company/acme-0", *first.CompanyURL)
	require.NotNil(t, first.LocationRaw)
	require.Equal(t, "Berlin, Germany", *first.LocationRaw)
	require.NotNil(t, first.DatePostedAttr)
	require.Equal(t, "2026-02-20", *first.DatePostedAttr)
}

func TestDiscoverPagesUntilLimit(t *testing.T) {
	t.Parallel()
	fetcher := &pagedFetcher{t: t, totalJobs: 100}
	client := NewClient(fetcher, "https://example.com/jobs/search", nil)

	result, err := client.Discover(context.Background(), "data engineer", "Berlin", 60)
	require.NoError(t, err)
	require.Len(t, result.Listings, 60)
	// 60 listings at 25 per page: offsets 0, 25, 50.
	require.Equal(t, 3, result.Pages)
	require.Equal(t, 3, fetcher.calls)
	require.Equal(t, "https://example.com/jobs/view/job-59", result.Listings[59].JobURL)
}

func TestDiscoverStopsAtEmptyPage(t *testing.T) {
	t.Parallel()
	fetcher := &pagedFetcher{t: t, totalJobs: 30}
	client := NewClient(fetcher, "https://example.com/jobs/search", nil)

	result, err := client.Discover(context.Background(), "data engineer", "Berlin", 200)
	require.NoError(t, err)
	require.Len(t, result.Listings, 30)
	// Page at offset 50 comes back empty and ends the iteration.
	require.Equal(t, 3, fetcher.calls)
}

func TestDiscoverPropagatesEndpointFailure(t *testing.T) {
	t.Parallel()
	fetcher := &pagedFetcher{t: t, fail: true}
	client := NewClient(fetcher, "https://example.com/jobs/search", nil)

	_, err := client.Discover(context.Background(), "data engineer", "Berlin", 25)
	require.Error(t, err)
	require.True(t, session.IsTerminal(err))
}
