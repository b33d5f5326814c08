package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rawjobs-crawler/internal/hash/sha256"
	"rawjobs-crawler/internal/schema"
	"rawjobs-crawler/internal/session"
)

const companyPageHTML = `<html><body>
<p class="break-words">Acme Corp builds rockets, tunnels and the occasional anvil for discerning coyotes worldwide.</p>
<dl>
  <dt>Industry</dt><dd>Aerospace</dd>
  <dt>Company size</dt><dd>1,001-5,000 employees</dd>
  <dt>Headquarters</dt><dd>Phoenix, AZ</dd>
  <dt>Type</dt><dd>Privately Held</dd>
  <dt>Specialties</dt><dd>rockets, anvils, tunnels</dd>
</dl>
</body></html>`

func TestCompanyExtractFullPage(t *testing.T) {
	t.Parallel()
	url := "https://example.com/company/acme"
	fetcher := &fakeFetcher{pages: map[string]*session.Response{
		url: {StatusCode: 200, Body: []byte(companyPageHTML), StatusHistory: []int{200}},
	}}
	ex := NewCompanyExtractor(fetcher, sha256.New(), nil)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	record, body, err := ex.Extract(context.Background(), url, schema.String("Acme Corp"), now)
	require.NoError(t, err)
	require.NotEmpty(t, body)

	require.Equal(t, "1.0.0", record.RawSchemaVersion)
	require.Equal(t, url, record.CompanyIdentity.CompanyURL)
	require.Len(t, record.CompanyIdentity.CompanyIDHash, 16)
	require.Equal(t, "Acme Corp", *record.CompanyIdentity.CompanyNameRaw)

	page := record.CompanyPageRaw
	require.Contains(t, *page.CompanyAboutRawText, "rockets")
	require.Equal(t, "Aerospace", *page.CompanyIndustryRaw)
	require.Equal(t, "1,001-5,000 employees", *page.CompanySizeRaw)
	require.Equal(t, "Phoenix, AZ", *page.CompanyHeadquartersRaw)
	require.Equal(t, "Privately Held", *page.CompanyTypeRaw)
	require.Equal(t, "rockets, anvils, tunnels", *page.CompanySpecialtiesRaw)

	require.Equal(t, now, record.Timestamps.FirstSeen)
	require.Equal(t, now, record.Timestamps.LastSeen)
	require.Equal(t, schema.QualityHigh, record.QualityTracking.ExtractionQuality)

	require.NotNil(t, record.Hashing.CompanyContentHash)
	require.Equal(t, sha256.New().Hash(*page.CompanyAboutRawText), *record.Hashing.CompanyContentHash)
	require.Len(t, record.Hashing.CompanyURLHash, 64)
}

func TestCompanyExtractMissingMetadataDegradesQuality(t *testing.T) {
	t.Parallel()
	url := "https://example.com/company/mystery"
	html := `<html><body><p class="break-words">A secretive outfit with a long enough about section.</p></body></html>`
	fetcher := &fakeFetcher{pages: map[string]*session.Response{
		url: {StatusCode: 200, Body: []byte(html)},
	}}
	ex := NewCompanyExtractor(fetcher, sha256.New(), nil)

	record, _, err := ex.Extract(context.Background(), url, nil, time.Now())
	require.NoError(t, err)
	require.Nil(t, record.CompanyPageRaw.CompanyIndustryRaw)
	require.Nil(t, record.CompanyPageRaw.CompanySpecialtiesRaw)
	require.Equal(t, schema.QualityLow, record.QualityTracking.ExtractionQuality)
}

func TestCompanyExtractFetchFailurePropagates(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{err: &session.FetchError{Kind: session.KindTerminal, URL: "u", StatusCode: 410}}
	ex := NewCompanyExtractor(fetcher, sha256.New(), nil)

	_, _, err := ex.Extract(context.Background(), "https://example.com/company/gone", nil, time.Now())
	require.Error(t, err)
	require.True(t, session.IsTerminal(err))
}
