package companycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rawjobs-crawler/internal/schema"
)

type countingCompanyFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingCompanyFetcher) Extract(_ context.Context, companyURL string, nameHint *string, now time.Time) (schema.CompanyRecord, []byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return schema.CompanyRecord{}, nil, f.err
	}
	rec := schema.NewCompanyRecord()
	rec.CompanyIdentity = schema.CompanyIdentity{
		CompanyIDHash:  "abcdef0123456789",
		CompanyNameRaw: nameHint,
		CompanyURL:     companyURL,
	}
	rec.Timestamps = schema.Timestamps{FirstSeen: now.UTC(), LastSeen: now.UTC()}
	return rec, []byte("<html>company</html>"), nil
}

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func TestGetOrFetchAtMostOncePerRun(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{}
	cache := New(fetcher, nil)
	ctx := context.Background()

	first, fetched, body, err := cache.GetOrFetch(ctx, "https://example.com/company/acme", schema.String("Acme"))
	require.NoError(t, err)
	require.True(t, fetched)
	require.NotEmpty(t, body)

	second, fetched, body, err := cache.GetOrFetch(ctx, "https://example.com/company/acme", nil)
	require.NoError(t, err)
	require.False(t, fetched)
	require.Nil(t, body)
	require.Same(t, first, second)
	require.Equal(t, int32(1), fetcher.calls.Load())
}

func TestGetOrFetchNormalizedVariantsHitSameEntry(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{}
	cache := New(fetcher, nil)
	ctx := context.Background()

	variants := []string{
		"https://example.com/company/acme",
		"https://EXAMPLE.com/company/acme/",
		"https://example.com/company/acme?utm_source=email",
		"https://example.com/company/acme#contact",
		"https://example.com:443/company/acme",
	}
	for _, v := range variants {
		_, _, _, err := cache.GetOrFetch(ctx, v, nil)
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), fetcher.calls.Load(), "five variants must cause one fetch")
	require.Equal(t, 1, cache.Len())
}

func TestFiveReferencesOneFetchFiveLastSeenUpdates(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	cache := New(fetcher, clock.Now)
	ctx := context.Background()

	var last *schema.CompanyRecord
	for i := 0; i < 5; i++ {
		rec, _, _, err := cache.GetOrFetch(ctx, "https://example.com/company/acme", nil)
		require.NoError(t, err)
		last = rec
	}

	require.Equal(t, int32(1), fetcher.calls.Load())
	// Clock ticks once per reference; last-seen carries the fifth tick while
	// first-seen keeps the first.
	require.Equal(t, clock.t, last.Timestamps.LastSeen)
	require.Equal(t, 5*time.Minute, clock.t.Sub(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	require.True(t, last.Timestamps.FirstSeen.Before(last.Timestamps.LastSeen))
}

func TestGetOrFetchConcurrentCallersSingleFetch(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{}
	cache := New(fetcher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := cache.GetOrFetch(context.Background(), "https://example.com/company/acme", nil)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), fetcher.calls.Load())
}

func TestGetOrFetchPropagatesFetchError(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{err: errors.New("company page unreachable")}
	cache := New(fetcher, nil)

	_, _, _, err := cache.GetOrFetch(context.Background(), "https://example.com/company/acme", nil)
	require.Error(t, err)
	require.Zero(t, cache.Len())

	// Failed fetches are not cached; a later attempt may retry.
	_, _, _, _ = cache.GetOrFetch(context.Background(), "https://example.com/company/acme", nil)
	require.Equal(t, int32(2), fetcher.calls.Load())
}

func TestRecordsReturnsFirstFetchOrder(t *testing.T) {
	t.Parallel()
	fetcher := &countingCompanyFetcher{}
	cache := New(fetcher, nil)
	ctx := context.Background()

	_, _, _, err := cache.GetOrFetch(ctx, "https://example.com/company/acme", nil)
	require.NoError(t, err)
	_, _, _, err = cache.GetOrFetch(ctx, "https://example.com/company/globex", nil)
	require.NoError(t, err)

	records := cache.Records()
	require.Len(t, records, 2)
	require.Equal(t, "https://example.com/company/acme", records[0].CompanyIdentity.CompanyURL)
	require.Equal(t, "https://example.com/company/globex", records[1].CompanyIdentity.CompanyURL)
}
