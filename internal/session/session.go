// Package session owns the HTTP layer of the pipeline: a pooled connection
// manager that applies per-host rate limiting, classifies failures, and
// retries transient ones with jittered exponential backoff.
//
// A Manager is scoped to one crawl. Callers acquire it at crawl start and
// defer Close, which releases every pooled connection on any exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"rawjobs-crawler/internal/metrics"
)

// Config controls session behavior.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Response is the raw result of a successful fetch. StatusHistory records
// every HTTP status observed across attempts, including the retried ones.
type Response struct {
	URL           string
	StatusCode    int
	Body          []byte
	Duration      time.Duration
	StatusHistory []int
	Retries       int
}

// Manager is the crawl's only shared mutable resource. It is safe for
// concurrent use even though the v1 pipeline fetches sequentially.
type Manager struct {
	cfg       Config
	base      *colly.Collector
	transport *http.Transport
	limiter   *hostLimiter
	backoff   *Backoff
	logger    *zap.Logger
}

// Option adjusts a Manager at construction time.
type Option func(*Manager)

// WithBackoff replaces the retry policy; tests use it to inject a
// deterministic jitter source.
func WithBackoff(b *Backoff) Option {
	return func(m *Manager) { m.backoff = b }
}

// New builds a Manager around a pooled transport so connections are reused
// across requests.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := newPooledTransport()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Politeness is enforced by the host rate limiter, not robots.txt; the
	// guest endpoints this pipeline targets disallow all crawlers there while
	// serving the same pages to any browser.
	c.IgnoreRobotsTxt = true
	c.WithTransport(transport)

	m := &Manager{
		cfg:       cfg,
		base:      c,
		transport: transport,
		limiter:   newHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		backoff: NewBackoff(cfg.BackoffInitial, cfg.BackoffMax, cfg.MaxAttempts,
			rand.New(rand.NewSource(time.Now().UnixNano()))),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get fetches a URL, retrying transient failures until the attempt budget is
// exhausted. It blocks on the host rate limiter before every attempt. All
// failures come back as *FetchError.
func (m *Manager) Get(ctx context.Context, url string) (*Response, error) {
	history := make([]int, 0, m.backoff.MaxAttempts)
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt < m.backoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry()
			if err := m.sleep(ctx, m.backoff.Delay(attempt-1)); err != nil {
				return nil, &FetchError{Kind: KindTerminal, URL: url, Attempts: attempt, Err: err}
			}
		}
		if err := m.limiter.wait(ctx, url); err != nil {
			return nil, &FetchError{Kind: KindTerminal, URL: url, Attempts: attempt, Err: err}
		}

		resp, status, err := m.fetchOnce(ctx, url)
		if status > 0 {
			history = append(history, status)
		}
		if err == nil {
			resp.StatusHistory = history
			resp.Retries = attempt
			return resp, nil
		}
		lastErr = err
		lastStatus = status

		if ctx.Err() != nil {
			return nil, &FetchError{Kind: KindTerminal, URL: url, StatusCode: status, Attempts: attempt + 1, Err: ctx.Err()}
		}
		if !retryable(status, err) {
			return nil, &FetchError{Kind: KindTerminal, URL: url, StatusCode: status, Attempts: attempt + 1, Err: err}
		}
		m.logger.Warn("transient fetch failure, backing off",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, &FetchError{
		Kind:       KindTerminal,
		URL:        url,
		StatusCode: lastStatus,
		Attempts:   m.backoff.MaxAttempts,
		Err:        fmt.Errorf("retry budget exhausted: %w", lastErr),
	}
}

// Close releases all pooled connections. Safe to call more than once.
func (m *Manager) Close() {
	m.transport.CloseIdleConnections()
}

func (m *Manager) fetchOnce(ctx context.Context, url string) (*Response, int, error) {
	collector := m.base.Clone()
	collector.SetRequestTimeout(m.cfg.Timeout)

	var (
		result   *Response
		status   int
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		result = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, status, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if err != nil {
			return nil, status, fmt.Errorf("fetch %s: %w", url, err)
		}
		if result == nil {
			return nil, status, fmt.Errorf("fetch %s: no response captured", url)
		}
		return result, status, nil
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable classifies a failed attempt. Rate limiting, server errors and
// network-level failures (timeouts, resets) are transient; any other 4xx is
// terminal immediately.
func retryable(status int, err error) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	case status >= 400:
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// No status and no recognizable net error: connection-level failure.
	return true
}
