// Package faillog records per-record extraction and fetch failures without
// ever interrupting the crawl. Failures are collected in memory for the final
// crawl log and mirrored to the structured logger as they happen.
package faillog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"rawjobs-crawler/internal/metrics"
)

// Failure classes, used for the crawl log and the failure counter labels.
const (
	ClassFetchTerminal  = "fetch_terminal"
	ClassFetchTransient = "fetch_transient"
	ClassMissingField   = "missing_required_field"
	ClassBadURL         = "bad_url"
	ClassSerialization  = "serialization"
)

// Entry is one failed record. Selector is set when a required selector group
// produced nothing; Retries carries the fetch attempt count when known.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	RecordID  string    `json:"record_id,omitempty"`
	Class     string    `json:"class"`
	Selector  string    `json:"selector,omitempty"`
	Retries   int       `json:"retries"`
	Message   string    `json:"message"`
}

// Log accumulates failures for one crawl run. All methods are safe for
// concurrent use and none of them return an error: a broken failure log must
// never take the crawl down with it.
type Log struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []Entry
}

// New builds an empty failure log. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger, now func() time.Time) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Log{logger: logger, now: now}
}

// Record stores a failure and emits it on the structured logger.
func (l *Log) Record(kind, url, recordID, class, selector string, retries int, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	entry := Entry{
		Timestamp: l.now().UTC(),
		Kind:      kind,
		URL:       url,
		RecordID:  recordID,
		Class:     class,
		Selector:  selector,
		Retries:   retries,
		Message:   msg,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	metrics.ObserveExtractionFailure(class)
	l.logger.Warn("record failed",
		zap.String("kind", kind),
		zap.String("url", url),
		zap.String("class", class),
		zap.String("selector", selector),
		zap.Int("retries", retries),
		zap.String("error", msg),
	)
}

// Entries returns a copy of everything recorded so far.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports how many failures were recorded.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteFile persists the entries as JSON lines. It is best effort: on any
// error the entries are dumped to stderr instead and WriteFile still returns
// nil, keeping the no-raise contract.
func (l *Log) WriteFile(path string) error {
	entries := l.Entries()
	if len(entries) == 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		l.dumpStderr(entries, err)
		return nil
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			l.dumpStderr(entries, err)
			return nil
		}
	}
	return nil
}

func (l *Log) dumpStderr(entries []Entry, cause error) {
	fmt.Fprintf(os.Stderr, "failure log could not be written (%v), dumping %d entries:\n", cause, len(entries))
	enc := json.NewEncoder(os.Stderr)
	for _, e := range entries {
		// Encoding to stderr is itself best effort.
		_ = enc.Encode(e)
	}
}
