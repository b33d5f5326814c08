package session

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure for the caller's propagation policy.
type Kind int

// Failure classes.
const (
	// KindTransient covers timeouts, rate-limit responses and 5xx; the
	// session retries these until the attempt budget runs out.
	KindTransient Kind = iota
	// KindTerminal covers non-retryable 4xx and exhausted retry budgets.
	KindTerminal
)

// FetchError is returned for every failed fetch.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	kind := "transient"
	if e.Kind == KindTerminal {
		kind = "terminal"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch failure for %s (status %d, attempts %d): %v",
			kind, e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s fetch failure for %s (attempts %d): %v", kind, e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is a terminal fetch failure.
func IsTerminal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTerminal
}

// IsTransient reports whether err is a transient fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTransient
}
