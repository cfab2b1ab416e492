package core

import (
	"errors"
	"fmt"
	"strings"
)

// TransientError marks an error as retryable by retry loops.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NavigationError reports a page that failed to load after all retries.
type NavigationError struct {
	URL      string
	Page     int
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate page %d (%s) failed after %d attempt(s): %v", e.Page, e.URL, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError reports a page whose gross structure no longer matches the selectors.
// It needs selector maintenance, not a retry.
type ExtractionError struct {
	Page     int
	Selector string
	Reason   string
}

func (e *ExtractionError) Error() string {
	parts := []string{fmt.Sprintf("extract page %d: %s", e.Page, strings.TrimSpace(e.Reason))}
	if e.Selector != "" {
		parts = append(parts, fmt.Sprintf("selector=%q", e.Selector))
	}
	return strings.Join(parts, " ")
}

// CaptchaBlockedError is returned when a challenge is present and cannot be cleared
// without an operator.
type CaptchaBlockedError struct {
	URL  string
	Page int
}

func (e *CaptchaBlockedError) Error() string {
	return fmt.Sprintf("captcha challenge blocks page %d (%s): no solving credential and no operator available", e.Page, e.URL)
}

// CaptchaSolveError is returned when automated solving fails or times out.
type CaptchaSolveError struct {
	URL string
	Err error
}

func (e *CaptchaSolveError) Error() string {
	return fmt.Sprintf("solve captcha on %s: %v", e.URL, e.Err)
}

func (e *CaptchaSolveError) Unwrap() error { return e.Err }

// PersistenceError is returned when buffered rows could not be flushed. The rows stay
// buffered so the caller can retry the flush once.
type PersistenceError struct {
	Rows int
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("flush %d row(s): %v", e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsFatal reports whether err belongs to the page- or store-level taxonomy that ends a run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		nav     *NavigationError
		ext     *ExtractionError
		blocked *CaptchaBlockedError
		solve   *CaptchaSolveError
		persist *PersistenceError
	)
	return errors.As(err, &nav) ||
		errors.As(err, &ext) ||
		errors.As(err, &blocked) ||
		errors.As(err, &solve) ||
		errors.As(err, &persist)
}
