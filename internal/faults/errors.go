// Package faults centralizes the error taxonomy shared by the session
// controller, the crawlers and the refreshers, plus the bounded retry
// executor every recovery loop goes through.
package faults

import (
	"errors"
	"fmt"
)

// ErrChallengeDetected marks an anti-bot interstitial blocking normal
// navigation. One automatic restart is attempted before it propagates.
var ErrChallengeDetected = errors.New("challenge page detected")

// ErrLoginTimeout marks a login that did not complete within its
// bounded wait (2FA code never received or never accepted)
var ErrLoginTimeout = errors.New("login timed out")

// ErrCodeTimeout marks a 2FA wait that ran out before any code was
// accepted
var ErrCodeTimeout = errors.New("no usable login code before deadline")

// ErrUnrecoverable marks a session whose restart budget is exhausted
var ErrUnrecoverable = errors.New("session unrecoverable")

// ItemError wraps a single malformed item block. Always recovered
// locally: logged, skipped, the page scan continues.
type ItemError struct {
	Page int
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item extraction failed on page %d: %v", e.Page, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// PageError wraps a failed page fetch. The scan logs it and moves to
// the next page unless the session is judged dead.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d fetch failed (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
