package faults

import (
	"errors"
	"strings"
)

// Decision is what the caller must do about an automation error
type Decision int

const (
	// Retryable errors are item-level: log, skip, keep scanning
	Retryable Decision = iota
	// SessionDead errors require discarding and recreating the session
	SessionDead
	// Abort errors exhaust the recovery budget and surface to the caller
	Abort
)

func (d Decision) String() string {
	switch d {
	case Retryable:
		return "retryable"
	case SessionDead:
		return "session_dead"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// sessionDeadMarkers are message substrings that mean the browser or
// its control channel is gone, not that the page content was bad
var sessionDeadMarkers = []string{
	"connection refused",
	"invalid session",
	"session not created",
	"max retries exceeded",
	"chrome not reachable",
	"browser not responding",
	"websocket: close",
	"target closed",
}

// Classify maps a raw automation error to a recovery decision. A
// detected challenge counts as SessionDead because the on-the-spot
// restart already happened by the time it propagates here.
func Classify(err error) Decision {
	if err == nil {
		return Retryable
	}
	if errors.Is(err, ErrUnrecoverable) || errors.Is(err, ErrLoginTimeout) {
		return Abort
	}
	if errors.Is(err, ErrChallengeDetected) {
		return SessionDead
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range sessionDeadMarkers {
		if strings.Contains(msg, marker) {
			return SessionDead
		}
	}

	return Retryable
}
