package model

import (
	"fmt"
	"strings"
)

// CrawlState represents where a domain is in its crawl lifecycle.
//
// Design decision: We use iota-based constants rather than string constants
// for cheap comparisons in the supervisor loop. The String() method and the
// text marshaling methods provide the human-readable form used on the wire.
type CrawlState int

const (
	// StateIdle indicates the domain has never been crawled.
	StateIdle CrawlState = iota

	// StateRunning indicates a supervisor is actively dispatching work.
	StateRunning

	// StateCompleted indicates the frontier was exhausted and every
	// outstanding fetch was resolved. Individual page failures are allowed.
	StateCompleted

	// StateFailed indicates an unrecoverable error, such as an unreachable
	// root URL. Partial results collected before the failure are kept.
	StateFailed
)

// String returns a human-readable representation of the crawl state.
func (s CrawlState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is one a crawl never leaves on its own.
func (s CrawlState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler so states render as names in JSON.
func (s CrawlState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CrawlState) UnmarshalText(text []byte) error {
	state, err := ParseCrawlState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseCrawlState converts a state name (case-insensitive) back into a CrawlState.
func ParseCrawlState(name string) (CrawlState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "idle":
		return StateIdle, nil
	case "running":
		return StateRunning, nil
	case "completed":
		return StateCompleted, nil
	case "failed":
		return StateFailed, nil
	default:
		return StateIdle, fmt.Errorf("unknown crawl state %q", name)
	}
}
