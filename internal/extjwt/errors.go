// Package extjwt acquires short-lived upload tokens from an IRC network with
// the EXTJWT extension command. Tokens are cached per connection for a few
// seconds, concurrent requests for one connection are coalesced into a single
// protocol round trip, and networks that answer with ERR_UNKNOWNCOMMAND are
// remembered so they are not asked again for a while.
package extjwt

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrUnsupported means the server or gateway does not implement EXTJWT.
	// Get reports this as KindUnsupported rather than as an error.
	ErrUnsupported = errors.New("extjwt: EXTJWT unsupported on this server/gateway")

	// ErrTimeout means no correlated reply arrived before the deadline.
	ErrTimeout = errors.New("extjwt: timeout expired")

	// ErrStale means a cached token is older than the validity window.
	ErrStale = errors.New("extjwt: stale token")
)

// StaleError carries the age of a rejected token record.
type StaleError struct {
	Age   time.Duration
	Limit time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("extjwt: stale token: %.1f seconds age exceeds %.0f second limit",
		e.Age.Seconds(), e.Limit.Seconds())
}

func (e *StaleError) Unwrap() error {
	return ErrStale
}
