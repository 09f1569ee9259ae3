package fares

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a provider search failure for retry decisions and failure
// records.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindRateLimited Kind = "rate_limited"
	KindParse       Kind = "parse"
	KindPermanent   Kind = "permanent"
)

// SearchError is the error type returned by provider clients.
type SearchError struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Permanent reports whether retrying cannot help (unknown location, gone
// endpoint, robots-disallowed path).
func (e *SearchError) Permanent() bool { return e.Kind == KindPermanent }

// Classify maps a transport-level error to a Kind.
func Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// ErrorKind extracts the Kind from an error chain, defaulting to network.
func ErrorKind(err error) Kind {
	var serr *SearchError
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return Classify(err)
}
