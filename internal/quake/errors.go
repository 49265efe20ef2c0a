package quake

import (
	"errors"
	"fmt"
)

// FetchKind classifies feed fetch failures.
type FetchKind int

const (
	// KindUnreachable covers network-level failures (DNS, connect, timeout).
	KindUnreachable FetchKind = iota
	// KindBadStatus covers non-2xx HTTP responses.
	KindBadStatus
	// KindMalformed covers payloads that cannot be decoded.
	KindMalformed
)

func (k FetchKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindBadStatus:
		return "bad_status"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError is the error type returned by Client.Fetch.
// All fetch failures are non-fatal to the caller: a poll cycle logs and skips.
type FetchError struct {
	Kind   FetchKind
	Status int // HTTP status, set for KindBadStatus
	err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindBadStatus {
		return fmt.Sprintf("feed fetch (%s, http %d): %v", e.Kind, e.Status, e.err)
	}
	return fmt.Sprintf("feed fetch (%s): %v", e.Kind, e.err)
}

func (e *FetchError) Unwrap() error { return e.err }

func fetchErr(kind FetchKind, err error) *FetchError {
	return &FetchError{Kind: kind, err: err}
}

// IsUnreachable reports whether err is a network-level fetch failure.
func IsUnreachable(err error) bool { return hasKind(err, KindUnreachable) }

// IsBadStatus reports whether err is an HTTP-status-level fetch failure.
func IsBadStatus(err error) bool { return hasKind(err, KindBadStatus) }

// IsMalformed reports whether err is a payload-decoding fetch failure.
func IsMalformed(err error) bool { return hasKind(err, KindMalformed) }

func hasKind(err error, kind FetchKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
