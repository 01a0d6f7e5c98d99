// internal/crawlerr/crawlerr.go
package crawlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a crawl failure so callers can branch on it without
// string matching.
type Kind string

const (
	// KindChallengeRequired means the platform demanded interactive
	// verification. Fatal to the current call; never retried internally.
	KindChallengeRequired Kind = "challenge_required"
	// KindIPBlocked is the platform's IP-block sentinel response.
	KindIPBlocked Kind = "ip_blocked"
	// KindDataFetchFailed is a generic envelope failure carrying the
	// platform-supplied message.
	KindDataFetchFailed Kind = "data_fetch_failed"
	// KindMalformedResponse means the response body could not be parsed.
	KindMalformedResponse Kind = "malformed_response"
	// KindNotAuthenticated means an operation was attempted without a valid
	// session and auto-login was disabled.
	KindNotAuthenticated Kind = "not_authenticated"
	// KindLoginFailed means the login retry budget was exhausted or the
	// requested strategy is unsupported.
	KindLoginFailed Kind = "login_failed"
)

// Error is the machine-checkable crawl error. Every failure surfaced by the
// engine carries one of these, optionally wrapping a transport-level cause.
type Error struct {
	Kind    Kind
	Message string
	// Challenge metadata, populated only for KindChallengeRequired.
	ChallengeType string
	ChallengeID   string

	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Challenge builds a ChallengeRequired error with the metadata the transport
// exposed (verification type and id headers).
func Challenge(challengeType, challengeID string) *Error {
	return &Error{
		Kind:          KindChallengeRequired,
		Message:       fmt.Sprintf("verification demanded (type=%s, id=%s)", challengeType, challengeID),
		ChallengeType: challengeType,
		ChallengeID:   challengeID,
	}
}

// KindOf extracts the Kind from err, or "" when err is not a crawl error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Is reports whether err is a crawl error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
