// Package taskerr defines the tagged error variants propagated across the
// fetch/process pipeline. Every component that can fail classifies its
// failure into one of the Kind values below instead of returning a bare
// error, so SourceCheck rows and CLI exit codes can reason about recovery
// without string-matching error messages.
package taskerr

import "fmt"

// Kind enumerates the error classification used throughout the ingestion
// engine, exactly as named by the error-handling design.
type Kind string

const (
	KindNetwork                    Kind = "network"
	KindTimeout                    Kind = "timeout"
	KindDNS                        Kind = "dns"
	KindTLS                        Kind = "tls"
	KindHTTP4xx                    Kind = "http_4xx"
	KindHTTP5xx                    Kind = "http_5xx"
	KindRobotsDisallowed           Kind = "robots_disallowed"
	KindRateLimitedLocal           Kind = "rate_limited_local"
	KindRateLimitedRemote          Kind = "rate_limited_remote"
	KindOutOfScope                 Kind = "out_of_scope"
	KindExtractionFailed           Kind = "extraction_failed"
	KindValidation                 Kind = "validation"
	KindDuplicate                  Kind = "duplicate"
	KindConcurrentExecutionBlocked Kind = "concurrent_execution_blocked"
	KindStorageConflict            Kind = "storage_conflict"
	KindPartialFailure             Kind = "partial_failure"
	KindFatal                      Kind = "fatal"
)

// Error is the tagged error type carried across component boundaries.
// Detail is a short human-readable explanation; Cause, when present, is the
// underlying error (wrapped, retrievable with errors.Unwrap/errors.Is).
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == kind
}

// Retryable reports whether the kind is generally worth retrying at the
// component level (network blips, remote throttling, 5xx).
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindHTTP5xx, KindRateLimitedRemote:
		return true
	default:
		return false
	}
}
