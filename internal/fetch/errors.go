package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies source retrieval failures.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindUpstream    Kind = "upstream"
	KindNetwork     Kind = "network"
	KindBlocked     Kind = "blocked"
	KindParse       Kind = "parse"
	KindUnexpected  Kind = "unexpected"
)

// SourceError is a classified failure talking to an external source.
type SourceError struct {
	Kind       Kind
	StatusCode int
	URL        string
	Reason     string
	Cause      error
}

func (e *SourceError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s for %s", e.Kind, e.Reason, e.URL)
	default:
		return fmt.Sprintf("%s: %v for %s", e.Kind, e.Cause, e.URL)
	}
}

func (e *SourceError) Unwrap() error { return e.Cause }

// Transient reports whether retrying the request may succeed.
func (e *SourceError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindUpstream, KindNetwork:
		return true
	}
	return false
}

// ClassifyStatus creates a SourceError from an HTTP status code.
func ClassifyStatus(statusCode int, url string) *SourceError {
	e := &SourceError{StatusCode: statusCode, URL: url, Cause: fmt.Errorf("HTTP %d", statusCode)}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case statusCode == http.StatusForbidden, statusCode == http.StatusUnauthorized:
		e.Kind = KindForbidden
	case statusCode == http.StatusNotFound, statusCode == http.StatusGone:
		e.Kind = KindNotFound
	case statusCode >= 500 && statusCode <= 599:
		e.Kind = KindUpstream
	default:
		e.Kind = KindUnexpected
	}
	return e
}

// NetworkError wraps a transport-level failure.
func NetworkError(cause error, url string) *SourceError {
	return &SourceError{Kind: KindNetwork, URL: url, Cause: cause}
}

// ParseError wraps a failure to decode a response.
func ParseError(cause error, url string) *SourceError {
	return &SourceError{Kind: KindParse, URL: url, Cause: cause}
}

// BlockedError reports an anti-bot or otherwise unusable response.
func BlockedError(reason, url string) *SourceError {
	return &SourceError{Kind: KindBlocked, URL: url, Reason: reason}
}

// KindOf returns the Kind of the first SourceError in err's chain, or "".
func KindOf(err error) Kind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsBlocked reports whether err is a blocked-source error.
func IsBlocked(err error) bool {
	return KindOf(err) == KindBlocked
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Transient()
}
