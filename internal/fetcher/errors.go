package fetcher

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
)

// Error kinds, driving the worker's retry decision.
const (
	// KindTransient is retried with backoff within the same task.
	KindTransient = "transient"
	// KindTimeout abandons the fetch; the lease is still released.
	KindTimeout = "timeout"
	// KindBlocked flags bot blocks and auth walls; no retry this cycle.
	KindBlocked = "blocked"
	// KindPermanent is everything not worth retrying before the next
	// scheduled cycle.
	KindPermanent = "permanent"
)

// Error is a classified fetch failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// ErrKind returns the classification of err, KindPermanent for anything
// unrecognized.
func ErrKind(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return classify(err).Kind
}

// classify wraps an arbitrary client error with its kind.
func classify(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err):
		return &Error{Kind: KindTimeout, Err: err}
	case sslError(err):
		return &Error{Kind: KindPermanent, Err: err}
	case networkError(err):
		return &Error{Kind: KindTransient, Err: err}
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// classifyStatus returns the error kind for an HTTP status code, or "" if
// the status is acceptable.
func classifyStatus(code int) string {
	switch {
	case code == http.StatusOK || code == http.StatusNotModified:
		return ""
	case code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusProxyAuthRequired ||
		code == http.StatusUnavailableForLegalReasons:
		return KindBlocked
	case code == http.StatusTooManyRequests || code >= 500:
		return KindTransient
	}
	return KindPermanent
}

func networkError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sslError(err error) bool {
	var caErr *x509.UnknownAuthorityError
	if errors.As(err, &caErr) {
		return true
	}

	var hostErr *x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}

	var algErr *x509.InsecureAlgorithmError
	return errors.As(err, &algErr)
}
