// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

// Package transport defines the closed taxonomy of failure kinds produced at
// the network boundary. Every error surfaced by the catalog client is
// expressed in these terms so callers can make retry and fallback decisions
// without inspecting raw transport errors.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Kind identifies one failure class in the closed taxonomy.
type Kind int

const (
	// KindUnknown is the fallback for errors that match no other kind.
	KindUnknown Kind = iota

	// KindTimeout indicates a connect or response deadline was exceeded.
	KindTimeout

	// KindNoConnectivity indicates the network is unreachable (DNS failure,
	// connection refused, no route).
	KindNoConnectivity

	// KindRateLimited indicates the remote service signalled HTTP 429.
	KindRateLimited

	// KindServerError indicates an HTTP 5xx response.
	KindServerError

	// KindClientError indicates an HTTP 4xx response other than 429.
	KindClientError

	// KindDecoding indicates a response body could not be decoded.
	KindDecoding

	// KindTrustFailure indicates TLS certificate or identity validation failed.
	KindTrustFailure

	// KindCancelled indicates the caller's context was cancelled.
	KindCancelled
)

// String returns the taxonomy name for logging and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNoConnectivity:
		return "no_connectivity"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	case KindDecoding:
		return "decoding_error"
	case KindTrustFailure:
		return "trust_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a local retry can plausibly succeed.
// Only timeouts, rate limits, and server errors qualify. Client errors and
// decoding failures will not change on retry, and retrying a trust failure
// is itself a security defect.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// Error is a classified transport failure.
type Error struct {
	Kind       Kind
	StatusCode int           // HTTP status when applicable, zero otherwise
	RetryAfter time.Duration // server-provided retry hint, zero when absent
	Err        error         // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport: %s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: %s (HTTP %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("transport: %s", e.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error's kind permits a local retry.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// New creates a classified error with an underlying cause.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the taxonomy kind from any error chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// FromStatus classifies an HTTP status code. Codes below 400 yield nil.
func FromStatus(code int, retryAfter time.Duration) *Error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, StatusCode: code, RetryAfter: retryAfter}
	case code >= 500:
		return &Error{Kind: KindServerError, StatusCode: code}
	default:
		return &Error{Kind: KindClientError, StatusCode: code}
	}
}

// Classify maps a raw error from the HTTP layer into the taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	// Context errors take priority: a cancelled caller should never be
	// reported as a connectivity problem.
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	// Certificate and identity validation failures.
	if isTrustFailure(err) {
		return &Error{Kind: KindTrustFailure, Err: err}
	}

	// url.Error wraps most client-side failures; unwrap before the net checks
	// so Timeout() reflects the innermost error.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &Error{Kind: KindTimeout, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	// DNS failures and refused connections mean the service is unreachable.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindNoConnectivity, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindNoConnectivity, Err: err}
	}

	return &Error{Kind: KindUnknown, Err: err}
}

// isTrustFailure detects TLS certificate validation errors anywhere in the chain.
func isTrustFailure(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		certInvalid      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) ||
		errors.As(err, &verifyErr)
}
