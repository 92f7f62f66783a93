package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net"
)

// Kind classifies an HTTP probe failure for the retry policy (C6) and for
// the error string that ends up in a Record.
type Kind string

const (
	KindTimeout    Kind = "TimeoutError"
	KindConnection Kind = "ConnectionError"
	KindTLS        Kind = "TlsError"
	KindStatus     Kind = "HttpStatusError"
	KindRateLimit  Kind = "RateLimitExceeded"
	KindParse      Kind = "ParseError"
	KindInternal   Kind = "Internal"
)

// Error is the classified outcome of a failed HTTP probe attempt.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return e.Message
}

// ErrRedirectLimit is wrapped by Error when the configured redirect limit
// is exceeded.
var ErrRedirectLimit = errors.New("redirect limit exceeded")

// Retryable reports whether the classified error should be retried per §7:
// connect/read timeouts, TCP reset, 5xx, 408, 425, 429 are transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimit:
		return true
	case KindStatus:
		return isRetryableStatus(e.StatusCode)
	default:
		return false
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 408, 425, 429:
		return true
	}
	return status >= 500 && status < 600
}

func kindForStatus(status int) Kind {
	if status == 429 {
		return KindRateLimit
	}
	return KindStatus
}

func classifyDoError(err error) *Error {
	if errors.Is(err, ErrRedirectLimit) {
		// StatusCode 0 never matches isRetryableStatus, so this is
		// permanent rather than retried like a genuine connection error.
		return &Error{Kind: KindStatus, Message: err.Error()}
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	if isTLSError(err) {
		return &Error{Kind: KindTLS, Message: err.Error()}
	}
	return &Error{Kind: KindConnection, Message: err.Error()}
}

func isTLSError(err error) bool {
	msg := err.Error()
	return containsAny(msg, "x509", "tls:", "certificate")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if bytesContains(s, sub) {
			return true
		}
	}
	return false
}

func bytesContains(s, sub string) bool {
	return bytes.Contains([]byte(s), []byte(sub))
}

func newReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}
