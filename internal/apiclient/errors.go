package apiclient

import (
	"fmt"
	"strings"
)

// APIError is a non-2xx HTTP response from the upstream API. It carries a
// truncated body excerpt and a masked credential fingerprint for
// diagnosability; the full credential never appears anywhere.
type APIError struct {
	StatusCode  int
	BodyExcerpt string
	Credentials string // pre-masked, see MaskSecret
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d (credentials %s): %s", e.StatusCode, e.Credentials, e.BodyExcerpt)
}

// TimeoutError is a request that exceeded the timeout budget.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("api: timeout fetching %s: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError is a network-level failure (DNS, TCP reset, TLS).
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("api: connection failure fetching %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx response whose body is not parseable as
// the expected JSON document.
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("api: malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// MaskSecret reduces a secret to a fingerprint exposing at most its last
// four characters. Short secrets are fully masked.
func MaskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// maskAll builds a diagnostic fingerprint from a set of credential values.
func maskAll(values []string) string {
	masked := make([]string, len(values))
	for i, v := range values {
		masked[i] = MaskSecret(v)
	}
	return strings.Join(masked, ",")
}
