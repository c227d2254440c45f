package provider

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrUnavailable is returned while a provider's circuit breaker is open.
var ErrUnavailable = errors.New("provider temporarily unavailable")

// RequestError describes a failed remote call.
type RequestError struct {
	Provider string
	// URL is the request URL with credentials removed
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", e.Provider, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Provider, e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

var secretParams = []string{"apikey", "api_key", "key", "token"}

// Redact strips credential query parameters from raw for logging.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
