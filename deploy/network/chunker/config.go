package chunker

import (
	"net/http"
	"time"
)

// DefaultThrottle is the default cap on concurrent chunk transmissions in the
// parallel policy. Kept small to respect service rate limits.
const DefaultThrottle = 4

// DefaultHTTPClient creates an HTTP client tuned for chunk transfers.
// Redirects are never followed: the byte-range protocol signals continuation
// with 308 responses that must reach the caller unmodified.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No client-level timeout, chunk deadlines are handled via context.
		Timeout: 0,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
