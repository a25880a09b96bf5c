// Package scope decides whether a request is eligible for interception.
package scope

import (
	"net/http"
	"net/url"
)

// Filter is a pure predicate over outgoing requests.
// Only same-origin GET requests over http(s) are eligible; everything
// else bypasses the cache entirely and is forwarded untouched.
type Filter struct {
	origin url.URL
}

func NewFilter(origin url.URL) Filter {
	return Filter{origin: origin}
}

// Eligible reports whether the request may be intercepted.
func (f Filter) Eligible(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
		return false
	}
	return f.SameOrigin(r.URL)
}

// SameOrigin reports whether the URL shares the filter's origin,
// i.e. scheme and host (including port) are equal.
func (f Filter) SameOrigin(u *url.URL) bool {
	return u.Scheme == f.origin.Scheme && u.Host == f.origin.Host
}

// Origin returns the origin the filter was created with.
func (f Filter) Origin() url.URL {
	return f.origin
}
