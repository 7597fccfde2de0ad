package acmeclient

import "net/url"

// TestingAllowHTTP relaxes ValidURL to accept "http" URLs in addition to
// "https" ones. Only ever set this from a test that talks to a fake CA over
// plain HTTP; production code must never enable it. Grounded on the
// teacher's TestingAllowHTTP/TestingNoTLS package var, used the same way
// throughout api.go's response validation.
var TestingAllowHTTP = false

// ValidURL reports whether u is a well-formed, potentially valid ACME
// resource URL: it must parse and use "https", unless TestingAllowHTTP has
// been set for a test run.
func ValidURL(u string) bool {
	ur, err := url.Parse(u)
	return err == nil && (ur.Scheme == "https" || (TestingAllowHTTP && ur.Scheme == "http"))
}
