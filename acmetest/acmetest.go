// Package acmetest provides an in-process scripted fake ACME CA and a TLS-
// skip-verify HTTP client, for use in this module's own tests. Adapted from
// the teacher's pebbletest package: pebbletest wrapped a real external
// Pebble test-CA binary and exposed a single package-level *http.Client.
// SPEC_FULL.md §4.0.3 substitutes httptest.Server since no external test CA
// binary is available to this module; InsecureClient below is the direct
// descendant of pebbletest.HTTPClient.
package acmetest

import (
	"crypto/tls"
	"net/http"
)

// InsecureClient returns an *http.Client with certificate verification
// disabled, for talking to an httptest.NewTLSServer-backed FakeCA.
func InsecureClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &http.Client{Transport: transport}
}
