// Package acmeendpoints provides information on known legacy-dialect ACME
// certificate authorities, resolved from the "ca"/"caTesting" configuration
// keys (spec.md §6). Adapted from the teacher's acmeendpoints package: the
// ACMEv2-specific OCSP URL matching and certificate URL templating are
// dropped (revocation and OCSP stapling are both out of scope — spec.md §1
// Non-goals), leaving the registry/lookup shape.
package acmeendpoints

import (
	"fmt"
	"regexp"
	"sync"
)

// Endpoint describes a known ACME directory under the legacy
// "new-reg"/"new-authz"/"new-cert" dialect this client speaks.
type Endpoint struct {
	// Title is a short, human-readable description of the endpoint.
	Title string

	// Code is a short unique identifier. Must match ^[a-zA-Z][a-zA-Z0-9_]*$.
	Code string

	// DirectoryURL is the ACME directory URL. Must be an HTTPS URL.
	DirectoryURL string

	// Live reports whether this endpoint issues certificates trusted in
	// production, as opposed to a staging/testing endpoint.
	Live bool

	// DeprecatedDirectoryURLRegexp, if not "", matches older directory URLs
	// this endpoint supersedes, so a configuration naming an old URL still
	// resolves to the current endpoint.
	DeprecatedDirectoryURLRegexp string
	deprecatedDirectoryURLRegexp *regexp.Regexp

	initOnce sync.Once
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("Endpoint(%v)", e.DirectoryURL)
}

func (e *Endpoint) init() {
	e.initOnce.Do(func() {
		if e.DeprecatedDirectoryURLRegexp != "" {
			e.deprecatedDirectoryURLRegexp = regexp.MustCompile(e.DeprecatedDirectoryURLRegexp)
		}
	})
}

var endpoints []*Endpoint

// Visit calls f for every registered endpoint, stopping at the first error.
func Visit(f func(p *Endpoint) error) error {
	for _, p := range endpoints {
		if err := f(p); err != nil {
			return err
		}
	}

	return nil
}

// RegisterEndpoint adds a new endpoint to the registry.
func RegisterEndpoint(p *Endpoint) {
	p.init()
	endpoints = append(endpoints, p)
}

func init() {
	for _, p := range builtinEndpoints {
		RegisterEndpoint(p)
	}
}
