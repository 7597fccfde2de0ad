// Package challenge implements ACME challenge types. Only http-01 is
// implemented; dns-01 and tls-alpn-01 are explicit non-goals (spec.md §1).
//
// Grounded on the registry pattern in the teacher lineage's responder
// package (other_examples: fa82111e hlandau-acme responder/responder.go):
// a Provider is looked up by challenge type and driven through a small,
// explicit lifecycle rather than the CA dictating how it works.
package challenge

import (
	"context"
	"fmt"
)

// Provider implements the operator-side half of one ACME challenge type:
// placing whatever the CA will look for, checking locally that it is
// actually reachable before telling the CA to look, and removing it again
// once the authorization has reached a final state.
type Provider interface {
	// Type is the ACME challenge type this provider answers, e.g. "http-01".
	Type() string

	// ValidateDomainControl is a pure local-reachability check, independent
	// of any challenge token: it places a throwaway marker at the location a
	// challenge file would go, fetches it back over plain HTTP, and removes
	// it again. It must run, and must pass, for every domain before a
	// new-authz request is made for any of them (spec.md §4.5
	// "validateDomainControl", §4.6 step 1, S2: a single domain's failure
	// aborts the whole batch before the CA is ever contacted).
	ValidateDomainControl(ctx context.Context, domain string) error

	// Prepare makes the key authorization available at the location the
	// challenge type defines (spec.md §4.5 "Challenge preparation").
	Prepare(ctx context.Context, domain, token, keyAuthorization string) error

	// SelfCheck fetches the prepared resource the same way the CA will and
	// confirms it matches, before the CA is ever told to look. It runs after
	// the authorization has been created and before the challenge response
	// is POSTed.
	SelfCheck(ctx context.Context, domain, token, keyAuthorization string) error

	// Cleanup removes whatever Prepare placed. It is called unconditionally
	// once an authorization reaches a final status, success or failure
	// (spec.md §4.6 "cleanup always runs"). Cleanup must be safe to call even
	// if Prepare was never called or already ran once.
	Cleanup(ctx context.Context, domain, token string) error
}

var registry = map[string]func() Provider{}

// Register adds a provider constructor under the given challenge type name,
// overriding any previous registration for that type. Mirrors the teacher
// lineage's RegisterResponder.
func Register(typeName string, newProvider func() Provider) {
	registry[typeName] = newProvider
}

// New instantiates the provider registered for typeName.
func New(typeName string) (Provider, error) {
	f, ok := registry[typeName]
	if !ok {
		return nil, fmt.Errorf("challenge: no provider registered for type %q", typeName)
	}

	return f(), nil
}

func init() {
	Register("http-01", func() Provider { return NewHTTP01(HTTP01Config{AppendWellKnownPath: true}) })
}
