package acmeclient

import (
	"crypto/x509/pkix"
	"fmt"
	"os"
	"strings"

	"github.com/hlandau/acmeclient/acmeutils"
)

// defaultContacts lists the placeholder contact values a shipped config
// template is likely to carry unedited; rejecting them turns a forgotten
// edit into a ConfigurationError instead of a registered account nobody can
// be reached through (spec.md §6 "default contact rejection", S6).
var defaultContacts = map[string]bool{
	"":                              true,
	"mailto:cert-admin@example.com": true,
	"tel:+12025551212":              true,
}

// SessionConfig holds everything a Session needs beyond the wire protocol
// itself: which CA to talk to, the account to register or reuse, the
// certificate request's distinguished name and key parameters, and where the
// HTTP-01 challenge provider should write token files (spec.md §6).
type SessionConfig struct {
	Debug bool

	// CA and CATesting are directory URLs; CATesting is used in place of CA
	// when Debug is set (spec.md §6).
	CA, CATesting string

	// Agreement is the subscriber agreement URI the operator has reviewed
	// and accepted out of band. RegisterAccount sends it as the "agreement"
	// field; if the CA's terms-of-service Link names a different URI, the
	// mismatch is logged and a registration update carrying this value is
	// POSTed. The mismatch itself is not returned as an error.
	Agreement string

	CertDistinguishedName pkix.Name
	CertAccountContact    []string
	CertKeyTypes          []string
	CertRSAKeyBits        int
	CertDigestAlg         string

	// DHParamFile, if non-empty, names a PEM file containing Diffie-Hellman
	// parameters to bundle alongside the issued certificate. Generating DH
	// parameters is out of scope (spec.md §1); this is load-only.
	DHParamFile string

	WebRootDir          string
	AppendDomain        bool
	AppendWellKnownPath bool
	WebServerFilePerm   os.FileMode

	// CertAccountDir holds (or will hold) the account's private key, as
	// acmeutils.LoadOrGenerateRSAKey's dir argument (spec.md §4.2).
	CertAccountDir string
}

// directoryURL returns CATesting if Debug is set and CATesting is non-empty,
// otherwise CA.
func (c *SessionConfig) directoryURL() string {
	if c.Debug && c.CATesting != "" {
		return c.CATesting
	}

	return c.CA
}

// validate checks the invariants spec.md §6 requires before any network call
// is made: a distinguished name with at least countryName, a key size in a
// sane range, and contacts that have plainly been set deliberately.
func (c *SessionConfig) validate() error {
	if c.directoryURL() == "" {
		return &ConfigurationError{Reason: "no CA directory URL configured"}
	}

	if len(c.CertDistinguishedName.Country) == 0 || strings.TrimSpace(c.CertDistinguishedName.Country[0]) == "" {
		return &ConfigurationError{Reason: "certDistinguishedName must include at least countryName"}
	}

	if c.CertRSAKeyBits == 0 {
		c.CertRSAKeyBits = acmeutils.DefaultRSAKeyBits
	} else if c.CertRSAKeyBits < 2048 {
		return &ConfigurationError{Reason: fmt.Sprintf("certRSAKeyBits %d is below the minimum of 2048", c.CertRSAKeyBits)}
	}

	if len(c.CertAccountContact) == 0 {
		return &ConfigurationError{Reason: "certAccountContact is empty"}
	}

	for _, contact := range c.CertAccountContact {
		if defaultContacts[strings.ToLower(strings.TrimSpace(contact))] {
			return &ConfigurationError{Reason: fmt.Sprintf("certAccountContact %q looks like an unedited default and was rejected", contact)}
		}
	}

	if c.CertAccountDir == "" {
		return &ConfigurationError{Reason: "certAccountDir is required"}
	}

	return nil
}
