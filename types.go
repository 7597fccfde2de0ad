// Package acmeclient implements an ACME protocol engine and HTTP-01
// challenge orchestration for obtaining X.509 certificates from a legacy
// ("new-reg"/"new-authz"/"new-cert" dialect) ACME certificate authority.
//
// See Session for introductory documentation.
package acmeclient

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"
)

// directoryInfo is the ACME directory resource: the CA base URL's derived
// endpoint paths, per spec.md §3 "AcmeDirectory".
type directoryInfo struct {
	NewReg     string `json:"new-reg"`
	NewAuthz   string `json:"new-authz"`
	NewCert    string `json:"new-cert"`
	RevokeCert string `json:"revoke-cert,omitempty"`
}

func (d *directoryInfo) validate() error {
	if !ValidURL(d.NewReg) || !ValidURL(d.NewAuthz) || !ValidURL(d.NewCert) {
		return fmt.Errorf("directory does not provide required endpoints: %+v", d)
	}

	return nil
}

// Identifier names a resource for which authorization is sought. "dns" is
// the only type this client issues for.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

type IdentifierType string

const IdentifierTypeDNS IdentifierType = "dns"

// Problem is an RFC 7807 problem document, as returned by the CA on error
// responses (Content-Type: application/problem+json).
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (p *Problem) String() string {
	if p == nil {
		return "<no problem body>"
	}

	return fmt.Sprintf("%s: %s (%s)", p.Type, p.Detail, p.Title)
}

// Account is the operator's ACME account: an RSA key pair persisted under an
// account directory, plus a contact list. See spec.md §3.
type Account struct {
	// URL is the account resource URL, captured from the Location header
	// returned by registration. Empty until RegisterAccount succeeds.
	URL string `json:"-"`

	// PrivateKey signs every request made on behalf of this account.
	PrivateKey *rsa.PrivateKey `json:"-"`

	// ContactURIs is a non-empty, non-default set of "mailto:"/"tel:" URIs
	// (spec.md §6 certAccountContact).
	ContactURIs []string `json:"-"`
}

// Status is shared by Authorization and Challenge; both use the same
// pending/valid/invalid vocabulary (spec.md §3).
type Status string

const (
	StatusPending Status = "pending"
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

func (s Status) isWellFormed() bool {
	switch s {
	case StatusPending, StatusValid, StatusInvalid:
		return true
	default:
		return false
	}
}

func (s Status) isFinal() bool {
	return s == StatusValid || s == StatusInvalid
}

// UnmarshalJSON rejects status strings outside the known vocabulary instead
// of silently accepting them, following the validating UnmarshalJSON pattern
// used throughout the teacher lineage's status types.
func (s *Status) UnmarshalJSON(data []byte) error {
	var ss string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}

	st := Status(ss)
	if !st.isWellFormed() {
		return fmt.Errorf("not a recognised status: %q", ss)
	}

	*s = st
	return nil
}

// Authorization is a per-domain server-created object, addressed by URL,
// that transitions pending -> valid | invalid (spec.md §3).
type Authorization struct {
	URL string `json:"-"`

	Identifier Identifier  `json:"identifier"`
	Status     Status      `json:"status,omitempty"`
	Expires    time.Time   `json:"expires,omitempty"`
	Challenges []Challenge `json:"challenges,omitempty"`
	Error      *Problem    `json:"error,omitempty"`
}

func (az *Authorization) validate() error {
	if len(az.Challenges) == 0 {
		return fmt.Errorf("authorization %s offered no challenges", az.URL)
	}

	return nil
}

// Challenge is a single proof-of-control task offered inside an
// Authorization (spec.md §3).
type Challenge struct {
	URL       string    `json:"uri"`
	Type      string    `json:"type"`
	Status    Status    `json:"status,omitempty"`
	Token     string    `json:"token"`
	Validated time.Time `json:"validated,omitempty"`
	Error     *Problem  `json:"error,omitempty"`
}

// Certificate is the server-side resource created by finalization: a URL
// from which the issued leaf (and, via Link headers, its issuer chain) can
// be retrieved (spec.md §3).
type Certificate struct {
	URL string

	// LeafDER is the DER encoding of the issued leaf certificate. Populated
	// once the certificate URL returns 200.
	LeafDER []byte

	// ChainDER holds the issuer chain, in the order given by successive
	// "Link: ...; rel=\"up\"" headers.
	ChainDER [][]byte
}

// CertificateBundle is the final output of a successful issuance: the leaf
// certificate, its issuer chain, and the private key generated for it,
// optionally accompanied by DH parameters (spec.md §3).
type CertificateBundle struct {
	LeafPEM  []byte
	ChainPEM []byte
	KeyPEM   []byte

	// DHParamsPEM is non-nil only if SessionConfig.DHParamFile is set and
	// the file was read successfully (see dhparams.go). Generation of DH
	// parameters is out of scope for this client (spec.md §1).
	DHParamsPEM []byte
}
