package acmeclient

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/hlandau/acmeclient/acmetest"
	"github.com/hlandau/acmeclient/challenge"
)

var bigOne = big.NewInt(1)

func testSessionConfig(t *testing.T, ca *acmetest.FakeCA) SessionConfig {
	t.Helper()

	return SessionConfig{
		CA:                    ca.DirectoryURL(),
		Agreement:             "",
		CertDistinguishedName: pkix.Name{Country: []string{"GB"}},
		CertAccountContact:    []string{"mailto:ops@example.net"},
		CertRSAKeyBits:        2048,
		CertAccountDir:        t.TempDir(),
	}
}

func newTestOrigin(t *testing.T) (domain string, webroot string) {
	t.Helper()

	webroot = t.TempDir()
	srv := httptest.NewServer(http.FileServer(http.Dir(webroot)))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://"), webroot
}

// TestIssueCertificateHappyPath drives the full register/authorize/finalize
// flow against a scripted fake CA and a real (httptest) origin server for
// the http-01 self-check, exercising the S1 scenario: registration,
// authorization, and certificate issuance all succeed for a single domain.
func TestIssueCertificateHappyPath(t *testing.T) {
	ca := acmetest.NewFakeCA()
	defer ca.Close()

	leafDER, chainDER := testCertChain(t)
	ca.LeafDER = leafDER
	ca.ChainDER = [][]byte{chainDER}
	ca.AuthzPendingPolls = 1
	ca.CertPendingPolls = 1

	domain, webroot := newTestOrigin(t)

	sess, err := NewSession(testSessionConfig(t, ca))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.HTTP = &HTTPClient{Insecure: true}

	if err := sess.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	provider := challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: webroot, AppendWellKnownPath: true})

	bundle, err := sess.IssueCertificate(context.Background(), []string{domain}, provider)
	if err != nil {
		t.Fatalf("IssueCertificate: %v", err)
	}

	if len(bundle.LeafPEM) == 0 || len(bundle.ChainPEM) == 0 || len(bundle.KeyPEM) == 0 {
		t.Fatalf("incomplete bundle: %+v", bundle)
	}

	blk, _ := pem.Decode(bundle.LeafPEM)
	if blk == nil || blk.Type != "CERTIFICATE" {
		t.Fatalf("leaf PEM did not decode to a certificate block")
	}

	// Cleanup must have removed the token file once authorization finished.
	entries, _ := os.ReadDir(webroot + "/.well-known/acme-challenge")
	if len(entries) != 0 {
		t.Fatalf("expected challenge cleanup, found %d leftover files", len(entries))
	}
}

// multiProvider dispatches to a different challenge.Provider per domain,
// for tests that need several independent origins behind one provider
// value (each httptest server is its own origin, not a path under a shared
// web root, so a single HTTP01's AppendDomain can't model this).
type multiProvider struct {
	byDomain map[string]challenge.Provider
}

func (m multiProvider) Type() string { return "http-01" }

func (m multiProvider) ValidateDomainControl(ctx context.Context, domain string) error {
	return m.byDomain[domain].ValidateDomainControl(ctx, domain)
}

func (m multiProvider) Prepare(ctx context.Context, domain, token, keyAuth string) error {
	return m.byDomain[domain].Prepare(ctx, domain, token, keyAuth)
}

func (m multiProvider) SelfCheck(ctx context.Context, domain, token, keyAuth string) error {
	return m.byDomain[domain].SelfCheck(ctx, domain, token, keyAuth)
}

func (m multiProvider) Cleanup(ctx context.Context, domain, token string) error {
	return m.byDomain[domain].Cleanup(ctx, domain, token)
}

// TestValidateDomainControlFailsBeforeAnyNewAuthz exercises the S2 scenario
// verbatim: two domains, one whose local_check.txt is reachable and one
// whose isn't. The failure must abort the whole batch before new-authz is
// ever called for either domain, and must leave no artifacts behind.
func TestValidateDomainControlFailsBeforeAnyNewAuthz(t *testing.T) {
	ca := acmetest.NewFakeCA()
	defer ca.Close()

	var validateCalled bool
	ca.Validate = func(domain, token, keyAuth string) error {
		validateCalled = true
		return nil
	}

	goodDomain, goodWebroot := newTestOrigin(t)

	// The second domain resolves to a server that 404s everything,
	// simulating a domain whose web server isn't serving anything at the
	// well-known path at all.
	broken := httptest.NewServer(http.NotFoundHandler())
	defer broken.Close()
	brokenDomain := strings.TrimPrefix(broken.URL, "http://")

	provider := multiProvider{byDomain: map[string]challenge.Provider{
		goodDomain:   challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: goodWebroot, AppendWellKnownPath: true}),
		brokenDomain: challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: t.TempDir(), AppendWellKnownPath: true}),
	}}

	sess, err := NewSession(testSessionConfig(t, ca))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.HTTP = &HTTPClient{Insecure: true}

	if err := sess.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err = sess.IssueCertificate(context.Background(), []string{goodDomain, brokenDomain}, provider)
	if err == nil {
		t.Fatal("expected an error from a failing local check")
	}

	cerr, ok := err.(*ChallengeError)
	if !ok {
		t.Fatalf("expected *ChallengeError, got %T: %v", err, err)
	}

	if cerr.Domain != brokenDomain {
		t.Fatalf("expected the error to name %s, got %s", brokenDomain, cerr.Domain)
	}

	if ca.NewAuthzCalls != 0 {
		t.Fatalf("expected no new-authz calls, got %d", ca.NewAuthzCalls)
	}

	if validateCalled {
		t.Fatal("CA should never have been asked to validate a challenge")
	}

	entries, _ := os.ReadDir(goodWebroot + "/.well-known/acme-challenge")
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files in the domain that passed its own check, found %d", len(entries))
	}
}

// TestAuthorizeFailsOnSelfCheckMismatch exercises Authorize's own ordering
// directly: a provider whose per-challenge self-check cannot succeed must
// fail locally without ever telling the fake CA to validate, and must still
// clean up. ValidateDomainControl is made to pass (it is not the mechanism
// under test here) by delegating it to a provider pointed at the origin's
// real web root, while Prepare/SelfCheck/Cleanup write the actual challenge
// token somewhere the origin never serves from.
func TestAuthorizeFailsOnSelfCheckMismatch(t *testing.T) {
	ca := acmetest.NewFakeCA()
	defer ca.Close()

	var validateCalled bool
	ca.Validate = func(domain, token, keyAuth string) error {
		validateCalled = true
		return nil
	}

	domain, webroot := newTestOrigin(t)
	reachable := challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: webroot, AppendWellKnownPath: true})
	unreachableRoot := t.TempDir()
	unreachable := challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: unreachableRoot, AppendWellKnownPath: true})
	provider := splitProvider{validate: reachable, challenge: unreachable}

	sess, err := NewSession(testSessionConfig(t, ca))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.HTTP = &HTTPClient{Insecure: true}

	if err := sess.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := sess.RegisterAccount(context.Background()); err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}

	err = sess.Authorize(context.Background(), domain, provider)
	if err == nil {
		t.Fatal("expected an error from a failing self-check")
	}

	if _, ok := err.(*ChallengeError); !ok {
		t.Fatalf("expected *ChallengeError, got %T: %v", err, err)
	}

	if validateCalled {
		t.Fatal("CA should never have been asked to validate after a local self-check failure")
	}

	entries, _ := os.ReadDir(unreachableRoot + "/.well-known/acme-challenge")
	if len(entries) != 0 {
		t.Fatalf("expected challenge cleanup after a failed self-check, found %d leftover files", len(entries))
	}
}

// splitProvider routes ValidateDomainControl to one provider and the rest
// of the lifecycle to another, letting a test hold the domain-control check
// and the per-challenge self-check independently constant.
type splitProvider struct {
	validate  challenge.Provider
	challenge challenge.Provider
}

func (p splitProvider) Type() string { return p.challenge.Type() }

func (p splitProvider) ValidateDomainControl(ctx context.Context, domain string) error {
	return p.validate.ValidateDomainControl(ctx, domain)
}

func (p splitProvider) Prepare(ctx context.Context, domain, token, keyAuth string) error {
	return p.challenge.Prepare(ctx, domain, token, keyAuth)
}

func (p splitProvider) SelfCheck(ctx context.Context, domain, token, keyAuth string) error {
	return p.challenge.SelfCheck(ctx, domain, token, keyAuth)
}

func (p splitProvider) Cleanup(ctx context.Context, domain, token string) error {
	return p.challenge.Cleanup(ctx, domain, token)
}

// TestAuthorizeFailsOnInvalidStatus exercises the S3 scenario: the CA's
// validation itself fails, driving the authorization to "invalid".
func TestAuthorizeFailsOnInvalidStatus(t *testing.T) {
	ca := acmetest.NewFakeCA()
	defer ca.Close()

	ca.Validate = func(domain, token, keyAuth string) error {
		return errAlwaysInvalid
	}

	domain, webroot := newTestOrigin(t)
	provider := challenge.NewHTTP01(challenge.HTTP01Config{WebRootDir: webroot, AppendWellKnownPath: true})

	sess, err := NewSession(testSessionConfig(t, ca))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess.HTTP = &HTTPClient{Insecure: true}

	if err := sess.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := sess.RegisterAccount(context.Background()); err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}

	err = sess.Authorize(context.Background(), domain, provider)

	var aerr *AuthorizationError
	if ae, ok := err.(*AuthorizationError); ok {
		aerr = ae
	} else {
		t.Fatalf("expected *AuthorizationError, got %T: %v", err, err)
	}

	if aerr.Status != StatusInvalid {
		t.Fatalf("expected invalid status, got %v", aerr.Status)
	}
}

// TestNewSessionRejectsDefaultContact exercises S6: a config carrying
// an unedited placeholder contact must fail before any network call, as a
// ConfigurationError.
func TestNewSessionRejectsDefaultContact(t *testing.T) {
	cfg := SessionConfig{
		CA:                    "https://example.invalid/directory",
		CertDistinguishedName: pkix.Name{Country: []string{"GB"}},
		CertAccountContact:    []string{"mailto:cert-admin@example.com"},
		CertAccountDir:        t.TempDir(),
	}

	_, err := NewSession(cfg)
	if err == nil {
		t.Fatal("expected an error")
	}

	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("expected *ConfigurationError, got %T: %v", err, err)
	}
}

var errAlwaysInvalid = &ChallengeError{Domain: "test", Reason: "scripted failure"}

// testCertChain builds a minimal self-signed leaf and "issuer" pair purely
// to exercise PEM armoring and chain handling; these are not meant to form
// a valid trust chain.
func testCertChain(t *testing.T) (leaf, chain []byte) {
	t.Helper()

	leafKey := testKey(t)
	issuerKey := testKey(t)

	issuerTmpl := &x509.Certificate{
		SerialNumber: bigOne,
		Subject:      pkix.Name{CommonName: "test issuer"},
		IsCA:         true,
	}
	issuerDER, err := x509.CreateCertificate(nil, issuerTmpl, issuerTmpl, &issuerKey.PublicKey, issuerKey)
	if err != nil {
		t.Fatalf("create issuer cert: %v", err)
	}

	leafTmpl := &x509.Certificate{
		SerialNumber: bigOne,
		Subject:      pkix.Name{CommonName: "test leaf"},
	}
	issuerCert, err := x509.ParseCertificate(issuerDER)
	if err != nil {
		t.Fatalf("parse issuer cert: %v", err)
	}

	leafDER, err := x509.CreateCertificate(nil, leafTmpl, issuerCert, &leafKey.PublicKey, issuerKey)
	if err != nil {
		t.Fatalf("create leaf cert: %v", err)
	}

	return leafDER, issuerDER
}
