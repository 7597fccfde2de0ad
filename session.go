package acmeclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/peterhellberg/link"

	"github.com/hlandau/acmeclient/acmeendpoints"
	"github.com/hlandau/acmeclient/acmeutils"
	"github.com/hlandau/acmeclient/challenge"
)

var sessLog, SessLog = newLogSite("acme.session")

// defaultPollInterval is the pacing used between polls of an authorization
// or certificate resource when the CA's response carries no Retry-After
// header, ported from the teacher's defaultPollTime but shortened: spec.md
// §4.6 describes poll pacing as "on the order of a millisecond" against a
// scripted test CA, which only makes sense against a local fake server. A
// real CA's Retry-After always wins (see pollDelay below); this is only the
// floor used against a fake CA that doesn't set one.
const defaultPollInterval = 1500 * time.Microsecond

// maxPollAttempts bounds how many times Authorize/Finalize will poll before
// giving up, independent of wall-clock time (spec.md §4.6 "polling is
// bounded, not indefinite").
const maxPollAttempts = 60

// PollTimeout is the wall-clock ceiling polling may run for, regardless of
// maxPollAttempts. The zero value means no wall-clock ceiling is enforced
// and only maxPollAttempts bounds polling.
var PollTimeout = 90 * time.Second

// Session drives one operator's ACME account through registration,
// per-domain authorization, and certificate finalization against a single
// CA (spec.md §4.6). Besides the directory and account set up by Init, the
// only state that changes across calls is the current Replay-Nonce; a
// Session is not reusable for a second, independent issuance (see Init).
type Session struct {
	Config SessionConfig

	// HTTP is exported so tests can point it at an httptest server with
	// Insecure set; production callers normally leave it nil and let Init
	// build a default client.
	HTTP *HTTPClient

	nonce   *NonceStore
	req     *requestEngine
	dir     *directoryInfo
	account *Account

	initOnce sync.Once
	initErr  error
	done     bool
	mu       sync.Mutex
}

// NewSession validates cfg and returns an unstarted Session. Call Init
// before any other method.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Session{Config: cfg}, nil
}

// Init fetches the CA's directory and prepares the account key, exactly
// once. Calling Init a second time on the same Session returns a StateError
// (spec.md §5 "Initialization guard"): a Session is single-use per the
// concurrency model's "sequential, not reentrant" invariant.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return &StateError{Reason: "session already initialized"}
	}
	s.done = true
	s.mu.Unlock()

	s.initOnce.Do(func() {
		s.initErr = s.init(ctx)
	})

	return s.initErr
}

func (s *Session) init(ctx context.Context) error {
	if s.HTTP == nil {
		s.HTTP = &HTTPClient{}
	}

	s.nonce = NewNonceStore(func(ctx context.Context) error {
		res, err := s.HTTP.Head(ctx, s.Config.directoryURL())
		if err != nil {
			return err
		}

		if n := res.Header.Get("Replay-Nonce"); n != "" {
			s.nonce.Set(n)
			return nil
		}

		return fmt.Errorf("directory HEAD carried no Replay-Nonce")
	})
	s.req = newRequestEngine(s.HTTP, s.nonce)

	if ep, err := acmeendpoints.ByDirectoryURL(s.Config.directoryURL()); err == nil {
		sessLog.Debugf("using known endpoint %s (%s)", ep.Code, ep.Title)
	}

	res, err := s.HTTP.Get(ctx, s.Config.directoryURL())
	if err != nil {
		return &TransportError{URL: s.Config.directoryURL(), Err: err}
	}

	if res.StatusCode != http.StatusOK {
		return &TransportError{URL: s.Config.directoryURL(), Err: fmt.Errorf("unexpected status %d fetching directory", res.StatusCode)}
	}

	if err := checkJSONContentType(res.Header); err != nil {
		return &TransportError{URL: s.Config.directoryURL(), Err: err}
	}

	var dir directoryInfo
	if err := json.Unmarshal(res.Body, &dir); err != nil {
		return &TransportError{URL: s.Config.directoryURL(), Err: fmt.Errorf("decode directory: %w", err)}
	}

	if err := dir.validate(); err != nil {
		return &TransportError{URL: s.Config.directoryURL(), Err: err}
	}

	s.dir = &dir

	if n := res.Header.Get("Replay-Nonce"); n != "" {
		s.nonce.Set(n)
	}

	if err := os.MkdirAll(s.Config.CertAccountDir, 0700); err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("certAccountDir %s cannot be created: %v", s.Config.CertAccountDir, err)}
	}

	key, _, err := acmeutils.LoadOrGenerateRSAKey(s.Config.CertAccountDir, s.Config.CertRSAKeyBits)
	if err != nil {
		return &CryptoError{Op: "load or generate account key", Err: err}
	}

	s.account = &Account{PrivateKey: key, ContactURIs: s.Config.CertAccountContact}
	return nil
}

// regInfo is the "new-reg"/"reg" request and response envelope (spec.md
// §4.2), grounded on the legacy-dialect sibling
// (other_examples: dc4027e3 40a-acme acmeapi/api.go regInfo).
type regInfo struct {
	Resource  string         `json:"resource"`
	Contact   []string       `json:"contact,omitempty"`
	Agreement string         `json:"agreement,omitempty"`
	Key       *acmeutils.JWK `json:"key,omitempty"`
}

// RegisterAccount registers the session's account key with the CA, or
// discovers the existing registration URL if the key is already known
// (spec.md §4.6 "register"). ContactURIs must already have passed
// SessionConfig.validate's default-contact rejection by the time this runs.
func (s *Session) RegisterAccount(ctx context.Context) error {
	if s.dir == nil {
		return &StateError{Reason: "session not initialized"}
	}

	body := regInfo{Resource: "new-reg", Contact: s.account.ContactURIs, Agreement: s.Config.Agreement}

	res, err := s.req.signedRequest(ctx, s.dir.NewReg, s.account.PrivateKey, body)

	var loc string
	switch {
	case err == nil:
		loc = res.Header.Get("Location")
	default:
		he, ok := err.(*HTTPError)
		if !ok || he.StatusCode != http.StatusConflict {
			return err
		}

		// Already registered; the Location header still names the account.
		loc = he.Header.Get("Location")
	}

	if !ValidURL(loc) {
		return &TransportError{URL: s.dir.NewReg, Err: fmt.Errorf("registration response carried no valid Location (got %q)", loc)}
	}
	s.account.URL = loc

	return s.agreeToTerms(ctx, res)
}

// agreeToTerms inspects the registration response's Link header for a
// "terms-of-service" relation and, if an Agreement is configured and names a
// different URI, logs the mismatch and POSTs a registration update carrying
// the configured Agreement. When the two match, or either is absent, it does
// nothing (spec.md §4.6, grounded on UpsertRegistration's AgreementURI
// handling).
func (s *Session) agreeToTerms(ctx context.Context, res *signedResult) error {
	if res == nil {
		return nil
	}

	tos, ok := link.ParseHeader(res.Header)["terms-of-service"]
	if !ok || s.Config.Agreement == "" || tos.URI == s.Config.Agreement {
		return nil
	}

	if tos.URI != s.Config.Agreement {
		sessLog.Noticef("CA's terms-of-service URI (%s) does not match configured agreement (%s)", tos.URI, s.Config.Agreement)
	}

	body := regInfo{Resource: "reg", Contact: s.account.ContactURIs, Agreement: s.Config.Agreement}
	_, err := s.req.signedRequest(ctx, s.account.URL, s.account.PrivateKey, body)
	return err
}

// authzRequest is the "new-authz" request envelope (spec.md §4.6).
type authzRequest struct {
	Resource   string     `json:"resource"`
	Identifier Identifier `json:"identifier"`
}

// challengeRequest is the per-challenge response POST: the CA needs only
// the resource marker and the key authorization the challenge type expects
// (spec.md §4.5).
type challengeRequest struct {
	Resource         string `json:"resource"`
	KeyAuthorization string `json:"keyAuthorization"`
}

// Authorize drives one domain through the full authorization lifecycle:
// create the authorization, pick a challenge the given provider answers,
// self-check locally, tell the CA to look, poll to a final state, and clean
// up — success or failure (spec.md §4.6, S2, S3).
func (s *Session) Authorize(ctx context.Context, domain string, provider challenge.Provider) error {
	if s.dir == nil {
		return &StateError{Reason: "session not initialized"}
	}

	if provider == nil {
		provider = s.defaultProvider()
	}

	// spec.md §4.6 step 1: a local reachability check, not the self-check
	// against the real challenge token below, must pass before the CA is
	// ever told about this domain (S2: no new-authz call on failure).
	if err := provider.ValidateDomainControl(ctx, domain); err != nil {
		return &ChallengeError{Domain: domain, Reason: "validate domain control", Err: err}
	}

	body := authzRequest{Resource: "new-authz", Identifier: Identifier{Type: IdentifierTypeDNS, Value: domain}}

	res, err := s.req.signedRequest(ctx, s.dir.NewAuthz, s.account.PrivateKey, body)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusCreated {
		return &AuthorizationError{Domain: domain, Status: StatusInvalid}
	}

	loc := res.Header.Get("Location")
	if !ValidURL(loc) {
		return &AuthorizationError{Domain: domain, Status: StatusInvalid}
	}

	if err := checkJSONContentType(res.Header); err != nil {
		return &AuthorizationError{Domain: domain, Status: StatusInvalid}
	}

	var az Authorization
	if err := json.Unmarshal(res.Body, &az); err != nil {
		return &AuthorizationError{Domain: domain, Status: StatusInvalid}
	}
	az.URL = loc

	if err := az.validate(); err != nil {
		return &ChallengeError{Domain: domain, Reason: err.Error()}
	}

	chal, err := selectChallenge(az.Challenges, provider.Type())
	if err != nil {
		return &ChallengeError{Domain: domain, Reason: err.Error(), Err: err}
	}

	jwk := acmeutils.RSAJWK(s.account.PrivateKey)
	keyAuth := acmeutils.KeyAuthorization(jwk, chal.Token)

	if err := provider.Prepare(ctx, domain, chal.Token, keyAuth); err != nil {
		return &ChallengeError{Domain: domain, Reason: "prepare", Err: err}
	}
	defer func() {
		if err := provider.Cleanup(ctx, domain, chal.Token); err != nil {
			sessLog.Noticef("cleanup failed for %s: %v", domain, err)
		}
	}()

	// S2: self-check locally before the CA is ever told to look.
	if err := provider.SelfCheck(ctx, domain, chal.Token, keyAuth); err != nil {
		return &ChallengeError{Domain: domain, Reason: "self-check", Err: err}
	}

	cbody := challengeRequest{Resource: "challenge", KeyAuthorization: keyAuth}
	if _, err := s.req.signedRequest(ctx, chal.URL, s.account.PrivateKey, cbody); err != nil {
		return &ChallengeError{Domain: domain, Reason: "respond", Err: err}
	}

	final, err := s.pollAuthorization(ctx, &az)
	if err != nil {
		return err
	}

	if final.Status != StatusValid {
		return &AuthorizationError{Domain: domain, Status: final.Status, Body: final.Error}
	}

	return nil
}

// defaultProvider builds an http-01 provider from the config's WebRootDir
// fields, for callers who serve the challenge from a single web root and
// have no need to implement challenge.Provider themselves (spec.md §4.0.2's
// WebRootDir/AppendDomain/AppendWellKnownPath/WebServerFilePerm fields exist
// for exactly this).
func (s *Session) defaultProvider() challenge.Provider {
	return challenge.NewHTTP01(challenge.HTTP01Config{
		WebRootDir:          s.Config.WebRootDir,
		AppendDomain:        s.Config.AppendDomain,
		AppendWellKnownPath: s.Config.AppendWellKnownPath,
		FilePerm:            s.Config.WebServerFilePerm,
	})
}

func selectChallenge(challenges []Challenge, typ string) (*Challenge, error) {
	for i := range challenges {
		if challenges[i].Type == typ {
			return &challenges[i], nil
		}
	}

	return nil, fmt.Errorf("authorization offered no %s challenge", typ)
}

// pollAuthorization polls an authorization's URL until it reaches a final
// status, honoring Retry-After when the server sends one and falling back
// to defaultPollInterval otherwise (spec.md §4.6).
func (s *Session) pollAuthorization(ctx context.Context, az *Authorization) (*Authorization, error) {
	deadline := pollDeadline()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if az.Status.isFinal() {
			return az, nil
		}

		if err := waitForPoll(ctx, deadline); err != nil {
			return nil, &AuthorizationError{Domain: az.Identifier.Value, Status: az.Status}
		}

		res, err := s.HTTP.Get(ctx, az.URL)
		if err != nil {
			return nil, &TransportError{URL: az.URL, Err: err}
		}

		if res.StatusCode >= 400 {
			return nil, &AuthorizationError{Domain: az.Identifier.Value, Status: StatusInvalid, Body: problemFrom(res)}
		}

		var next Authorization
		if err := json.Unmarshal(res.Body, &next); err != nil {
			return nil, &AuthorizationError{Domain: az.Identifier.Value, Status: StatusInvalid}
		}
		next.URL = az.URL
		az = &next

		pollDelay(res.Header)
	}

	return nil, &AuthorizationError{Domain: az.Identifier.Value, Status: az.Status}
}

// certRequest is the "new-cert" request envelope (spec.md §4.6).
type certRequest struct {
	Resource string `json:"resource"`
	CSR      string `json:"csr"`
}

// Finalize builds a fresh certificate key and CSR for domains, submits it,
// polls until the certificate is issued, retrieves the issuer chain via the
// response's Link "up" relations, and PEM-armors everything into a
// CertificateBundle (spec.md §4.6 "finalize", §3 CertificateBundle).
func (s *Session) Finalize(ctx context.Context, domains []string) (*CertificateBundle, error) {
	if s.dir == nil {
		return nil, &StateError{Reason: "session not initialized"}
	}

	key, err := acmeutils.GenerateRSAKey(s.Config.CertRSAKeyBits)
	if err != nil {
		return nil, &CryptoError{Op: "generate certificate key", Err: err}
	}

	der, err := acmeutils.BuildCSR(domains, s.Config.CertDistinguishedName, key)
	if err != nil {
		return nil, &CryptoError{Op: "build csr", Err: err}
	}

	body := certRequest{Resource: "new-cert", CSR: base64.RawURLEncoding.EncodeToString(der)}

	res, err := s.req.signedRequest(ctx, s.dir.NewCert, s.account.PrivateKey, body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusAccepted {
		return nil, &CertificateError{Reason: fmt.Sprintf("unexpected status %d from new-cert", res.StatusCode)}
	}

	loc := res.Header.Get("Location")
	if !ValidURL(loc) {
		return nil, &CertificateError{Reason: "new-cert response carried no valid Location"}
	}

	cert := &Certificate{URL: loc}

	if ct := res.Header.Get("Content-Type"); ct == "application/pkix-cert" && len(res.Body) > 0 {
		cert.LeafDER = res.Body
		if err := s.loadChain(ctx, cert, res.Header); err != nil {
			return nil, err
		}
	} else {
		if err := s.pollCertificate(ctx, cert); err != nil {
			return nil, err
		}
	}

	return &CertificateBundle{
		LeafPEM:     acmeutils.EncodeCertificatePEM(cert.LeafDER),
		ChainPEM:    acmeutils.EncodeCertificateChainPEM(cert.ChainDER),
		KeyPEM:      acmeutils.EncodeRSAPrivateKeyPEM(key),
		DHParamsPEM: s.loadDHParams(),
	}, nil
}

func (s *Session) pollCertificate(ctx context.Context, cert *Certificate) error {
	deadline := pollDeadline()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		res, err := s.HTTP.Get(ctx, cert.URL)
		if err != nil {
			return &TransportError{URL: cert.URL, Err: err}
		}

		if res.StatusCode == http.StatusOK {
			ct := res.Header.Get("Content-Type")
			if ct != "application/pkix-cert" {
				return &CertificateError{Reason: fmt.Sprintf("certificate returned with unexpected content type %q", ct)}
			}

			cert.LeafDER = res.Body
			return s.loadChain(ctx, cert, res.Header)
		}

		if res.StatusCode != http.StatusAccepted {
			return &CertificateError{Reason: fmt.Sprintf("unexpected status %d polling certificate", res.StatusCode), Body: problemFrom(res)}
		}

		if err := waitForPoll(ctx, deadline); err != nil {
			return &CertificateError{Reason: "polling exhausted"}
		}

		pollDelay(res.Header)
	}

	return &CertificateError{Reason: "polling exhausted"}
}

// loadChain follows successive "Link: ...; rel=\"up\"" headers to retrieve
// the issuer chain, grounded on the legacy-dialect sibling's
// loadExtraCertificates.
func (s *Session) loadChain(ctx context.Context, cert *Certificate, header http.Header) error {
	cert.ChainDER = nil

	for {
		up, ok := link.ParseHeader(header)["up"]
		if !ok {
			return nil
		}

		res, err := s.HTTP.Get(ctx, up.URI)
		if err != nil {
			return &TransportError{URL: up.URI, Err: err}
		}

		if ct := res.Header.Get("Content-Type"); ct != "application/pkix-cert" {
			return &CertificateError{Reason: fmt.Sprintf("chain certificate at %s had unexpected content type %q", up.URI, ct)}
		}

		cert.ChainDER = append(cert.ChainDER, res.Body)
		header = res.Header
	}
}

func (s *Session) loadDHParams() []byte {
	if s.Config.DHParamFile == "" {
		return nil
	}

	b, err := (FileDHParamsLoader{Path: s.Config.DHParamFile}).Load()
	if err != nil {
		sessLog.Noticef("dh parameters not loaded: %v", err)
		return nil
	}

	return b
}

// checkJSONContentType parses the response's Content-Type and validates it
// names application/json, ported from the teacher's
// mime.ParseMediaType/validateContentType pairing (api.go's getDirectory and
// doReq).
func checkJSONContentType(header http.Header) error {
	mimeType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("parse content type: %w", err)
	}

	return validateContentType(mimeType, params, "application/json")
}

func problemFrom(res *Response) *Problem {
	var p Problem
	if json.Unmarshal(res.Body, &p) != nil {
		return nil
	}

	return &p
}

func pollDeadline() time.Time {
	if PollTimeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(PollTimeout)
}

func waitForPoll(ctx context.Context, deadline time.Time) error {
	if !deadline.IsZero() && time.Now().After(deadline) {
		return fmt.Errorf("poll deadline exceeded")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return nil
}

// pollDelay sleeps for the Retry-After duration the response carries, or
// defaultPollInterval if it carries none or an unparsable one.
func pollDelay(header http.Header) {
	d := defaultPollInterval

	if v := header.Get("Retry-After"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 31); err == nil {
			d = time.Duration(n) * time.Second
		} else if t, err := time.Parse(http.TimeFormat, v); err == nil {
			if until := time.Until(t); until > 0 {
				d = until
			}
		}
	}

	time.Sleep(d)
}

// IssueCertificate is the top-level convenience entry point: register the
// account if necessary, authorize every domain, and finalize a certificate
// covering all of them (spec.md §4.6 end-to-end flow, S1).
func (s *Session) IssueCertificate(ctx context.Context, domains []string, provider challenge.Provider) (*CertificateBundle, error) {
	if provider == nil {
		provider = s.defaultProvider()
	}

	if err := s.RegisterAccount(ctx); err != nil {
		return nil, err
	}

	// spec.md §4.6 step 1 and S2: every domain's local reachability check
	// runs before any of them gets a new-authz call, so one domain's
	// failure aborts the whole batch rather than the domains already
	// authorized.
	for _, domain := range domains {
		if err := provider.ValidateDomainControl(ctx, domain); err != nil {
			return nil, &ChallengeError{Domain: domain, Reason: "validate domain control", Err: err}
		}
	}

	for _, domain := range domains {
		if err := s.Authorize(ctx, domain, provider); err != nil {
			return nil, err
		}
	}

	return s.Finalize(ctx, domains)
}
