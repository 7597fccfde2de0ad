package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hlandau/xlog"
)

var log, Log = xlog.NewQuiet("acme.challenge.http01")

// WellKnownPath is the path component, relative to a domain's web root, that
// the ACME http-01 challenge type defines (spec.md §4.5).
const WellKnownPath = ".well-known/acme-challenge"

// HTTP01Config configures an HTTP01 provider. See spec.md §4.0.2 for the
// corresponding SessionConfig fields this is built from.
type HTTP01Config struct {
	// WebRootDir is the directory Prepare writes token files under, joined
	// with WellKnownPath when AppendWellKnownPath is set. If AppendDomain is
	// set, a per-domain subdirectory is appended, for operators serving
	// multiple vhosts from one root.
	WebRootDir string

	// AppendDomain appends the domain name as a path component between
	// WebRootDir and WellKnownPath.
	AppendDomain bool

	// AppendWellKnownPath joins WellKnownPath onto WebRootDir (and the
	// per-domain directory, if AppendDomain is set). Operators whose web
	// server document root is already configured as the well-known
	// directory itself leave this unset and point WebRootDir there
	// directly (spec.md §6 "appendWellKnownPath").
	AppendWellKnownPath bool

	// FilePerm is the file mode token files are written with. Defaults to
	// 0644, matching what a web server needs to be able to read back.
	FilePerm os.FileMode

	// Client performs the self-check GET. If nil, http.DefaultClient is
	// used. Tests point this at an httptest server's client.
	Client *http.Client
}

// HTTP01 implements Provider for the "http-01" challenge type: it places the
// key authorization at /.well-known/acme-challenge/<token> under a web root
// the operator's web server is already serving, and fetches it back over
// plain HTTP before ever telling the CA to look (spec.md §4.5, §4.6 S2).
type HTTP01 struct {
	cfg HTTP01Config
}

// NewHTTP01 builds an HTTP01 provider from cfg.
func NewHTTP01(cfg HTTP01Config) *HTTP01 {
	if cfg.FilePerm == 0 {
		cfg.FilePerm = 0644
	}

	return &HTTP01{cfg: cfg}
}

func (p *HTTP01) Type() string { return "http-01" }

// wellKnownDir is the directory challenge files (and the local-check marker)
// are written to and served from.
func (p *HTTP01) wellKnownDir(domain string) string {
	dir := p.cfg.WebRootDir
	if p.cfg.AppendDomain {
		dir = filepath.Join(dir, domain)
	}

	if p.cfg.AppendWellKnownPath {
		dir = filepath.Join(dir, filepath.FromSlash(WellKnownPath))
	}

	return dir
}

func (p *HTTP01) tokenPath(domain, token string) string {
	return filepath.Join(p.wellKnownDir(domain), token)
}

// localCheckFile and localCheckBody are the throwaway marker
// ValidateDomainControl writes, fetches, and removes again; they carry no
// relation to any ACME challenge token (spec.md §4.5).
const (
	localCheckFile = "local_check.txt"
	localCheckBody = "OK"
)

// ValidateDomainControl is a pure local-reachability pre-check, run for
// every domain before any new-authz request is made for any of them (spec.md
// §4.6 step 1, S2). It is independent of Prepare/SelfCheck, which exercise
// the real challenge token once an authorization already exists.
func (p *HTTP01) ValidateDomainControl(ctx context.Context, domain string) error {
	dir := p.wellKnownDir(domain)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("http-01: create challenge directory for %s: %w", domain, err)
	}

	path := filepath.Join(dir, localCheckFile)
	if err := os.WriteFile(path, []byte(localCheckBody), p.cfg.FilePerm); err != nil {
		return fmt.Errorf("http-01: write local check file for %s: %w", domain, err)
	}
	defer os.Remove(path)

	u := fmt.Sprintf("http://%s/%s/%s", domain, WellKnownPath, localCheckFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("http-01: build local check request for %s: %w", domain, err)
	}

	client := p.cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http-01: local check request for %s: %w", domain, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("http-01: local check for %s: unexpected status %d", domain, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8192))
	if err != nil {
		return fmt.Errorf("http-01: read local check response for %s: %w", domain, err)
	}

	if strings.TrimSpace(string(body)) != localCheckBody {
		return fmt.Errorf("http-01: local check for %s returned an unexpected body", domain)
	}

	log.Debugf("http-01: local check for %s succeeded", domain)
	return nil
}

// Prepare writes the key authorization to the well-known path. The
// containing directory is created if necessary (spec.md §4.5).
func (p *HTTP01) Prepare(ctx context.Context, domain, token, keyAuthorization string) error {
	path := p.tokenPath(domain, token)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("http-01: create challenge directory for %s: %w", domain, err)
	}

	if err := os.WriteFile(path, []byte(keyAuthorization), p.cfg.FilePerm); err != nil {
		return fmt.Errorf("http-01: write challenge file for %s: %w", domain, err)
	}

	log.Debugf("http-01: wrote %s", path)
	return nil
}

// SelfCheck fetches http://<domain>/.well-known/acme-challenge/<token> and
// confirms the body matches keyAuthorization exactly, so that a mismatch
// fails before the CA is told to validate the challenge.
func (p *HTTP01) SelfCheck(ctx context.Context, domain, token, keyAuthorization string) error {
	u := fmt.Sprintf("http://%s/%s/%s", domain, WellKnownPath, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("http-01: build self-check request for %s: %w", domain, err)
	}

	client := p.cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http-01: self-check request for %s: %w", domain, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("http-01: self-check for %s: unexpected status %d", domain, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8192))
	if err != nil {
		return fmt.Errorf("http-01: read self-check response for %s: %w", domain, err)
	}

	if strings.TrimSpace(string(body)) != keyAuthorization {
		return fmt.Errorf("http-01: self-check for %s returned an unexpected body", domain)
	}

	log.Debugf("http-01: self-check for %s succeeded", domain)
	return nil
}

// Cleanup removes the token file. A missing file is not an error: Cleanup
// must be idempotent and safe to call even if Prepare never ran (spec.md
// §4.6 "cleanup always runs").
func (p *HTTP01) Cleanup(ctx context.Context, domain, token string) error {
	path := p.tokenPath(domain, token)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("http-01: remove challenge file for %s: %w", domain, err)
	}

	return nil
}
