package acmeclient

import (
	"crypto/x509/pkix"
	"testing"
)

func validConfig(t *testing.T) SessionConfig {
	t.Helper()

	return SessionConfig{
		CA:                    "https://example.invalid/directory",
		CertDistinguishedName: pkix.Name{Country: []string{"GB"}},
		CertAccountContact:    []string{"mailto:ops@example.net"},
		CertAccountDir:        t.TempDir(),
	}
}

func TestSessionConfigValidateAccepts(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected a valid config to pass, got %v", err)
	}

	if cfg.CertRSAKeyBits != 2048 {
		t.Fatalf("expected validate to default CertRSAKeyBits to 2048, got %d", cfg.CertRSAKeyBits)
	}
}

func TestSessionConfigValidateRejectsMissingCA(t *testing.T) {
	cfg := validConfig(t)
	cfg.CA = ""

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for a missing CA URL")
	}
}

func TestSessionConfigValidateRejectsMissingCountry(t *testing.T) {
	cfg := validConfig(t)
	cfg.CertDistinguishedName = pkix.Name{}

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for a missing countryName")
	}
}

func TestSessionConfigValidateRejectsWeakKeySize(t *testing.T) {
	cfg := validConfig(t)
	cfg.CertRSAKeyBits = 1024

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for an under-strength key size")
	}
}

func TestSessionConfigValidateRejectsDefaultContact(t *testing.T) {
	cfg := validConfig(t)
	cfg.CertAccountContact = []string{"mailto:cert-admin@example.com"}

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for an unedited default contact")
	}
}

func TestSessionConfigValidateRejectsDefaultTelContact(t *testing.T) {
	cfg := validConfig(t)
	cfg.CertAccountContact = []string{"tel:+12025551212"}

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for an unedited default contact")
	}
}

func TestSessionConfigValidateRejectsMissingAccountDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.CertAccountDir = ""

	if _, ok := configErr(cfg); !ok {
		t.Fatal("expected a ConfigurationError for a missing account directory")
	}
}

func configErr(cfg SessionConfig) (*ConfigurationError, bool) {
	err := cfg.validate()
	ce, ok := err.(*ConfigurationError)
	return ce, ok
}
