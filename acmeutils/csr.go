package acmeutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
)

// BuildCSR assembles a PKCS#10 certificate request for the given domains,
// per spec.md §4.2: commonName = domains[0], dn carries the rest of the
// Distinguished Name (countryName is mandatory — see spec.md §6), and every
// domain is listed as a DNS SAN entry in input order. key signs the request
// and should be freshly generated per spec.md §4.6 "Finalize" step 1.
//
// Returns the DER encoding of the request, suitable for direct submission
// (base64url-encoded) as the "csr" field of a new-cert request.
func BuildCSR(domains []string, dn pkix.Name, key *rsa.PrivateKey) ([]byte, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("at least one domain is required to build a CSR")
	}

	subject := dn
	subject.CommonName = domains[0]

	tmpl := &x509.CertificateRequest{
		Subject:            subject,
		DNSNames:           domains,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate request: %w", err)
	}

	return der, nil
}
