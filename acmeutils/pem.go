package acmeutils

import "encoding/pem"

// EncodeCertificatePEM armors a single DER certificate. This always produces
// base64 wrapped at 64 columns with a trailing newline, matching property 6
// of spec.md §8 — pem.Encode is used rather than hand-rolled line wrapping
// since it already implements exactly this format.
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	})
}

// EncodeCertificateChainPEM concatenates the PEM armor of each DER
// certificate in chain, in order, forming the "chain" field of a
// CertificateBundle (spec.md §3).
func EncodeCertificateChainPEM(chain [][]byte) []byte {
	var out []byte
	for _, der := range chain {
		out = append(out, EncodeCertificatePEM(der)...)
	}

	return out
}
