package acmeutils

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// JWK holds the public parameters of an RSA account key, encoded as required
// by spec.md §3: n and e are base64url of their big-endian unsigned-integer
// encoding, with no padding.
type JWK struct {
	N string `json:"n"`
	E string `json:"e"`
}

// Kty is always "RSA" for the key types this client supports (certKeyTypes is
// constrained to ["RSA"] — see SPEC_FULL.md §4.0.2).
const Kty = "RSA"

// RSAJWK extracts the JWK of an RSA public key.
func RSAJWK(key *rsa.PrivateKey) JWK {
	n := key.PublicKey.N.Bytes()
	e := bigEndianUint(key.PublicKey.E)

	return JWK{
		N: Base64urlEncode(n),
		E: Base64urlEncode(e),
	}
}

// bigEndianUint renders a small unsigned int (the RSA public exponent) as the
// minimal big-endian byte string, per the JWK encoding rules used for n/e.
func bigEndianUint(v int) []byte {
	if v == 0 {
		return []byte{0}
	}

	var b []byte
	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}

	return b
}

// CanonicalJWKJSON renders the canonical JSON form of an RSA JWK used for key
// authorization hashing: keys in exact lexicographic order (e, kty, n), no
// extraneous whitespace. This is built by hand, rather than via encoding/json
// on a map, because Go map iteration order is randomized and a generic
// marshaller gives no ordering guarantee — exactly the pitfall flagged in
// spec.md §9's "Deterministic JSON" design note.
func CanonicalJWKJSON(jwk JWK) string {
	return fmt.Sprintf(`{"e":"%s","kty":"%s","n":"%s"}`, jwk.E, Kty, jwk.N)
}

// Thumbprint computes base64url(SHA-256(canonical JWK)), the part of a key
// authorization that follows the token and the "." separator.
func Thumbprint(jwk JWK) string {
	sum := sha256.Sum256([]byte(CanonicalJWKJSON(jwk)))
	return Base64urlEncode(sum[:])
}

// KeyAuthorization computes the key authorization string for a challenge
// token, per spec.md §3: token + "." + base64url(SHA-256(canonicalJWK)).
func KeyAuthorization(jwk JWK, token string) string {
	return token + "." + Thumbprint(jwk)
}
