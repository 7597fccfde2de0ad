package acmeutils

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
)

func TestCanonicalJWKJSONKeyOrder(t *testing.T) {
	jwk := JWK{N: "abc", E: "AQAB"}
	s := CanonicalJWKJSON(jwk)

	if strings.Contains(s, " ") {
		t.Fatalf("canonical JWK JSON must have no whitespace: %q", s)
	}

	ie, ik, in := strings.Index(s, `"e"`), strings.Index(s, `"kty"`), strings.Index(s, `"n"`)
	if !(ie < ik && ik < in) {
		t.Fatalf("canonical JWK JSON keys out of order: %q", s)
	}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("canonical JWK JSON is not valid JSON: %v", err)
	}
}

func TestRSAJWKEncoding(t *testing.T) {
	key, err := GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := RSAJWK(key)

	nBytes, err := Base64urlDecode(jwk.N)
	if err != nil {
		t.Fatalf("decode n: %v", err)
	}

	if new(big.Int).SetBytes(nBytes).Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("n does not round-trip to the original modulus")
	}

	eBytes, err := Base64urlDecode(jwk.E)
	if err != nil {
		t.Fatalf("decode e: %v", err)
	}

	if int(new(big.Int).SetBytes(eBytes).Int64()) != key.PublicKey.E {
		t.Fatalf("e does not round-trip to the original exponent")
	}
}

func TestKeyAuthorization(t *testing.T) {
	jwk := JWK{N: "n-value", E: "AQAB"}
	ka := KeyAuthorization(jwk, "token123")

	if !strings.HasPrefix(ka, "token123.") {
		t.Fatalf("key authorization must be prefixed with the token: %q", ka)
	}

	suffix := strings.TrimPrefix(ka, "token123.")
	if _, err := Base64urlDecode(suffix); err != nil {
		t.Fatalf("thumbprint suffix is not valid base64url: %v", err)
	}
}
