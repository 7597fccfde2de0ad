package acmeutils

import (
	"bytes"
	"testing"
)

func TestBase64urlRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("f"),
		[]byte("fo"),
		[]byte("foo"),
		[]byte("foob"),
		[]byte("fooba"),
		[]byte("foobar"),
		{0x00, 0xff, 0x10, 0x80},
	}

	for _, c := range cases {
		enc := Base64urlEncode(c)
		dec, err := Base64urlDecode(enc)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", enc, err)
		}

		if !bytes.Equal(dec, c) {
			t.Fatalf("round trip mismatch: %v != %v", dec, c)
		}

		if bytes.ContainsAny([]byte(enc), "+/=") {
			t.Fatalf("encoding %q contains non-url-safe characters", enc)
		}
	}
}
