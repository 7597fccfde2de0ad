package acmeclient

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"time"

	gnet "github.com/hlandau/goutils/net"
	jose "gopkg.in/square/go-jose.v2"
)

var reqLog, ReqLog = newLogSite("acme.request")

// signedResult is the outcome of a signed request: the response's status
// code, headers and raw body, left undecoded for the caller.
type signedResult struct {
	StatusCode int
	Header     http.Header
	RawHeader  string
	Body       []byte
}

// requestEngine implements spec.md §4.4, the Signed Request Engine: build a
// JWS, POST it, capture the response, and keep the Nonce Manager fed from
// whatever Replay-Nonce the response carries.
//
// Grounded on the teacher's doReqOneTry/doReqAccept (api.go) for the overall
// shape, and on the legacy-dialect sibling
// (other_examples: 40a-acme acmeapi/api.go) for the "resource" field
// envelope and bad-nonce backoff retry behavior adopted in SPEC_FULL.md §6.
type requestEngine struct {
	http  *HTTPClient
	nonce *NonceStore
}

func newRequestEngine(http *HTTPClient, nonce *NonceStore) *requestEngine {
	return &requestEngine{http: http, nonce: nonce}
}

// signedRequest implements the six steps of spec.md §4.4.
func (re *requestEngine) signedRequest(ctx context.Context, uri string, key *rsa.PrivateKey, payload interface{}) (*signedResult, error) {
	backoff := gnet.Backoff{
		MaxTries:     5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Jitter:       0.1,
	}

	for {
		res, err := re.signedRequestOnce(ctx, uri, key, payload)
		if err == nil {
			return res, nil
		}

		if he, ok := err.(*HTTPError); ok && he.Problem != nil && he.Problem.Type == "urn:ietf:params:acme:error:badNonce" {
			if backoff.Sleep() {
				reqLog.Debugf("retrying %s after bad nonce", uri)
				continue
			}
		}

		return nil, err
	}
}

func (re *requestEngine) signedRequestOnce(ctx context.Context, uri string, key *rsa.PrivateKey, payload interface{}) (*signedResult, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, &CryptoError{Op: "marshal payload", Err: err}
	}

	// 1-4: build the signer (header = {alg, jwk}; NonceSource supplies the
	// "nonce" claim merged into the protected header, i.e. protected = header
	// ∪ {nonce}), base64url the segments, and sign protected64 + "." +
	// payload64 with RS256 — all performed internally by jose.Signer.Sign.
	signingKey := jose.SigningKey{Algorithm: jose.RS256, Key: key}
	opts := &jose.SignerOptions{
		NonceSource: &nonceSourceAdapter{store: re.nonce, ctx: ctx},
		EmbedJWK:    true,
	}

	signer, err := jose.NewSigner(signingKey, opts)
	if err != nil {
		return nil, &CryptoError{Op: "create signer", Err: err}
	}

	sig, err := signer.Sign(payloadJSON)
	if err != nil {
		// A NonceError raised by the adapter propagates up through Sign; keep
		// it distinguishable rather than re-wrapping as a generic CryptoError.
		if _, ok := err.(*NonceError); ok {
			return nil, err
		}

		return nil, &CryptoError{Op: "sign request", Err: err}
	}

	body := []byte(sig.FullSerialize())

	// 5: POST to uri.
	res, err := re.http.Post(ctx, uri, body, "application/jose+json")
	if err != nil {
		return nil, err
	}

	// 6: capture the response and replenish the nonce for the *next* call.
	if n := res.Header.Get("Replay-Nonce"); n != "" {
		re.nonce.Set(n)
	}

	if res.StatusCode >= 400 {
		return nil, newHTTPError(res)
	}

	return &signedResult{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		RawHeader:  res.RawHeader,
		Body:       res.Body,
	}, nil
}
