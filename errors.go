package acmeclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is returned when a CA response is well-formed but carries an
// unexpected failure status code. Ported from the teacher's
// util-errors.go; it retains the parsed RFC 7807 problem document so
// callers (and the error kinds below) can surface the CA's diagnostic body.
type HTTPError struct {
	StatusCode int
	Status     string

	// Header is the response's headers, kept on the error so a caller that
	// expects a particular non-2xx status (e.g. 409 Conflict on "new-reg")
	// can still recover a Location or Link header from it.
	Header http.Header

	// Problem is the parsed application/problem+json body, if the response
	// carried one and it parsed successfully.
	Problem *Problem

	// ProblemRaw is the raw problem document bytes, if any.
	ProblemRaw json.RawMessage
}

func (he *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %s\n%v", he.Status, he.Problem)
}

// Temporary reports whether the status code indicates a condition a caller
// might reasonably retry (used only for diagnostics; the engine itself never
// auto-retries on this basis — see spec.md §7).
func (he *HTTPError) Temporary() bool {
	switch he.StatusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// newHTTPError builds an HTTPError from an already-buffered Response,
// parsing its body as an RFC 7807 problem document when the Content-Type
// says to expect one.
func newHTTPError(res *Response) *HTTPError {
	he := &HTTPError{StatusCode: res.StatusCode, Status: fmt.Sprintf("%d", res.StatusCode), Header: res.Header}

	if strings.Contains(res.Header.Get("Content-Type"), "application/problem+json") {
		he.ProblemRaw = res.Body
		var p Problem
		if json.Unmarshal(res.Body, &p) == nil {
			he.Problem = &p
		}
	}

	return he
}

// ConfigurationError indicates a session was misconfigured in a way that is
// fatal before any network call is made: an unchanged default contact, or an
// account directory that does not exist and cannot be created (spec.md §7).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "acme configuration error: " + e.Reason }

// CryptoError wraps a key load/generate/export/sign or CSR generation
// failure (spec.md §7).
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("acme crypto error (%s): %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// TransportError wraps a network failure or an unexpected HTTP status code
// (spec.md §7).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("acme transport error requesting %s: %v", e.URL, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// NonceError indicates a fresh Replay-Nonce could not be obtained or parsed
// (spec.md §7).
type NonceError struct {
	Err error
}

func (e *NonceError) Error() string { return fmt.Sprintf("acme nonce error: %v", e.Err) }
func (e *NonceError) Unwrap() error { return e.Err }

// AuthorizationError indicates the CA returned a non-"valid" terminal status
// for a domain's authorization (spec.md §7).
type AuthorizationError struct {
	Domain string
	Status Status
	Body   *Problem
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("acme authorization error for %s: status=%s detail=%v", e.Domain, e.Status, e.Body)
}

// ChallengeError indicates a local self-check failed, a token was not served
// correctly, or cleanup failed (spec.md §7).
type ChallengeError struct {
	Domain string
	Reason string
	Err    error
}

func (e *ChallengeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acme challenge error for %s: %s: %v", e.Domain, e.Reason, e.Err)
	}

	return fmt.Sprintf("acme challenge error for %s: %s", e.Domain, e.Reason)
}
func (e *ChallengeError) Unwrap() error { return e.Err }

// CertificateError indicates finalization polling was exhausted or returned
// an unexpected status (spec.md §7).
type CertificateError struct {
	Reason string
	Body   *Problem
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("acme certificate error: %s (body=%v)", e.Reason, e.Body)
}

// StateError indicates an attempt to re-initialize a Session that has
// already been used (spec.md §5 "Initialization guard").
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "acme state error: " + e.Reason }

func validateContentType(mimeType string, params map[string]string, expected string) error {
	if mimeType != expected {
		return fmt.Errorf("unexpected content type: %q", mimeType)
	}

	if ch, ok := params["charset"]; ok && ch != "" && ch != "utf-8" && ch != "UTF-8" {
		return fmt.Errorf("content type charset is not UTF-8: %q", ch)
	}

	return nil
}
