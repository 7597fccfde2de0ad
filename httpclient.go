package acmeclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	gnet "github.com/hlandau/goutils/net"
	"golang.org/x/net/context/ctxhttp"
)

var httpLog, HTTPLog = newLogSite("acme.http")

// maxBodySize bounds how much of a response body we will buffer in memory,
// following the teacher's use of denet.LimitReader throughout api.go /
// api-res.go / ocsp.go.
const maxBodySize = 1 * 1024 * 1024

// UserAgent identifies this client to the CA. Callers linking this package
// into a larger program may override it at process scope.
var UserAgent = "acmeclient/1 Go-http-client/1.1"

// Response is the HTTP Client's return value (spec.md §4.1): status, the raw
// header block (so callers can extract Location/Replay-Nonce/Link without
// this package needing to know about every header a caller might want), and
// the raw body bytes.
type Response struct {
	StatusCode int
	Header     http.Header
	RawHeader  string
	Body       []byte
}

// HTTPClient issues GET/POST requests against the CA and the HTTP-01
// challenge surface. It verifies server TLS, sets Accept/Content-Type to
// application/json by default, does not follow redirects on bodies the
// caller must parse itself, and returns non-2xx responses without raising
// (spec.md §4.1) — callers decide what counts as an error for their request.
type HTTPClient struct {
	// Client is the underlying *http.Client. If nil, a client with TLS
	// verification enabled and no redirect following is used.
	Client *http.Client

	// Insecure disables TLS certificate verification. Only ever set this for
	// a test CA; see spec.md §4.1 "verifies server TLS".
	Insecure bool
}

func (c *HTTPClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Get issues a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, "GET", url, nil, "")
}

// Post issues a POST request with the given body and content type.
func (c *HTTPClient) Post(ctx context.Context, url string, body []byte, contentType string) (*Response, error) {
	return c.do(ctx, "POST", url, body, contentType)
}

// Head issues a HEAD request, used by the Nonce Manager to refresh a nonce
// without fetching a body.
func (c *HTTPClient) Head(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, "HEAD", url, nil, "")
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte, contentType string) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if method == "POST" {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s %s/%s", UserAgent, runtime.GOOS, runtime.GOARCH))

	httpLog.Debugf("%s %s", method, url)
	res, err := ctxhttp.Do(ctx, c.client(), req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer res.Body.Close()

	b, err := io.ReadAll(gnet.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	httpLog.Debugf("%s %s -> %d", method, url, res.StatusCode)

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		RawHeader:  rawHeaderBlock(res),
		Body:       b,
	}, nil
}

// rawHeaderBlock renders the response's status line and headers as a single
// text block, the form spec.md §4.1 requires so that callers who want to
// hand-parse a header (as the original PHP client did with curl) still can.
func rawHeaderBlock(res *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\r\n", res.Proto, res.Status)
	res.Header.Write(&b)
	return b.String()
}
