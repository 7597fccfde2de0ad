package acmeendpoints

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/hlandau/xlog"
)

var log, Log = xlog.NewQuiet("acme.endpoints")

// ErrNotFound is returned when no matching endpoint can be found.
var ErrNotFound = errors.New("no corresponding endpoint found")

// ByDirectoryURL finds the endpoint with the given directory URL, following
// DeprecatedDirectoryURLRegexp for older URLs an endpoint has superseded.
func ByDirectoryURL(directoryURL string) (*Endpoint, error) {
	for _, e := range endpoints {
		if directoryURL == e.DirectoryURL {
			return e, nil
		}

		if e.deprecatedDirectoryURLRegexp != nil && e.deprecatedDirectoryURLRegexp.MatchString(directoryURL) {
			return e, nil
		}
	}

	return nil, ErrNotFound
}

// CreateByDirectoryURL returns the registered endpoint for directoryURL if
// one exists, otherwise synthesizes a minimal unregistered Endpoint for it
// (spec.md §6: an operator may point "ca"/"caTesting" at any directory URL,
// not only a built-in one).
func CreateByDirectoryURL(directoryURL string) (*Endpoint, error) {
	if e, err := ByDirectoryURL(directoryURL); err == nil {
		return e, nil
	}

	h := sha256.New()
	h.Write([]byte(directoryURL))
	code := fmt.Sprintf("Temp%08x", h.Sum(nil)[0:4])

	return &Endpoint{
		Title:        directoryURL,
		DirectoryURL: directoryURL,
		Code:         code,
	}, nil
}
