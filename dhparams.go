package acmeclient

import (
	"fmt"
	"os"
)

// DHParamsLoader reads pre-generated Diffie-Hellman parameters from storage
// and returns their PEM encoding unmodified. Generating DH parameters is out
// of scope for this client (spec.md §1 Non-goals); this interface exists
// solely so Finalize can bundle a pre-existing dhparam.pem alongside an
// issued certificate the way the original tool did, without this package
// ever needing to know how those bytes were produced.
type DHParamsLoader interface {
	Load() ([]byte, error)
}

// FileDHParamsLoader loads DH parameters from a PEM file already present on
// disk, as named by SessionConfig.DHParamFile.
type FileDHParamsLoader struct {
	Path string
}

func (l FileDHParamsLoader) Load() ([]byte, error) {
	b, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("load dh parameters from %s: %w", l.Path, err)
	}

	return b, nil
}
