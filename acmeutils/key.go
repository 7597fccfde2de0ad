package acmeutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hlandau/xlog"
)

var log, Log = xlog.NewQuiet("acme.acmeutils")

// DefaultRSAKeyBits is used whenever a caller does not specify a bit size.
const DefaultRSAKeyBits = 2048

// PrivateKeyFilename is the name used for the persisted account key,
// matching the filesystem layout in spec.md §6.
const PrivateKeyFilename = "private.key"

// GenerateRSAKey generates a new RSA private key of the given size (falling
// back to DefaultRSAKeyBits if bits <= 0).
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits <= 0 {
		bits = DefaultRSAKeyBits
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	return key, nil
}

// EncodeRSAPrivateKeyPEM PEM-armors an RSA private key in PKCS#1 form.
func EncodeRSAPrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// DecodeRSAPrivateKeyPEM is the inverse of EncodeRSAPrivateKeyPEM.
func DecodeRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	blk, _ := pem.Decode(data)
	if blk == nil {
		return nil, fmt.Errorf("no PEM block found in key data")
	}

	return x509.ParsePKCS1PrivateKey(blk.Bytes)
}

// LoadOrGenerateRSAKey implements the Account lifecycle invariant of
// spec.md §3: the private key file is created once if absent, and reused
// thereafter. dir is created with owner-only permissions if it does not
// already exist.
func LoadOrGenerateRSAKey(dir string, bits int) (key *rsa.PrivateKey, created bool, err error) {
	keyPath := filepath.Join(dir, PrivateKeyFilename)

	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, err = DecodeRSAPrivateKeyPEM(data)
		if err != nil {
			return nil, false, fmt.Errorf("parse existing key %s: %w", keyPath, err)
		}

		log.Debugf("reusing existing private key: %s", keyPath)
		return key, false, nil
	}

	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read key %s: %w", keyPath, err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, false, fmt.Errorf("create key directory %s: %w", dir, err)
	}

	key, err = GenerateRSAKey(bits)
	if err != nil {
		return nil, false, err
	}

	if err := os.WriteFile(keyPath, EncodeRSAPrivateKeyPEM(key), 0600); err != nil {
		return nil, false, fmt.Errorf("persist key %s: %w", keyPath, err)
	}

	log.Noticef("generated new private key: %s", keyPath)
	return key, true, nil
}
