package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

type RsaKeyPair struct {
	Private *rsa.PrivateKey
	Public  string
}

// GeneratePemKeypair creates a new 2048 bit RSA key, the public half PEM
// encoded as PKIX so remote servers can parse it.
func GeneratePemKeypair() (*RsaKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	return keyPairFrom(key)
}

// LoadOrCreateInstanceKey reads the instance signing key from path, creating
// and persisting a new one when the file does not exist yet.
func LoadOrCreateInstanceKey(path string) (*RsaKeyPair, error) {
	buf, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(buf)
		if block == nil {
			return nil, fmt.Errorf("failed to parse PEM block in %s", path)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return keyPairFrom(key)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pair, err := GeneratePemKeypair()
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(pair.Private),
	})
	if err := os.WriteFile(path, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return pair, nil
}

func keyPairFrom(key *rsa.PrivateKey) (*RsaKeyPair, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshalling public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})
	return &RsaKeyPair{Private: key, Public: string(pubPEM)}, nil
}
