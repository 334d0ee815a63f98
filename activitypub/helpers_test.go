package activitypub

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/sirupsen/logrus"
)

const testDomain = "bridge.example"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// generateTestKeyPair generates an RSA key pair for testing
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return privateKey, publicKeyToPEM(t, &privateKey.PublicKey)
}

// publicKeyToPEM converts public key to PEM string
func publicKeyToPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}))
}

// signedInboxRequest builds a POST to our inbox signed like Mastodon does.
func signedInboxRequest(t *testing.T, key *rsa.PrivateKey, keyId string, path string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://"+testDomain+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	if err := SignRequest(req, key, keyId, body); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	return req
}

type fakeActors struct {
	mu       sync.Mutex
	accounts map[string]*domain.RemoteAccount
	// fresh replaces an account on FetchRemoteActor, simulating key rotation
	fresh   map[string]*domain.RemoteAccount
	err     error
	fetches int
}

func newFakeActors() *fakeActors {
	return &fakeActors{
		accounts: make(map[string]*domain.RemoteAccount),
		fresh:    make(map[string]*domain.RemoteAccount),
	}
}

func (f *fakeActors) add(acc *domain.RemoteAccount) {
	f.accounts[acc.ActorURI] = acc
}

func (f *fakeActors) GetOrFetchActor(_ context.Context, uri string) (*domain.RemoteAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	acc, ok := f.accounts[uri]
	if !ok {
		return nil, errors.New("actor fetch failed with status: 404")
	}
	return acc, nil
}

func (f *fakeActors) FetchRemoteActor(_ context.Context, uri string) (*domain.RemoteAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if acc, ok := f.fresh[uri]; ok {
		f.accounts[uri] = acc
		return acc, nil
	}
	acc, ok := f.accounts[uri]
	if !ok {
		return nil, errors.New("actor fetch failed with status: 404")
	}
	return acc, nil
}

type fakeFollowers struct {
	mu        sync.Mutex
	followers map[string]domain.Follower
	err       error
}

func newFakeFollowers() *fakeFollowers {
	return &fakeFollowers{followers: make(map[string]domain.Follower)}
}

func (f *fakeFollowers) AddFollower(_ context.Context, follower *domain.Follower) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.followers[follower.ActorURI+" "+follower.TargetHandle] = *follower
	return nil
}

func (f *fakeFollowers) RemoveFollower(_ context.Context, actorURI string, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.followers, actorURI+" "+handle)
	return nil
}

func (f *fakeFollowers) has(actorURI string, handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.followers[actorURI+" "+handle]
	return ok
}

type fakeModeration struct {
	deniedFollowers map[string]bool
	deniedAccounts  map[string]bool
}

func (m fakeModeration) Allowed(entity domain.ModerationEntity, value string) bool {
	if entity == domain.ModerationMirroredAccount {
		return !m.deniedAccounts[value]
	}
	return !m.deniedFollowers[value]
}

type fakeAccounts map[string]*domain.MirroredAccount

func (f fakeAccounts) GetAccount(_ context.Context, handle string) (*domain.MirroredAccount, error) {
	if handle == "broken" {
		return nil, errors.New("source api unavailable")
	}
	return f[handle], nil
}
