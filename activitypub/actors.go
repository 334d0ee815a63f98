package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Inbox             string `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// RemoteAccountStore caches fetched actors.
type RemoteAccountStore interface {
	ReadRemoteAccountByURI(ctx context.Context, uri string) (*domain.RemoteAccount, error)
	SaveRemoteAccount(ctx context.Context, acc *domain.RemoteAccount) error
}

// ActorFetcher resolves remote actors, signing its GETs with the instance
// key so servers that require authorized fetch answer too.
type ActorFetcher struct {
	store      RemoteAccountStore
	httpClient *http.Client
	key        *rsa.PrivateKey
	keyId      string
	maxAge     time.Duration
	log        logrus.FieldLogger
}

func NewActorFetcher(store RemoteAccountStore, key *rsa.PrivateKey, keyId string, log logrus.FieldLogger) *ActorFetcher {
	return &ActorFetcher{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		key:        key,
		keyId:      keyId,
		maxAge:     24 * time.Hour,
		log:        log.WithField("component", "actor-fetcher"),
	}
}

// FetchRemoteActor fetches an actor from a remote server and stores in cache
func (f *ActorFetcher) FetchRemoteActor(ctx context.Context, actorURI string) (*domain.RemoteAccount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	if f.key != nil {
		if err := SignRequest(req, f.key, f.keyId, nil); err != nil {
			return nil, fmt.Errorf("signing actor fetch: %w", err)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}
	if !sameActorURI(actor.ID, actorURI) {
		return nil, fmt.Errorf("actor fetched from %s claims id %s", actorURI, actor.ID)
	}
	if actor.PublicKey.ID != "" && !sameHost(actor.PublicKey.ID, actor.ID) {
		return nil, fmt.Errorf("actor %s publishes key %s from another host", actor.ID, actor.PublicKey.ID)
	}
	// a key must belong to the actor that publishes it
	if actor.PublicKey.Owner != "" && actor.PublicKey.Owner != actor.ID {
		return nil, fmt.Errorf("actor %s publishes a key owned by %s", actor.ID, actor.PublicKey.Owner)
	}

	domainName, err := extractDomain(actor.ID)
	if err != nil {
		return nil, err
	}

	remoteAcc := &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      actor.PreferredUsername,
		Domain:        domainName,
		ActorURI:      actor.ID,
		InboxURI:      actor.Inbox,
		SharedInbox:   actor.Endpoints.SharedInbox,
		PublicKeyId:   actor.PublicKey.ID,
		PublicKeyPem:  actor.PublicKey.PublicKeyPem,
		LastFetchedAt: time.Now(),
	}
	if remoteAcc.Username == "" {
		remoteAcc.Username = extractUsername(actor.ID)
	}

	if err := f.store.SaveRemoteAccount(ctx, remoteAcc); err != nil {
		return nil, fmt.Errorf("failed to store remote account: %w", err)
	}

	f.log.WithField("actor", actor.ID).Debug("Fetched remote actor")
	return remoteAcc, nil
}

// GetOrFetchActor returns actor from cache or fetches if not cached/stale
func (f *ActorFetcher) GetOrFetchActor(ctx context.Context, actorURI string) (*domain.RemoteAccount, error) {
	cached, err := f.store.ReadRemoteAccountByURI(ctx, actorURI)
	if err != nil {
		f.log.WithError(err).WithField("actor", actorURI).Warn("Reading cached actor failed")
	}
	if cached != nil && time.Since(cached.LastFetchedAt) < f.maxAge {
		return cached, nil
	}

	return f.FetchRemoteActor(ctx, actorURI)
}

// sameActorURI compares two actor ids ignoring scheme and host case and a
// trailing slash.
func sameActorURI(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.EscapedPath(), "/") == strings.TrimSuffix(ub.EscapedPath(), "/") &&
		ua.RawQuery == ub.RawQuery
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid actor URI: %s", actorURI)
	}

	return strings.ToLower(parsed.Hostname()), nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(strings.TrimSuffix(uri, "/"), "/")
	if len(parts) > 0 {
		return strings.TrimPrefix(parts[len(parts)-1], "@")
	}
	return ""
}
