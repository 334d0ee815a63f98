package web

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/sirupsen/logrus"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

const profilePageRel = "http://webfinger.net/rel/profile-page"

type AccountLookup interface {
	GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error)
}

type PostLookup interface {
	GetPost(ctx context.Context, id int64) (*domain.MirroredPost, error)
}

// AccountCounter reports how many mirrored accounts are followed.
type AccountCounter interface {
	CountFollowedAccounts(ctx context.Context) (int, error)
}

type ModerationModes interface {
	Mode(entity domain.ModerationEntity) domain.ModerationType
}

type WebFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type WebFingerDocument struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases"`
	Links   []WebFingerLink `json:"links"`
}

// DiscoveryResolver answers WebFinger and NodeInfo queries.
type DiscoveryResolver struct {
	domain     string
	adminEmail string
	accounts   AccountLookup
	counter    AccountCounter
	moderation ModerationModes
	metrics    *metrics.BridgeMetrics
	log        logrus.FieldLogger
}

func NewDiscoveryResolver(domain string, adminEmail string, accounts AccountLookup, counter AccountCounter, moderation ModerationModes, m *metrics.BridgeMetrics, log logrus.FieldLogger) *DiscoveryResolver {
	return &DiscoveryResolver{
		domain:     domain,
		adminEmail: adminEmail,
		accounts:   accounts,
		counter:    counter,
		moderation: moderation,
		metrics:    m,
		log:        log.WithField("component", "discovery"),
	}
}

// parseAcct splits an acct: resource into name and optional domain.
func parseAcct(resource string) (string, string, error) {
	if !strings.HasPrefix(resource, "acct:") {
		return "", "", fmt.Errorf("%w: resource must start with acct:", ErrBadRequest)
	}
	acct := strings.TrimSpace(strings.TrimPrefix(resource, "acct:"))

	var parts []string
	for _, p := range strings.Split(acct, "@") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	count := strings.Count(acct, "@")
	switch {
	case count == 0:
		return acct, "", nil
	case count == 1 && strings.HasPrefix(acct, "@"):
		if len(parts) == 0 {
			return "", "", nil
		}
		return parts[0], "", nil
	case count == 1 || count == 2:
		switch len(parts) {
		case 0:
			return "", "", nil
		case 1:
			return parts[0], "", nil
		default:
			return parts[0], parts[1], nil
		}
	default:
		return "", "", fmt.Errorf("%w: too many @ in %q", ErrBadRequest, acct)
	}
}

// WebFinger resolves an acct: resource to its document. Unknown, invalid
// and foreign accounts are all ErrNotFound.
func (d *DiscoveryResolver) WebFinger(ctx context.Context, resource string) (*WebFingerDocument, error) {
	rawName, host, err := parseAcct(resource)
	if err != nil {
		d.metrics.IncWebFinger("bad_request")
		return nil, err
	}

	name, err := domain.ValidateIdentifier(rawName)
	if err != nil {
		d.metrics.IncWebFinger("not_found")
		return nil, ErrNotFound
	}
	if host != "" && !strings.EqualFold(host, d.domain) {
		d.metrics.IncWebFinger("not_found")
		return nil, ErrNotFound
	}

	acc, err := d.accounts.GetAccount(ctx, name.String())
	if err != nil {
		d.log.WithError(err).WithField("handle", name).Warn("Account lookup failed")
		d.metrics.IncLookupError("webfinger")
		d.metrics.IncWebFinger("not_found")
		return nil, ErrNotFound
	}
	if acc == nil {
		d.metrics.IncWebFinger("not_found")
		return nil, ErrNotFound
	}

	actorURL := activitypub.ActorURL(d.domain, name.String())
	d.metrics.IncWebFinger("found")
	return &WebFingerDocument{
		Subject: fmt.Sprintf("acct:%s@%s", name, d.domain),
		Aliases: []string{actorURL},
		Links: []WebFingerLink{
			{Rel: profilePageRel, Type: "text/html", Href: actorURL},
			{Rel: "self", Type: activityJSON, Href: actorURL},
		},
	}, nil
}

// HostMeta is the XRD document pointing clients at WebFinger.
func (d *DiscoveryResolver) HostMeta() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" type="application/xrd+xml" template="https://%s/.well-known/webfinger?resource={uri}"/>
</XRD>
`, d.domain)
}
