package activitypub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/sirupsen/logrus"
)

// ActorResolver finds the public key material of a remote actor.
type ActorResolver interface {
	GetOrFetchActor(ctx context.Context, actorURI string) (*domain.RemoteAccount, error)
	FetchRemoteActor(ctx context.Context, actorURI string) (*domain.RemoteAccount, error)
}

type FollowerStore interface {
	AddFollower(ctx context.Context, f *domain.Follower) error
	RemoveFollower(ctx context.Context, actorURI string, targetHandle string) error
}

type ModerationStore interface {
	Allowed(entity domain.ModerationEntity, value string) bool
}

type AccountLookup interface {
	GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error)
}

// Authorizer is the FollowAuthorizer backed by signature verification,
// moderation lists and the follower store.
type Authorizer struct {
	domain     string
	actors     ActorResolver
	followers  FollowerStore
	moderation ModerationStore
	accounts   AccountLookup
	now        func() time.Time
	log        logrus.FieldLogger
}

func NewAuthorizer(domain string, actors ActorResolver, followers FollowerStore, moderation ModerationStore, accounts AccountLookup, log logrus.FieldLogger) *Authorizer {
	return &Authorizer{
		domain:     domain,
		actors:     actors,
		followers:  followers,
		moderation: moderation,
		accounts:   accounts,
		now:        time.Now,
		log:        log.WithField("component", "authorizer"),
	}
}

func refuse(reason string) Verdict {
	return Verdict{Authorized: false, Reason: reason}
}

func (a *Authorizer) AuthorizeFollow(ctx context.Context, sig SignedRequestContext, follow FollowActivity, body []byte) (Verdict, error) {
	sender, verdict, err := a.verifySender(ctx, sig, follow.Actor, body)
	if err != nil || !verdict.Authorized {
		return verdict, err
	}

	handle, ok := a.targetHandle(follow.Object)
	if !ok {
		return refuse("follow target is not a mirrored account"), nil
	}

	acct := fmt.Sprintf("%s@%s", sender.Username, sender.Domain)
	if !a.moderation.Allowed(domain.ModerationFollower, acct) {
		return refuse("follower instance moderated"), nil
	}
	if !a.moderation.Allowed(domain.ModerationMirroredAccount, handle) {
		return refuse("account moderated"), nil
	}

	if a.accounts != nil {
		acc, err := a.accounts.GetAccount(ctx, handle)
		if err != nil {
			return Verdict{}, fmt.Errorf("looking up %s: %w", handle, err)
		}
		if acc == nil {
			return refuse("unknown account"), nil
		}
	}

	err = a.followers.AddFollower(ctx, &domain.Follower{
		ActorURI:     sender.ActorURI,
		Acct:         acct,
		Host:         sender.Domain,
		InboxURI:     sender.InboxURI,
		SharedInbox:  sender.SharedInbox,
		FollowURI:    follow.ID,
		TargetHandle: handle,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("storing follower: %w", err)
	}

	a.log.WithFields(logrus.Fields{"follower": acct, "handle": handle}).Info("Follow accepted")
	return Verdict{Authorized: true}, nil
}

func (a *Authorizer) AuthorizeUndoFollow(ctx context.Context, sig SignedRequestContext, undo UndoFollowActivity, body []byte) (Verdict, error) {
	if undo.Object.Actor != "" && undo.Object.Actor != undo.Actor {
		return refuse("undo of another actor's follow"), nil
	}

	sender, verdict, err := a.verifySender(ctx, sig, undo.Actor, body)
	if err != nil || !verdict.Authorized {
		return verdict, err
	}

	handle, ok := a.targetHandle(undo.Object.Object)
	if !ok {
		return refuse("follow target is not a mirrored account"), nil
	}

	if err := a.followers.RemoveFollower(ctx, sender.ActorURI, handle); err != nil {
		return Verdict{}, fmt.Errorf("removing follower: %w", err)
	}

	a.log.WithFields(logrus.Fields{"follower": sender.ActorURI, "handle": handle}).Info("Follow undone")
	return Verdict{Authorized: true}, nil
}

// verifySender checks that the request is signed by actorURI's key, that
// the body matches the signed digest and that the date is fresh.
func (a *Authorizer) verifySender(ctx context.Context, sig SignedRequestContext, actorURI string, body []byte) (*domain.RemoteAccount, Verdict, error) {
	if actorURI == "" {
		return nil, refuse("activity has no actor"), nil
	}

	keyId, err := SignatureKeyId(sig)
	if err != nil {
		if errors.Is(err, ErrMissingSignature) {
			return nil, refuse("missing signature"), nil
		}
		return nil, refuse("malformed signature"), nil
	}

	signed := SignedHeaders(sig)
	for _, required := range postHeaders {
		if !contains(signed, required) {
			return nil, refuse(fmt.Sprintf("signature does not cover %s", required)), nil
		}
	}

	if err := CheckDate(sig.Header("date"), a.now(), DateWindow); err != nil {
		return nil, refuse(err.Error()), nil
	}
	if err := VerifyDigest(sig.Header("digest"), body); err != nil {
		return nil, refuse(err.Error()), nil
	}

	sender, err := a.actors.GetOrFetchActor(ctx, actorURI)
	if err != nil {
		return nil, Verdict{}, fmt.Errorf("resolving actor %s: %w", actorURI, err)
	}
	if !sameActorURI(sender.ActorURI, actorURI) {
		return nil, refuse("actor document does not match the activity actor"), nil
	}
	if !keyBelongsTo(keyId, sender) {
		return nil, refuse("signing key does not belong to the actor"), nil
	}

	if _, err := VerifySignature(sig, sender.PublicKeyPem); err != nil {
		// the actor may have rotated its key since we cached it
		refreshed, fetchErr := a.actors.FetchRemoteActor(ctx, actorURI)
		if fetchErr != nil {
			return nil, refuse("invalid signature"), nil
		}
		if !sameActorURI(refreshed.ActorURI, sender.ActorURI) || !keyBelongsTo(keyId, refreshed) {
			return nil, refuse("signing key does not belong to the actor"), nil
		}
		if _, err := VerifySignature(sig, refreshed.PublicKeyPem); err != nil {
			a.log.WithError(err).WithField("actor", actorURI).Debug("Signature rejected")
			return nil, refuse("invalid signature"), nil
		}
		sender = refreshed
	}

	return sender, Verdict{Authorized: true}, nil
}

func keyBelongsTo(keyId string, actor *domain.RemoteAccount) bool {
	if actor.PublicKeyId != "" {
		return keyId == actor.PublicKeyId
	}
	owner, _, _ := strings.Cut(keyId, "#")
	return owner == actor.ActorURI
}

// targetHandle validates that object is one of our actor URLs.
func (a *Authorizer) targetHandle(object string) (string, bool) {
	raw, ok := HandleFromActorURL(a.domain, object)
	if !ok {
		return "", false
	}
	handle, err := domain.ValidateIdentifier(raw)
	if err != nil {
		return "", false
	}
	return handle.String(), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
