package web

import (
	"context"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/sirupsen/logrus"
)

type ActorBuilder interface {
	BuildActor(acc domain.MirroredAccount) activitypub.Actor
}

// ActorResult carries exactly one of Document or Display when found.
type ActorResult struct {
	Found    bool
	Document *activitypub.Actor
	Display  *domain.DisplayAccount
}

type ActorResponder struct {
	domain   string
	accounts AccountLookup
	builder  ActorBuilder
	metrics  *metrics.BridgeMetrics
	log      logrus.FieldLogger
}

func NewActorResponder(domain string, accounts AccountLookup, builder ActorBuilder, m *metrics.BridgeMetrics, log logrus.FieldLogger) *ActorResponder {
	return &ActorResponder{
		domain:   domain,
		accounts: accounts,
		builder:  builder,
		metrics:  m,
		log:      log.WithField("component", "actor"),
	}
}

func (r *ActorResponder) Respond(ctx context.Context, rawID string, rep Representation) ActorResult {
	handle, err := domain.ValidateIdentifier(rawID)
	if err != nil {
		return ActorResult{}
	}

	acc, err := r.accounts.GetAccount(ctx, handle.String())
	if err != nil {
		r.log.WithError(err).WithField("handle", handle).Warn("Account lookup failed")
		r.metrics.IncLookupError("actor")
		return ActorResult{}
	}
	if acc == nil {
		return ActorResult{}
	}

	if rep == ProtocolDocument {
		doc := r.builder.BuildActor(*acc)
		return ActorResult{Found: true, Document: &doc}
	}
	display := acc.ToDisplay(r.domain)
	return ActorResult{Found: true, Display: &display}
}
