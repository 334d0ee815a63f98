package web

import (
	"context"
	"fmt"
	"strconv"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/sirupsen/logrus"
)

type StatusBuilder interface {
	BuildNote(owner string, post domain.MirroredPost) activitypub.Note
}

// StatusResult is a Note, a redirect to the source network or neither.
type StatusResult struct {
	Note     *activitypub.Note
	Redirect string
}

type StatusResponder struct {
	sourceDomain string
	posts        PostLookup
	builder      StatusBuilder
	metrics      *metrics.BridgeMetrics
	log          logrus.FieldLogger
}

func NewStatusResponder(sourceDomain string, posts PostLookup, builder StatusBuilder, m *metrics.BridgeMetrics, log logrus.FieldLogger) *StatusResponder {
	if sourceDomain == "" {
		sourceDomain = "twitter.com"
	}
	return &StatusResponder{
		sourceDomain: sourceDomain,
		posts:        posts,
		builder:      builder,
		metrics:      m,
		log:          log.WithField("component", "status"),
	}
}

// Respond never renders a page for humans, it sends them to the original post.
func (r *StatusResponder) Respond(ctx context.Context, owner string, statusID string, rep Representation) StatusResult {
	if rep == HumanView {
		return StatusResult{Redirect: fmt.Sprintf("https://%s/%s/status/%s", r.sourceDomain, owner, statusID)}
	}

	handle, err := domain.ValidateIdentifier(owner)
	if err != nil {
		return StatusResult{}
	}
	id, err := strconv.ParseInt(statusID, 10, 64)
	if err != nil {
		return StatusResult{}
	}

	post, err := r.posts.GetPost(ctx, id)
	if err != nil {
		r.log.WithError(err).WithField("status", id).Warn("Post lookup failed")
		r.metrics.IncLookupError("status")
		return StatusResult{}
	}
	if post == nil {
		return StatusResult{}
	}

	note := r.builder.BuildNote(handle.String(), *post)
	return StatusResult{Note: &note}
}

// FollowersCollection is an empty OrderedCollection; members are not listed.
type FollowersCollection struct {
	Context string `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
}

type FollowersResponder struct {
	domain string
}

func NewFollowersResponder(domain string) *FollowersResponder {
	return &FollowersResponder{domain: domain}
}

func (r *FollowersResponder) Respond(rawID string, rep Representation) (*FollowersCollection, bool) {
	if rep != ProtocolDocument {
		return nil, false
	}
	handle, err := domain.ValidateIdentifier(rawID)
	if err != nil {
		return nil, false
	}
	return &FollowersCollection{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      activitypub.ActorURL(r.domain, handle.String()) + "/followers",
		Type:    "OrderedCollection",
	}, true
}
