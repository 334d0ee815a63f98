package activitypub

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/deemkeen/birdbridge/metrics"
	"github.com/sirupsen/logrus"
)

// Verdict is a FollowAuthorizer decision.
type Verdict struct {
	Authorized bool
	Reason     string
}

// FollowAuthorizer verifies and applies follow state changes.
type FollowAuthorizer interface {
	AuthorizeFollow(ctx context.Context, sig SignedRequestContext, follow FollowActivity, body []byte) (Verdict, error)
	AuthorizeUndoFollow(ctx context.Context, sig SignedRequestContext, undo UndoFollowActivity, body []byte) (Verdict, error)
}

// InboxDispatcher turns one inbox POST into a status code: 202 when the
// activity is accepted or ignored, 401 when a follow change is refused.
type InboxDispatcher struct {
	authorizer FollowAuthorizer
	metrics    *metrics.BridgeMetrics
	log        logrus.FieldLogger
}

func NewInboxDispatcher(authorizer FollowAuthorizer, m *metrics.BridgeMetrics, log logrus.FieldLogger) *InboxDispatcher {
	return &InboxDispatcher{
		authorizer: authorizer,
		metrics:    m,
		log:        log.WithField("component", "inbox"),
	}
}

func (d *InboxDispatcher) Dispatch(ctx context.Context, r *http.Request) int {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.log.WithError(err).Warn("Failed to read inbox body")
		d.metrics.IncInbox("Unparseable", http.StatusAccepted)
		return http.StatusAccepted
	}

	activity, err := ParseActivity(body)
	if err != nil {
		d.log.WithError(err).Debug("Ignoring unparseable activity")
		d.metrics.IncInbox("Unparseable", http.StatusAccepted)
		return http.StatusAccepted
	}

	log := d.log.WithFields(logrus.Fields{
		"type":  activity.Type,
		"actor": activity.Actor,
		"id":    activity.ID,
	})
	log.Trace("Inbox activity received")

	sig := NewSignedRequestContext(r)

	status := http.StatusAccepted
	switch activity.Kind {
	case KindFollow:
		verdict, err := d.authorizer.AuthorizeFollow(ctx, sig, *activity.Follow, body)
		status = d.statusFor(log, verdict, err)
	case KindUndoFollow:
		verdict, err := d.authorizer.AuthorizeUndoFollow(ctx, sig, *activity.UndoFollow, body)
		status = d.statusFor(log, verdict, err)
	case KindOther:
		log.Debug("Ignoring activity")
	}

	d.metrics.IncInbox(activity.Kind.String(), status)
	return status
}

func (d *InboxDispatcher) statusFor(log logrus.FieldLogger, verdict Verdict, err error) int {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("Inbox request cancelled")
		} else {
			log.WithError(err).Error("Follow authorization failed")
		}
		d.metrics.IncLookupError("authorizer")
		return http.StatusUnauthorized
	}
	if !verdict.Authorized {
		log.WithField("reason", verdict.Reason).Info("Follow change refused")
		return http.StatusUnauthorized
	}
	return http.StatusAccepted
}
