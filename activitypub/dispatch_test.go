package activitypub

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthorizer struct {
	verdict Verdict
	err     error
	follows int
	undos   int
}

func (s *stubAuthorizer) AuthorizeFollow(_ context.Context, _ SignedRequestContext, _ FollowActivity, _ []byte) (Verdict, error) {
	s.follows++
	return s.verdict, s.err
}

func (s *stubAuthorizer) AuthorizeUndoFollow(_ context.Context, _ SignedRequestContext, _ UndoFollowActivity, _ []byte) (Verdict, error) {
	s.undos++
	return s.verdict, s.err
}

func inboxPost(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://"+testDomain+"/inbox", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	return req
}

const (
	followJSON     = `{"id":"https://remote.example/f/1","type":"Follow","actor":"https://remote.example/users/alice","object":"https://bridge.example/users/jack"}`
	undoFollowJSON = `{"id":"https://remote.example/u/1","type":"Undo","actor":"https://remote.example/users/alice","object":{"type":"Follow","actor":"https://remote.example/users/alice","object":"https://bridge.example/users/jack"}}`
	undoLikeJSON   = `{"id":"https://remote.example/u/2","type":"Undo","actor":"https://remote.example/users/alice","object":{"type":"Like","object":"https://bridge.example/x"}}`
	createJSON     = `{"id":"https://remote.example/c/1","type":"Create","actor":"https://remote.example/users/alice","object":{"type":"Note"}}`
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		verdict     Verdict
		err         error
		wantStatus  int
		wantFollows int
		wantUndos   int
	}{
		{"malformed", `{not json`, Verdict{}, nil, http.StatusAccepted, 0, 0},
		{"no type", `{"id":"x"}`, Verdict{}, nil, http.StatusAccepted, 0, 0},
		{"follow authorized", followJSON, Verdict{Authorized: true}, nil, http.StatusAccepted, 1, 0},
		{"follow refused", followJSON, Verdict{Reason: "nope"}, nil, http.StatusUnauthorized, 1, 0},
		{"follow error", followJSON, Verdict{}, errors.New("boom"), http.StatusUnauthorized, 1, 0},
		{"undo follow authorized", undoFollowJSON, Verdict{Authorized: true}, nil, http.StatusAccepted, 0, 1},
		{"undo follow refused", undoFollowJSON, Verdict{}, nil, http.StatusUnauthorized, 0, 1},
		{"undo like ignored", undoLikeJSON, Verdict{}, nil, http.StatusAccepted, 0, 0},
		{"create ignored", createJSON, Verdict{}, nil, http.StatusAccepted, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthorizer{verdict: tt.verdict, err: tt.err}
			d := NewInboxDispatcher(stub, nil, quietLogger())

			status := d.Dispatch(context.Background(), inboxPost(t, tt.body))
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantFollows, stub.follows)
			assert.Equal(t, tt.wantUndos, stub.undos)
		})
	}
}

func TestDispatchCountsOutcomes(t *testing.T) {
	m := metrics.New()
	d := NewInboxDispatcher(&stubAuthorizer{verdict: Verdict{Reason: "nope"}}, m, quietLogger())

	d.Dispatch(context.Background(), inboxPost(t, followJSON))
	d.Dispatch(context.Background(), inboxPost(t, createJSON))
	d.Dispatch(context.Background(), inboxPost(t, createJSON))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboxActivities.WithLabelValues("Follow", "Unauthorized")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InboxActivities.WithLabelValues("Other", "Accepted")))
}

func TestDispatchSignedFollowEndToEnd(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	actors := newFakeActors()
	actors.add(&domain.RemoteAccount{
		Username:     "alice",
		Domain:       "remote.example",
		ActorURI:     aliceURI,
		InboxURI:     aliceURI + "/inbox",
		PublicKeyId:  aliceURI + "#main-key",
		PublicKeyPem: pubPEM,
	})
	followers := newFakeFollowers()
	moderation := fakeModeration{deniedFollowers: map[string]bool{}, deniedAccounts: map[string]bool{}}
	accounts := fakeAccounts{"jack": {ID: 12, Handle: "jack"}}

	authorizer := NewAuthorizer(testDomain, actors, followers, moderation, accounts, quietLogger())
	d := NewInboxDispatcher(authorizer, nil, quietLogger())

	body := followBody(aliceURI, "https://bridge.example/users/jack")
	req := signedInboxRequest(t, key, aliceURI+"#main-key", "/users/jack/inbox", body)
	assert.Equal(t, http.StatusAccepted, d.Dispatch(context.Background(), req))
	assert.True(t, followers.has(aliceURI, "jack"))

	// same signature, different body
	tampered := signedInboxRequest(t, key, aliceURI+"#main-key", "/users/jack/inbox", body)
	tampered.Body = io.NopCloser(bytes.NewReader(followBody(aliceURI, "https://bridge.example/users/dril")))
	assert.Equal(t, http.StatusUnauthorized, d.Dispatch(context.Background(), tampered))
	assert.False(t, followers.has(aliceURI, "dril"))
}
