package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/sirupsen/logrus"
)

const testDomain = "bridge.example"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeAccounts map[string]*domain.MirroredAccount

func (f fakeAccounts) GetAccount(_ context.Context, handle string) (*domain.MirroredAccount, error) {
	if handle == "broken" {
		return nil, errors.New("source api unavailable")
	}
	return f[handle], nil
}

type fakePosts map[int64]*domain.MirroredPost

func (f fakePosts) GetPost(_ context.Context, id int64) (*domain.MirroredPost, error) {
	if id == 500 {
		return nil, errors.New("source api unavailable")
	}
	return f[id], nil
}

type fakeCounter struct {
	count int
	err   error
}

func (f fakeCounter) CountFollowedAccounts(context.Context) (int, error) {
	return f.count, f.err
}

type fakeModes map[domain.ModerationEntity]domain.ModerationType

func (f fakeModes) Mode(entity domain.ModerationEntity) domain.ModerationType {
	return f[entity]
}

type fakeInbox struct {
	status int
	calls  int
}

func (f *fakeInbox) Dispatch(_ context.Context, r *http.Request) int {
	f.calls++
	_, _ = io.ReadAll(r.Body)
	return f.status
}

func testAccounts() fakeAccounts {
	return fakeAccounts{
		"jack": {
			ID:              12,
			Handle:          "Jack",
			DisplayName:     "jack",
			Bio:             "no state is the best state",
			ProfileURL:      "https://twitter.com/jack",
			ProfileImageURL: "https://pbs.example/jack.jpg",
		},
	}
}

func testPosts() fakePosts {
	return fakePosts{
		20: {ID: 20, AuthorHandle: "jack", Content: "just setting up my twttr", CreatedAt: time.Date(2006, 3, 21, 20, 50, 14, 0, time.UTC)},
	}
}

func testDocuments() *activitypub.DocumentBuilder {
	return activitypub.NewDocumentBuilder(testDomain, "twitter.com", "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n")
}

func testResolver(accounts AccountLookup) *DiscoveryResolver {
	return NewDiscoveryResolver(testDomain, "admin@bridge.example", accounts, fakeCounter{count: 3}, fakeModes{}, nil, quietLogger())
}
