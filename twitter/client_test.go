package twitter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:      srv.URL + "/2",
		BearerToken:  "token",
		BreakerDelay: time.Minute,
		Log:          quietLogger(),
	})
}

func TestGetAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/by/username/jack", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{
			"id":"12","name":"jack","username":"jack",
			"description":"see https://t.co/ab and https://t.co/a &amp; more",
			"profile_image_url":"http://pbs.twimg.com/profile_images/1/x_normal.jpg",
			"protected":true,
			"entities":{"description":{"urls":[
				{"url":"https://t.co/a","expanded_url":"https://short.example"},
				{"url":"https://t.co/ab","expanded_url":"https://long.example"}
			]}}
		}}`)
	})

	acc, err := client.GetAccount(context.Background(), "jack")
	require.NoError(t, err)
	require.NotNil(t, acc)

	assert.Equal(t, int64(12), acc.ID)
	assert.Equal(t, "jack", acc.Handle)
	assert.Equal(t, "see https://long.example and https://short.example & more", acc.Bio)
	assert.Equal(t, "https://pbs.twimg.com/profile_images/1/x.jpg", acc.ProfileImageURL)
	assert.Equal(t, "https://twitter.com/jack", acc.ProfileURL)
	assert.True(t, acc.Protected)
}

func TestGetAccountNotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "errors only",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"errors":[{"title":"Not Found Error","detail":"Could not find user"}]}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			acc, err := client.GetAccount(context.Background(), "nobody")
			assert.NoError(t, err)
			assert.Nil(t, acc)
		})
	}
}

func TestGetPost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/1234", r.URL.Path)
		io.WriteString(w, `{
			"data":{
				"id":"1234","text":"@Bob look https://t.co/x",
				"created_at":"2020-01-02T03:04:05.000Z",
				"author_id":"12","in_reply_to_user_id":"99",
				"possibly_sensitive":true,
				"entities":{"urls":[{"url":"https://t.co/x","expanded_url":"https://example.com/x"}]},
				"referenced_tweets":[{"type":"replied_to","id":"1000"}]
			},
			"includes":{"users":[{"id":"12","username":"Jack"},{"id":"99","username":"Bob"}]}
		}`)
	})

	post, err := client.GetPost(context.Background(), 1234)
	require.NoError(t, err)
	require.NotNil(t, post)

	assert.Equal(t, int64(1234), post.ID)
	assert.Equal(t, "jack", post.AuthorHandle)
	assert.Equal(t, "@Bob look https://example.com/x", post.Content)
	assert.True(t, post.Sensitive)
	assert.Equal(t, int64(1000), post.InReplyToID)
	assert.Equal(t, "bob", post.InReplyToHandle)
	assert.Equal(t, 2020, post.CreatedAt.Year())
}

func TestServerErrorIsReturned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetAccount(context.Background(), "jack")
	assert.Error(t, err)
}

func TestCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 10; i++ {
		_, err := client.GetAccount(context.Background(), "jack")
		require.Error(t, err)
	}

	_, err := client.GetAccount(context.Background(), "jack")
	assert.True(t, errors.Is(err, ErrUnavailable), "expected ErrUnavailable, got %v", err)
	assert.Equal(t, int32(10), hits.Load(), "open breaker should not reach the server")
}

func TestCircuitBreakerIgnoresCancelledCallers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"12","name":"jack","username":"jack"}}`)
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		_, err := client.GetAccount(cancelled, "jack")
		require.ErrorIs(t, err, context.Canceled)
	}

	acc, err := client.GetAccount(context.Background(), "jack")
	require.NoError(t, err)
	require.NotNil(t, acc)
}
