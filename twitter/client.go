package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/deemkeen/birdbridge/util"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"
)

// Source looks up mirrored accounts and posts. A nil result with a nil
// error means the source network does not know the handle or post.
type Source interface {
	GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error)
	GetPost(ctx context.Context, id int64) (*domain.MirroredPost, error)
}

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("source api unavailable")

const userFields = "description,entities,profile_image_url,protected,url,name"
const tweetFields = "created_at,author_id,possibly_sensitive,in_reply_to_user_id,entities,referenced_tweets"

// Client talks to the source network's v2 REST API.
type Client struct {
	baseURL      string
	bearerToken  string
	sourceDomain string
	httpClient   *http.Client
	breaker      circuitbreaker.CircuitBreaker[any]
	metrics      *metrics.BridgeMetrics
	log          logrus.FieldLogger
}

type Options struct {
	BaseURL      string
	BearerToken  string
	SourceDomain string
	Timeout      time.Duration
	// BreakerDelay is how long the breaker stays open before probing again.
	BreakerDelay time.Duration
	Metrics      *metrics.BridgeMetrics
	Log          logrus.FieldLogger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerDelay <= 0 {
		opts.BreakerDelay = 30 * time.Second
	}
	if opts.SourceDomain == "" {
		opts.SourceDomain = "twitter.com"
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "source-api")

	c := &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		bearerToken:  opts.BearerToken,
		sourceDomain: opts.SourceDomain,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		metrics:      opts.Metrics,
		log:          log,
	}

	c.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(opts.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(_ any, err error) bool {
			return isBreakerFailure(err)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.WithFields(logrus.Fields{
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("circuit breaker state change")
			c.metrics.SetCircuitState("source-api", stateValue(event.NewState))
		}).
		Build()

	return c
}

// isBreakerFailure reports whether err says something about the upstream.
// A caller giving up is not the API failing.
func isBreakerFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "closed"
	}
}

func stateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return 0
	}
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type apiURL struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type apiUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	Protected       bool   `json:"protected"`
	Entities        struct {
		Description struct {
			URLs []apiURL `json:"urls"`
		} `json:"description"`
	} `json:"entities"`
}

type apiTweet struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	CreatedAt         string `json:"created_at"`
	AuthorID          string `json:"author_id"`
	InReplyToUserID   string `json:"in_reply_to_user_id"`
	PossiblySensitive bool   `json:"possibly_sensitive"`
	Entities          struct {
		URLs []apiURL `json:"urls"`
	} `json:"entities"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type userResponse struct {
	Data   *apiUser   `json:"data"`
	Errors []apiError `json:"errors"`
}

type tweetResponse struct {
	Data     *apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Errors []apiError `json:"errors"`
}

// GetAccount fetches a profile by handle.
func (c *Client) GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error) {
	endpoint := fmt.Sprintf("%s/users/by/username/%s?user.fields=%s",
		c.baseURL, url.PathEscape(handle), url.QueryEscape(userFields))

	var resp userResponse
	found, err := c.call(ctx, "users", endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if !found || resp.Data == nil {
		c.log.WithField("handle", handle).Warn("User not found")
		return nil, nil
	}

	return c.toAccount(handle, resp.Data)
}

// GetPost fetches a single post by id.
func (c *Client) GetPost(ctx context.Context, id int64) (*domain.MirroredPost, error) {
	endpoint := fmt.Sprintf("%s/tweets/%d?tweet.fields=%s&expansions=author_id,in_reply_to_user_id&user.fields=username",
		c.baseURL, id, url.QueryEscape(tweetFields))

	var resp tweetResponse
	found, err := c.call(ctx, "tweets", endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if !found || resp.Data == nil {
		c.log.WithField("id", id).Warn("Post not found")
		return nil, nil
	}

	return toPost(resp.Data, resp.Includes.Users)
}

func (c *Client) toAccount(handle string, u *apiUser) (*domain.MirroredAccount, error) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", u.ID, err)
	}

	urls := make([]domain.ShortURL, 0, len(u.Entities.Description.URLs))
	for _, du := range u.Entities.Description.URLs {
		urls = append(urls, domain.ShortURL{URL: du.URL, ExpandedURL: du.ExpandedURL})
	}

	return &domain.MirroredAccount{
		ID:              id,
		Handle:          handle,
		DisplayName:     u.Name,
		Bio:             domain.ExpandShortURLs(html.UnescapeString(u.Description), urls),
		ProfileURL:      fmt.Sprintf("https://%s/%s", c.sourceDomain, handle),
		ProfileImageURL: fullSizeImage(strings.Replace(u.ProfileImageURL, "http://", "https://", 1)),
		Protected:       u.Protected,
	}, nil
}

// fullSizeImage drops the "_normal" thumbnail suffix the API returns.
func fullSizeImage(u string) string {
	return strings.Replace(u, "_normal.", ".", 1)
}

func toPost(t *apiTweet, users []apiUser) (*domain.MirroredPost, error) {
	id, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid post id %q: %w", t.ID, err)
	}

	post := &domain.MirroredPost{
		ID:        id,
		Sensitive: t.PossiblySensitive,
	}

	if created, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		post.CreatedAt = created.UTC()
	}

	for _, u := range users {
		if u.ID == t.AuthorID {
			post.AuthorHandle = strings.ToLower(u.Username)
		}
		if t.InReplyToUserID != "" && u.ID == t.InReplyToUserID {
			post.InReplyToHandle = strings.ToLower(u.Username)
		}
	}

	for _, ref := range t.ReferencedTweets {
		if ref.Type != "replied_to" {
			continue
		}
		if replyID, err := strconv.ParseInt(ref.ID, 10, 64); err == nil {
			post.InReplyToID = replyID
		}
	}
	if post.InReplyToID == 0 {
		post.InReplyToHandle = ""
	}

	urls := make([]domain.ShortURL, 0, len(t.Entities.URLs))
	for _, eu := range t.Entities.URLs {
		urls = append(urls, domain.ShortURL{URL: eu.URL, ExpandedURL: eu.ExpandedURL})
	}
	post.Content = domain.ExpandShortURLs(html.UnescapeString(t.Text), urls)

	return post, nil
}

// call performs a GET through the circuit breaker and decodes the body
// into out. found is false when the API reports the resource missing.
func (c *Client) call(ctx context.Context, name string, endpoint string, out interface{}) (bool, error) {
	res, err := failsafe.With(c.breaker).Get(func() (any, error) {
		return c.doGet(ctx, name, endpoint, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		c.metrics.IncSourceApiCall(name, "circuit_open")
		return false, ErrUnavailable
	}
	if err != nil {
		return false, err
	}
	found, _ := res.(bool)
	return found, nil
}

func (c *Client) doGet(ctx context.Context, name string, endpoint string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IncSourceApiCall(name, "error")
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.IncSourceApiCall(name, strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%s request failed with status: %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return true, nil
}
