package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/deemkeen/birdbridge/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const jrdContent = "application/jrd+json; charset=utf-8"

//go:embed templates/*.html
var templatesFS embed.FS

// InboxHandler maps one inbox POST to a status code.
type InboxHandler interface {
	Dispatch(ctx context.Context, r *http.Request) int
}

// DocumentBuilder renders every ActivityPub document the router serves.
type DocumentBuilder interface {
	ActorBuilder
	StatusBuilder
	BuildInstanceActor() activitypub.Actor
}

type Options struct {
	Domain       string
	SourceDomain string
	AdminEmail   string

	Accounts   AccountLookup
	Posts      PostLookup
	Counter    AccountCounter
	Moderation ModerationModes
	Documents  DocumentBuilder
	Inbox      InboxHandler

	RateLimit util.RateLimitConf

	// Metrics is served on /metrics when set.
	Metrics *metrics.BridgeMetrics
	Log     logrus.FieldLogger
}

type server struct {
	discovery *DiscoveryResolver
	actors    *ActorResponder
	statuses  *StatusResponder
	followers *FollowersResponder
	documents DocumentBuilder
	inbox     InboxHandler
}

// NewRouter wires the federation surface onto a gin engine. Background
// limiter cleanup stops when ctx is done.
func NewRouter(ctx context.Context, opts Options) *gin.Engine {
	s := &server{
		discovery: NewDiscoveryResolver(opts.Domain, opts.AdminEmail, opts.Accounts, opts.Counter, opts.Moderation, opts.Metrics, opts.Log),
		actors:    NewActorResponder(opts.Domain, opts.Accounts, opts.Documents, opts.Metrics, opts.Log),
		statuses:  NewStatusResponder(opts.SourceDomain, opts.Posts, opts.Documents, opts.Metrics, opts.Log),
		followers: NewFollowersResponder(opts.Domain),
		documents: opts.Documents,
		inbox:     opts.Inbox,
	}

	g := gin.New()
	g.Use(gin.Recovery(), RequestLogger(opts.Log))
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	limits := opts.RateLimit.WithDefaults()
	global := NewRateLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)
	inbox := NewRateLimiter(rate.Limit(limits.InboxRequestsPerSecond), limits.InboxBurst)
	go global.Run(ctx)
	go inbox.Run(ctx)

	g.Use(global.Middleware())

	g.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	inboxLimit := inbox.Middleware()
	maxBodySize := BodyLimit(limits.MaxInboxBodyBytes)

	g.GET("/.well-known/webfinger", s.webFinger)
	g.GET("/.well-known/nodeinfo", s.nodeInfoLinks)
	g.GET("/.well-known/host-meta", s.hostMeta)
	g.GET("/nodeinfo/:version", s.nodeInfo)

	g.GET("/actor", s.instanceActor)
	g.GET("/users", s.usersIndex)
	g.GET("/users/:id", s.actor)
	g.GET("/users/:id/remote_follow", s.actor)
	g.GET("/users/:id/statuses/:statusId", s.status)
	g.GET("/users/:id/followers", s.followersCollection)
	g.GET("/:handle", s.atActor)
	g.GET("/:handle/:statusId", s.atStatus)

	g.POST("/users/:id/inbox", inboxLimit, maxBodySize, s.dispatch)
	g.POST("/inbox", inboxLimit, maxBodySize, s.dispatch)

	if opts.Metrics != nil {
		g.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	return g
}

func representation(c *gin.Context) Representation {
	return Classify(c.GetHeader("Accept"))
}

// writeActivity writes v with the ActivityPub content type.
func writeActivity(c *gin.Context, v interface{}) {
	writeDocument(c, activityContent, v)
}

func writeDocument(c *gin.Context, contentType string, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, contentType, buf)
}

func notFoundJSON(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
}

func (s *server) webFinger(c *gin.Context) {
	doc, err := s.discovery.WebFinger(c.Request.Context(), c.Query("resource"))
	switch {
	case errors.Is(err, ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
	case err != nil:
		notFoundJSON(c)
	default:
		writeDocument(c, jrdContent, doc)
	}
}

func (s *server) nodeInfoLinks(c *gin.Context) {
	c.JSON(http.StatusOK, s.discovery.NodeInfoLinks())
}

func (s *server) nodeInfo(c *gin.Context) {
	info, err := s.discovery.NodeInfo(c.Request.Context(), c.Param("version"))
	if err != nil {
		notFoundJSON(c)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *server) hostMeta(c *gin.Context) {
	c.Data(http.StatusOK, "application/xrd+xml; charset=utf-8", []byte(s.discovery.HostMeta()))
}

func (s *server) instanceActor(c *gin.Context) {
	writeActivity(c, s.documents.BuildInstanceActor())
}

func (s *server) usersIndex(c *gin.Context) {
	if representation(c) == ProtocolDocument {
		notFoundJSON(c)
		return
	}
	c.HTML(http.StatusNotFound, "usernotfound.html", nil)
}

func (s *server) actor(c *gin.Context) {
	s.respondActor(c, c.Param("id"))
}

func (s *server) respondActor(c *gin.Context, id string) {
	rep := representation(c)
	result := s.actors.Respond(c.Request.Context(), id, rep)

	if rep == ProtocolDocument {
		if !result.Found {
			notFoundJSON(c)
			return
		}
		writeActivity(c, result.Document)
		return
	}

	if !result.Found {
		c.HTML(http.StatusNotFound, "usernotfound.html", nil)
		return
	}
	c.HTML(http.StatusOK, "user.html", result.Display)
}

func (s *server) status(c *gin.Context) {
	s.respondStatus(c, c.Param("id"), c.Param("statusId"))
}

func (s *server) respondStatus(c *gin.Context, owner string, statusID string) {
	result := s.statuses.Respond(c.Request.Context(), owner, statusID, representation(c))
	switch {
	case result.Redirect != "":
		c.Redirect(http.StatusFound, result.Redirect)
	case result.Note != nil:
		writeActivity(c, result.Note)
	default:
		notFoundJSON(c)
	}
}

// atHandle strips the leading "@" of the root routes.
func atHandle(c *gin.Context) (string, bool) {
	handle := c.Param("handle")
	if !strings.HasPrefix(handle, "@") {
		return "", false
	}
	return strings.TrimPrefix(handle, "@"), true
}

func (s *server) atActor(c *gin.Context) {
	handle, ok := atHandle(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	s.respondActor(c, handle)
}

func (s *server) atStatus(c *gin.Context) {
	handle, ok := atHandle(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	s.respondStatus(c, handle, c.Param("statusId"))
}

func (s *server) followersCollection(c *gin.Context) {
	collection, ok := s.followers.Respond(c.Param("id"), representation(c))
	if !ok {
		notFoundJSON(c)
		return
	}
	writeActivity(c, collection)
}

func (s *server) dispatch(c *gin.Context) {
	c.Status(s.inbox.Dispatch(c.Request.Context(), c.Request))
}
