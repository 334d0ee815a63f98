package activitypub

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/util"
)

const (
	activityStreamsContext = "https://www.w3.org/ns/activitystreams"
	securityContext        = "https://w3id.org/security/v1"
	PublicCollection       = "https://www.w3.org/ns/activitystreams#Public"
)

type action uint

const (
	id action = iota
	inbox
	outbox
	followers
	sharedInbox
	mainKey
)

// getIRI builds the IRIs of a mirrored account on this instance.
func getIRI(domain string, username string, action action) string {
	prefix := fmt.Sprintf("https://%s/users/%s", domain, username)
	switch action {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case mainKey:
		return fmt.Sprintf("%s#main-key", prefix)
	case id:
		return prefix
	case sharedInbox:
		return fmt.Sprintf("https://%s/inbox", domain)
	default:
		return ""
	}
}

// ActorURL is the ActivityPub id of a mirrored account.
func ActorURL(domain string, handle string) string {
	return getIRI(domain, handle, id)
}

// InstanceActorURL is the id of the actor that signs outgoing fetches.
func InstanceActorURL(domain string) string {
	return fmt.Sprintf("https://%s/actor", domain)
}

// StatusURL is the ActivityPub id of a mirrored post.
func StatusURL(domain string, handle string, statusID int64) string {
	return fmt.Sprintf("%s/statuses/%d", getIRI(domain, handle, id), statusID)
}

type Image struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
}

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type PropertyValue struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox"`
}

// Actor is the ActivityPub document of a mirrored account.
type Actor struct {
	Context                   []interface{}   `json:"@context"`
	ID                        string          `json:"id"`
	Type                      string          `json:"type"`
	PreferredUsername         string          `json:"preferredUsername"`
	Name                      string          `json:"name"`
	Summary                   string          `json:"summary"`
	URL                       string          `json:"url"`
	Inbox                     string          `json:"inbox"`
	Outbox                    string          `json:"outbox,omitempty"`
	Followers                 string          `json:"followers,omitempty"`
	ManuallyApprovesFollowers bool            `json:"manuallyApprovesFollowers"`
	Discoverable              bool            `json:"discoverable"`
	Icon                      *Image          `json:"icon,omitempty"`
	Image                     *Image          `json:"image,omitempty"`
	Attachment                []PropertyValue `json:"attachment,omitempty"`
	Endpoints                 Endpoints       `json:"endpoints"`
	PublicKey                 PublicKey       `json:"publicKey"`
}

type Tag struct {
	Type string `json:"type"`
	Href string `json:"href"`
	Name string `json:"name"`
}

// Note is the ActivityPub document of a mirrored post.
type Note struct {
	Context      interface{}   `json:"@context"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Summary      *string       `json:"summary"`
	InReplyTo    *string       `json:"inReplyTo"`
	Published    string        `json:"published"`
	URL          string        `json:"url"`
	AttributedTo string        `json:"attributedTo"`
	To           []string      `json:"to"`
	Cc           []string      `json:"cc"`
	Sensitive    bool          `json:"sensitive"`
	Content      string        `json:"content"`
	Attachment   []interface{} `json:"attachment"`
	Tag          []Tag         `json:"tag"`
}

// DocumentBuilder renders mirrored accounts and posts as ActivityPub
// documents for one instance domain. Every mirrored actor publishes the
// instance key.
type DocumentBuilder struct {
	domain       string
	sourceDomain string
	publicKeyPem string
}

func NewDocumentBuilder(domain string, sourceDomain string, publicKeyPem string) *DocumentBuilder {
	return &DocumentBuilder{
		domain:       domain,
		sourceDomain: sourceDomain,
		publicKeyPem: publicKeyPem,
	}
}

func (b *DocumentBuilder) BuildActor(acc domain.MirroredAccount) Actor {
	handle := strings.ToLower(acc.Handle)
	actorURL := getIRI(b.domain, handle, id)
	profile := sourceProfileURL(acc, b.sourceDomain)

	actor := Actor{
		Context:                   []interface{}{activityStreamsContext, securityContext},
		ID:                        actorURL,
		Type:                      "Service",
		PreferredUsername:         handle,
		Name:                      acc.DisplayName,
		Summary:                   util.TextToHTML(acc.Bio, b.sourceDomain),
		URL:                       fmt.Sprintf("https://%s/@%s", b.domain, handle),
		Inbox:                     getIRI(b.domain, handle, inbox),
		Followers:                 getIRI(b.domain, handle, followers),
		ManuallyApprovesFollowers: acc.Protected,
		Discoverable:              !acc.Protected,
		Endpoints:                 Endpoints{SharedInbox: getIRI(b.domain, handle, sharedInbox)},
		PublicKey: PublicKey{
			ID:           getIRI(b.domain, handle, mainKey),
			Owner:        actorURL,
			PublicKeyPem: b.publicKeyPem,
		},
		Attachment: []PropertyValue{{
			Type: "PropertyValue",
			Name: "Official",
			Value: fmt.Sprintf(`<a href="%s" rel="me nofollow noopener noreferrer" target="_blank"><span class="invisible">https://</span><span>%s</span></a>`,
				html.EscapeString(profile), html.EscapeString(strings.TrimPrefix(profile, "https://"))),
		}},
	}
	if actor.Name == "" {
		actor.Name = handle
	}
	if acc.ProfileImageURL != "" {
		actor.Icon = &Image{Type: "Image", URL: acc.ProfileImageURL}
	}
	if acc.BannerURL != "" {
		actor.Image = &Image{Type: "Image", URL: acc.BannerURL}
	}
	return actor
}

// BuildInstanceActor describes the bridge itself. It owns the key used
// for signed fetches.
func (b *DocumentBuilder) BuildInstanceActor() Actor {
	actorURL := InstanceActorURL(b.domain)
	return Actor{
		Context:                   []interface{}{activityStreamsContext, securityContext},
		ID:                        actorURL,
		Type:                      "Application",
		PreferredUsername:         b.domain,
		Name:                      util.Name,
		URL:                       fmt.Sprintf("https://%s/", b.domain),
		Inbox:                     getIRI(b.domain, "", sharedInbox),
		ManuallyApprovesFollowers: true,
		Endpoints:                 Endpoints{SharedInbox: getIRI(b.domain, "", sharedInbox)},
		PublicKey: PublicKey{
			ID:           actorURL + "#main-key",
			Owner:        actorURL,
			PublicKeyPem: b.publicKeyPem,
		},
	}
}

func (b *DocumentBuilder) BuildNote(owner string, post domain.MirroredPost) Note {
	owner = strings.ToLower(owner)
	actorURL := getIRI(b.domain, owner, id)

	note := Note{
		Context:      activityStreamsContext,
		ID:           StatusURL(b.domain, owner, post.ID),
		Type:         "Note",
		Published:    post.CreatedAt.UTC().Format(time.RFC3339),
		URL:          fmt.Sprintf("https://%s/@%s/%d", b.domain, owner, post.ID),
		AttributedTo: actorURL,
		To:           []string{PublicCollection},
		Cc:           []string{getIRI(b.domain, owner, followers)},
		Sensitive:    post.Sensitive,
		Content:      util.TextToHTML(post.Content, b.sourceDomain),
		Attachment:   []interface{}{},
		Tag:          []Tag{},
	}

	if post.InReplyToID != 0 && post.InReplyToHandle != "" {
		reply := StatusURL(b.domain, strings.ToLower(post.InReplyToHandle), post.InReplyToID)
		note.InReplyTo = &reply
		note.Tag = append(note.Tag, Tag{
			Type: "Mention",
			Href: getIRI(b.domain, strings.ToLower(post.InReplyToHandle), id),
			Name: fmt.Sprintf("@%s@%s", strings.ToLower(post.InReplyToHandle), b.domain),
		})
	}
	return note
}

func sourceProfileURL(acc domain.MirroredAccount, sourceDomain string) string {
	if acc.ProfileURL != "" {
		return acc.ProfileURL
	}
	return fmt.Sprintf("https://%s/%s", sourceDomain, strings.ToLower(acc.Handle))
}

// HandleFromActorURL extracts the handle from one of our actor URLs,
// e.g. "https://bridge.example/users/jack" -> "jack". ok is false for
// URLs of other hosts or paths.
func HandleFromActorURL(domain string, actorURL string) (string, bool) {
	prefix := fmt.Sprintf("https://%s/users/", domain)
	if len(actorURL) <= len(prefix) || !strings.EqualFold(actorURL[:len(prefix)], prefix) {
		return "", false
	}
	handle := actorURL[len(prefix):]
	if strings.ContainsAny(handle, "/?#") {
		return "", false
	}
	return handle, true
}
