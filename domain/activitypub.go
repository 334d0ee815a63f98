package domain

import (
	"time"

	"github.com/google/uuid"
)

// RemoteAccount represents a cached federated actor
type RemoteAccount struct {
	Id            uuid.UUID
	Username      string
	Domain        string
	ActorURI      string
	InboxURI      string
	SharedInbox   string
	PublicKeyId   string
	PublicKeyPem  string
	LastFetchedAt time.Time
}

// Follower is a remote actor following a mirrored account
type Follower struct {
	Id           uuid.UUID
	ActorURI     string
	Acct         string
	Host         string
	InboxURI     string
	SharedInbox  string
	FollowURI    string // ActivityPub Follow activity URI
	TargetHandle string // Mirrored account being followed
	CreatedAt    time.Time
}

// FollowedAccount is a mirrored account with at least one follower
type FollowedAccount struct {
	Id        uuid.UUID
	Handle    string
	CreatedAt time.Time
}

// ModerationType decides how a moderation list is applied
type ModerationType int

const (
	ModerationNone ModerationType = iota
	ModerationWhiteListing
	ModerationBlackListing
)

// ModerationEntity is what a moderation list applies to
type ModerationEntity int

const (
	ModerationFollower ModerationEntity = iota
	ModerationMirroredAccount
)

func (t ModerationType) String() string {
	switch t {
	case ModerationWhiteListing:
		return "whitelisting"
	case ModerationBlackListing:
		return "blacklisting"
	default:
		return "none"
	}
}

// ParseModerationType maps a config value to a ModerationType, unknown values disable moderation.
func ParseModerationType(s string) ModerationType {
	switch s {
	case "whitelist", "whitelisting", "allowlist":
		return ModerationWhiteListing
	case "blacklist", "blacklisting", "denylist":
		return ModerationBlackListing
	default:
		return ModerationNone
	}
}
