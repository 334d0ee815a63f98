package moderation

import (
	"strings"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/util"
)

// Store answers moderation questions from the lists in the config file.
//
// Follower entries are matched against the follower's acct ("user@host"),
// its host, or a "*.example.com" wildcard covering the host and its
// subdomains. Account entries are mirrored handles.
type Store struct {
	followerMode domain.ModerationType
	accountMode  domain.ModerationType
	followers    map[string]struct{}
	wildcards    []string
	accounts     map[string]struct{}
}

func New(conf util.ModerationConf) *Store {
	s := &Store{
		followerMode: domain.ParseModerationType(strings.ToLower(strings.TrimSpace(conf.FollowerMode))),
		accountMode:  domain.ParseModerationType(strings.ToLower(strings.TrimSpace(conf.AccountMode))),
		followers:    make(map[string]struct{}),
		accounts:     make(map[string]struct{}),
	}

	for _, f := range conf.Followers {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "@"))
		if f == "" {
			continue
		}
		if strings.HasPrefix(f, "*.") {
			s.wildcards = append(s.wildcards, strings.TrimPrefix(f, "*."))
			continue
		}
		s.followers[f] = struct{}{}
	}
	for _, a := range conf.Accounts {
		a = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "@"))
		if a != "" {
			s.accounts[a] = struct{}{}
		}
	}
	return s
}

func (s *Store) Mode(entity domain.ModerationEntity) domain.ModerationType {
	if entity == domain.ModerationMirroredAccount {
		return s.accountMode
	}
	return s.followerMode
}

// Listed reports whether value appears on the list for entity. For
// followers value may be an acct or a bare host.
func (s *Store) Listed(entity domain.ModerationEntity, value string) bool {
	value = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "@"))
	if value == "" {
		return false
	}

	if entity == domain.ModerationMirroredAccount {
		_, ok := s.accounts[value]
		return ok
	}

	if _, ok := s.followers[value]; ok {
		return true
	}
	host := value
	if i := strings.LastIndex(value, "@"); i >= 0 {
		host = value[i+1:]
		if _, ok := s.followers[host]; ok {
			return true
		}
	}
	for _, w := range s.wildcards {
		if host == w || strings.HasSuffix(host, "."+w) {
			return true
		}
	}
	return false
}

// Allowed applies the configured mode to value: allow-lists admit only
// listed values, deny-lists reject them, no moderation admits everything.
func (s *Store) Allowed(entity domain.ModerationEntity, value string) bool {
	switch s.Mode(entity) {
	case domain.ModerationWhiteListing:
		return s.Listed(entity, value)
	case domain.ModerationBlackListing:
		return !s.Listed(entity, value)
	default:
		return true
	}
}
