package domain

import (
	"errors"
	"regexp"
	"strings"
)

// MaxIdentifierLength is the longest handle the source network allows.
const MaxIdentifierLength = 15

var ErrInvalidIdentifier = errors.New("invalid identifier")

// https://help.twitter.com/en/managing-your-account/twitter-username-rules
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Identifier is a validated, lower-cased handle of a mirrored account.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// ValidateIdentifier trims whitespace and leading '@' characters, lower-cases
// the result and checks it against the source network naming rules.
func ValidateIdentifier(raw string) (Identifier, error) {
	name := strings.TrimLeft(strings.TrimSpace(raw), "@")
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" || len(name) > MaxIdentifierLength || !identifierPattern.MatchString(name) {
		return "", ErrInvalidIdentifier
	}
	return Identifier(name), nil
}
