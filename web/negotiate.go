package web

import "strings"

// Representation is what a GET should answer with.
type Representation int

const (
	HumanView Representation = iota
	ProtocolDocument
)

func (r Representation) String() string {
	if r == ProtocolDocument {
		return "protocol"
	}
	return "human"
}

const (
	activityJSON    = "application/activity+json"
	activityContent = "application/activity+json; charset=utf-8"
	ldJSON          = "application/ld+json"
	asProfile       = "https://www.w3.org/ns/activitystreams"
)

// Classify picks the representation for an Accept header. ActivityPub
// clients send either activity+json or ld+json with the activitystreams
// profile.
func Classify(accept string) Representation {
	accept = strings.ToLower(accept)
	if strings.Contains(accept, activityJSON) {
		return ProtocolDocument
	}
	if strings.Contains(accept, ldJSON) && strings.Contains(accept, asProfile) {
		return ProtocolDocument
	}
	return HumanView
}
