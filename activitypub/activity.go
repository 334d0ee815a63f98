package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnparseableActivity is returned for bodies that are not an activity.
var ErrUnparseableActivity = errors.New("unparseable activity")

// ActivityKind is the routing decision for an inbound activity.
type ActivityKind int

const (
	KindOther ActivityKind = iota
	KindFollow
	KindUndoFollow
)

func (k ActivityKind) String() string {
	switch k {
	case KindFollow:
		return "Follow"
	case KindUndoFollow:
		return "UndoFollow"
	default:
		return "Other"
	}
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	ID     string
	Actor  string
	Object string // URI of the account being followed
}

// UndoFollowActivity is an Undo whose embedded object is a Follow.
type UndoFollowActivity struct {
	ID     string
	Actor  string
	Object FollowActivity
}

// InboundActivity is a parsed inbox POST body.
type InboundActivity struct {
	Kind  ActivityKind
	Type  string
	ID    string
	Actor string

	// Follow is set for KindFollow, UndoFollow for KindUndoFollow.
	Follow     *FollowActivity
	UndoFollow *UndoFollowActivity

	Raw []byte
}

type rawActivity struct {
	ID     string          `json:"id"`
	Type   json.RawMessage `json:"type"`
	Actor  json.RawMessage `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// ParseActivity decodes an inbox body. Unknown activity types parse fine
// as KindOther; a body without a type is ErrUnparseableActivity.
func ParseActivity(body []byte) (*InboundActivity, error) {
	var raw rawActivity
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableActivity, err)
	}

	typ := firstType(raw.Type)
	if typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrUnparseableActivity)
	}

	activity := &InboundActivity{
		Kind:  KindOther,
		Type:  typ,
		ID:    raw.ID,
		Actor: idOf(raw.Actor),
		Raw:   body,
	}

	switch typ {
	case "Follow":
		activity.Kind = KindFollow
		activity.Follow = &FollowActivity{
			ID:     raw.ID,
			Actor:  activity.Actor,
			Object: idOf(raw.Object),
		}
	case "Undo":
		var inner rawActivity
		if len(raw.Object) == 0 || json.Unmarshal(raw.Object, &inner) != nil {
			// Undo of a bare reference, nothing to route on
			break
		}
		if firstType(inner.Type) != "Follow" {
			break
		}
		activity.Kind = KindUndoFollow
		activity.UndoFollow = &UndoFollowActivity{
			ID:    raw.ID,
			Actor: activity.Actor,
			Object: FollowActivity{
				ID:     inner.ID,
				Actor:  idOf(inner.Actor),
				Object: idOf(inner.Object),
			},
		}
	}

	return activity, nil
}

// idOf reads a JSON-LD reference that is either a bare IRI string or an
// object carrying an id.
func idOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// firstType accepts "type" as a string or an array of strings.
func firstType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
