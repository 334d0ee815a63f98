package activitypub

import (
	"errors"
	"testing"
)

func TestParseActivity(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantKind   ActivityKind
		wantType   string
		wantObject string
	}{
		{
			name:       "follow with iri object",
			body:       `{"id":"https://r.example/f/1","type":"Follow","actor":"https://r.example/users/alice","object":"https://bridge.example/users/jack"}`,
			wantKind:   KindFollow,
			wantType:   "Follow",
			wantObject: "https://bridge.example/users/jack",
		},
		{
			name:       "follow with embedded object and actor",
			body:       `{"id":"https://r.example/f/1","type":"Follow","actor":{"id":"https://r.example/users/alice"},"object":{"id":"https://bridge.example/users/jack","type":"Service"}}`,
			wantKind:   KindFollow,
			wantType:   "Follow",
			wantObject: "https://bridge.example/users/jack",
		},
		{
			name:       "undo follow",
			body:       `{"id":"https://r.example/u/1","type":"Undo","actor":"https://r.example/users/alice","object":{"id":"https://r.example/f/1","type":"Follow","actor":"https://r.example/users/alice","object":"https://bridge.example/users/jack"}}`,
			wantKind:   KindUndoFollow,
			wantType:   "Undo",
			wantObject: "https://bridge.example/users/jack",
		},
		{
			name:     "undo like",
			body:     `{"id":"https://r.example/u/2","type":"Undo","actor":"https://r.example/users/alice","object":{"id":"https://r.example/l/1","type":"Like"}}`,
			wantKind: KindOther,
			wantType: "Undo",
		},
		{
			name:     "undo of bare reference",
			body:     `{"id":"https://r.example/u/3","type":"Undo","actor":"https://r.example/users/alice","object":"https://r.example/f/1"}`,
			wantKind: KindOther,
			wantType: "Undo",
		},
		{
			name:     "create",
			body:     `{"id":"https://r.example/c/1","type":"Create","actor":"https://r.example/users/alice","object":{"type":"Note"}}`,
			wantKind: KindOther,
			wantType: "Create",
		},
		{
			name:       "type array",
			body:       `{"type":["Follow"],"actor":"https://r.example/users/alice","object":"https://bridge.example/users/jack"}`,
			wantKind:   KindFollow,
			wantType:   "Follow",
			wantObject: "https://bridge.example/users/jack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity, err := ParseActivity([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseActivity failed: %v", err)
			}
			if activity.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, activity.Kind)
			}
			if activity.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, activity.Type)
			}
			if activity.Actor != "https://r.example/users/alice" {
				t.Errorf("Unexpected actor %q", activity.Actor)
			}

			switch activity.Kind {
			case KindFollow:
				if activity.Follow == nil || activity.Follow.Object != tt.wantObject {
					t.Errorf("Expected follow object %s, got %+v", tt.wantObject, activity.Follow)
				}
			case KindUndoFollow:
				if activity.UndoFollow == nil || activity.UndoFollow.Object.Object != tt.wantObject {
					t.Errorf("Expected undone follow of %s, got %+v", tt.wantObject, activity.UndoFollow)
				}
			}
		})
	}
}

func TestParseActivityRejectsGarbage(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"actor":"x"}`, `{"type":""}`, `[1,2]`} {
		if _, err := ParseActivity([]byte(body)); !errors.Is(err, ErrUnparseableActivity) {
			t.Errorf("ParseActivity(%q): expected ErrUnparseableActivity, got %v", body, err)
		}
	}
}

func TestActivityKindString(t *testing.T) {
	if KindFollow.String() != "Follow" || KindUndoFollow.String() != "UndoFollow" || KindOther.String() != "Other" {
		t.Error("Unexpected ActivityKind names")
	}
}
