package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Identifier
		wantErr bool
	}{
		{"plain", "bob", "bob", false},
		{"uppercase", "BoB", "bob", false},
		{"leading at", "@bob", "bob", false},
		{"double at", "@@bob", "bob", false},
		{"whitespace", "  bob \t", "bob", false},
		{"whitespace and at", " @Bob_42 ", "bob_42", false},
		{"underscore only", "_", "_", false},
		{"max length", strings.Repeat("a", 15), Identifier(strings.Repeat("a", 15)), false},
		{"too long", strings.Repeat("a", 16), "", true},
		{"empty", "", "", true},
		{"only at", "@", "", true},
		{"only whitespace", "   ", "", true},
		{"dash", "bob-smith", "", true},
		{"dot", "bob.smith", "", true},
		{"domain", "bob@example.com", "", true},
		{"unicode", "bób", "", true},
		{"inner space", "bob smith", "", true},
		{"path traversal", "../etc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateIdentifier(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Errorf("Expected ErrInvalidIdentifier for %q, got %v", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidateIdentifierRejectsAllOverlongHandles(t *testing.T) {
	for n := MaxIdentifierLength + 1; n < 64; n++ {
		if _, err := ValidateIdentifier(strings.Repeat("x", n)); err == nil {
			t.Errorf("Expected rejection for length %d", n)
		}
	}
}

func TestValidateIdentifierRejectsDisallowedCharacters(t *testing.T) {
	for _, r := range "!#$%&'()*+,-./:;<=>?[]^`{|}~\"\\" {
		raw := "ab" + string(r) + "cd"
		if _, err := ValidateIdentifier(raw); err == nil {
			t.Errorf("Expected rejection for %q", raw)
		}
	}
}
