package helper

import (
	"strings"
	"testing"
)

func TestOrderTagRoundTrip(t *testing.T) {
	tag := BuildOrderTag(1042, RoleExit)

	if !strings.HasPrefix(tag, "pe1042x") {
		t.Fatalf("tag = %q, want prefix pe1042x", tag)
	}

	parsed := ParseOrderTag(tag)
	if parsed == nil {
		t.Fatalf("ParseOrderTag(%q) = nil", tag)
	}
	if parsed.PositionID != 1042 || parsed.Role != RoleExit {
		t.Fatalf("parsed = %+v, want id 1042 role x", parsed)
	}
}

func TestOrderTagNonceUniqueness(t *testing.T) {
	a := BuildOrderTag(1, RoleEntry)
	b := BuildOrderTag(1, RoleEntry)
	if a == b {
		t.Fatalf("two tags for the same position collided: %q", a)
	}
}

func TestParseOrderTagRejectsForeignTags(t *testing.T) {
	tests := []string{
		"",
		"x-grid-8842",      // another bot's tag
		"pe0e1a2b3c",       // zero position id
		"pe12z1a2b3c",      // unknown role
		"pe12e1a2b",        // short nonce
		"manual-close",     // operator order
		"pe12e1a2b3cextra", // trailing garbage
	}
	for _, tag := range tests {
		if got := ParseOrderTag(tag); got != nil {
			t.Errorf("ParseOrderTag(%q) = %+v, want nil", tag, got)
		}
	}
}

func TestParseOrderTagCaseInsensitive(t *testing.T) {
	parsed := ParseOrderTag("PE77E1A2B3C")
	if parsed == nil || parsed.PositionID != 77 || parsed.Role != RoleEntry {
		t.Fatalf("parsed = %+v, want id 77 role e", parsed)
	}
}
