// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	valid := []string{
		"!abc123:example.org",
		"!BQEjGPeQwWMEvvOLtO:dark.fi",
		"!x:localhost:8448",
	}
	for _, raw := range valid {
		roomID, err := ParseRoomID(raw)
		if err != nil {
			t.Errorf("ParseRoomID(%q) failed: %v", raw, err)
			continue
		}
		if roomID.String() != raw {
			t.Errorf("ParseRoomID(%q).String() = %q", raw, roomID.String())
		}
		if roomID.IsZero() {
			t.Errorf("ParseRoomID(%q) returned zero value", raw)
		}
	}

	invalid := []string{
		"",
		"abc:example.org",
		"#alias:example.org",
		"!noserver",
		"!:example.org",
		"!local:",
	}
	for _, raw := range invalid {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q) unexpectedly succeeded", raw)
		}
	}
}

func TestParseRoomAlias(t *testing.T) {
	alias, err := ParseRoomAlias("#dev:example.org")
	if err != nil {
		t.Fatalf("ParseRoomAlias failed: %v", err)
	}
	if alias.Localpart() != "dev" {
		t.Errorf("Localpart() = %q, want %q", alias.Localpart(), "dev")
	}

	for _, raw := range []string{"", "dev", "!room:example.org", "#:example.org", "#dev"} {
		if _, err := ParseRoomAlias(raw); err == nil {
			t.Errorf("ParseRoomAlias(%q) unexpectedly succeeded", raw)
		}
	}
}

func TestParseUserID(t *testing.T) {
	userID, err := ParseUserID("@meetbot:example.org")
	if err != nil {
		t.Fatalf("ParseUserID failed: %v", err)
	}
	if userID.Localpart() != "meetbot" {
		t.Errorf("Localpart() = %q, want %q", userID.Localpart(), "meetbot")
	}
	if userID.Server() != "example.org" {
		t.Errorf("Server() = %q, want %q", userID.Server(), "example.org")
	}

	for _, raw := range []string{"", "meetbot", "#dev:example.org", "@:example.org", "@noserver"} {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q) unexpectedly succeeded", raw)
		}
	}
}

func TestRoomIDJSONRoundTrip(t *testing.T) {
	original := MustParseRoomID("!abc:example.org")

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"!abc:example.org"` {
		t.Errorf("unexpected JSON form: %s", data)
	}

	var decoded RoomID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %v != %v", decoded, original)
	}

	// Invalid identifiers are rejected at deserialization.
	var bad RoomID
	if err := json.Unmarshal([]byte(`"not-a-room"`), &bad); err == nil {
		t.Error("unmarshal of invalid room ID unexpectedly succeeded")
	}
}

func TestUserIDJSONZeroValue(t *testing.T) {
	var zero UserID
	data, err := json.Marshal(zero)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `""` {
		t.Errorf("zero value marshaled as %s, want empty string", data)
	}

	var decoded UserID
	if err := json.Unmarshal([]byte(`""`), &decoded); err != nil {
		t.Fatalf("unmarshal of empty string failed: %v", err)
	}
	if !decoded.IsZero() {
		t.Error("empty string did not decode to zero value")
	}
}
