// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/meetbot-project/meetbot/lib/ref"
)

// SyncFilter configures what events a room-scoped /sync stream
// receives. The target room is always included automatically — callers
// never need to specify the room ID in the filter.
//
// A nil *SyncFilter means "all events from the room" (state and
// timeline).
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event
	// types (e.g., "m.room.message"). An empty slice means all
	// timeline types.
	TimelineTypes []string `json:"timeline_types,omitempty"`

	// TimelineLimit caps the number of timeline events per /sync
	// response. Zero means no explicit limit (server default).
	TimelineLimit int `json:"timeline_limit,omitempty"`

	// ExcludeState suppresses state events from the /sync response.
	// When true, only timeline events matching TimelineTypes are
	// returned.
	ExcludeState bool `json:"exclude_state,omitempty"`
}

// BuildRoomFilter constructs the inline JSON filter string for /sync.
// The filter always scopes to the given room; presence and account
// data are suppressed. Additional restrictions from the SyncFilter
// (event types, limits, state suppression) are merged in.
func BuildRoomFilter(roomID ref.RoomID, filter *SyncFilter) string {
	roomFilter := map[string]any{
		"rooms": []string{roomID.String()},
	}

	if filter != nil {
		if len(filter.TimelineTypes) > 0 {
			timeline := map[string]any{"types": filter.TimelineTypes}
			if filter.TimelineLimit > 0 {
				timeline["limit"] = filter.TimelineLimit
			}
			roomFilter["timeline"] = timeline
		} else if filter.TimelineLimit > 0 {
			roomFilter["timeline"] = map[string]any{"limit": filter.TimelineLimit}
		}

		if filter.ExcludeState {
			roomFilter["state"] = map[string]any{"types": []string{}}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}
