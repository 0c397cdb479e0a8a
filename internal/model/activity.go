package model

import "time"

// Activity represents a conversation task that events are scheduled
// for.  The MaxPerRoom field is the room capacity handed to the
// grouping algorithm when an event of this activity is assembled.
//
// Fields:
//  ID          – primary key identifier.
//  Code        – short unique code used in URLs and emails.
//  Title       – human readable title.
//  Description – HTML description shown to participants.
//  MaxPerRoom  – maximum participants per video room (default 6).
//  IsActive    – whether new events may be scheduled for it.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Activity struct {
	ID          uint64    // activities.id
	Code        string    // activities.code
	Title       string    // activities.title
	Description string    // activities.description
	MaxPerRoom  uint32    // activities.max_per_room
	IsActive    bool      // activities.is_active
	CreatedAt   time.Time // activities.created_at
	UpdatedAt   time.Time // activities.updated_at
}
