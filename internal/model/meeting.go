package model

import "time"

// MeetingProvider identifies the external video-call service backing a
// meeting room.
type MeetingProvider string

const (
	ProviderJitsi      MeetingProvider = "jitsi"
	ProviderGoogleMeet MeetingProvider = "google_meet"
)

// MemberStatus enumerates the states of a meeting membership.  A row
// is created as ASSIGNED at assembly time; JOINED and LEFT are
// reported back by the call provider and merely stored here.
type MemberStatus string

const (
	MemberAssigned MemberStatus = "assigned"
	MemberJoined   MemberStatus = "joined"
	MemberLeft     MemberStatus = "left"
)

// Meeting is one video room created for an event.  Meetings are only
// ever created by the assembler, always in one transaction together
// with their memberships, and are never mutated afterwards except to
// record an end time.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – owning event.
//  RoomURL        – externally reachable room locator.
//  Provider       – which provider issued the room.
//  ProviderRoomID – room identifier at the provider; deterministic
//                   given (event, group sequence) so retries are
//                   idempotent and inspectable.
//  CreatedAt      – assembly timestamp.
//  EndedAt        – when the room closed (nullable).
type Meeting struct {
	ID             uint64          // meetings.id
	EventID        uint64          // meetings.event_id
	RoomURL        string          // meetings.room_url
	Provider       MeetingProvider // meetings.provider
	ProviderRoomID string          // meetings.provider_room_id
	CreatedAt      time.Time       // meetings.created_at
	EndedAt        *time.Time      // meetings.ended_at (nullable)
}

// MeetingMember assigns one user to one meeting.  Unique per
// (meeting, user).
type MeetingMember struct {
	ID        uint64       // meeting_members.id
	MeetingID uint64       // meeting_members.meeting_id
	UserID    uint64       // meeting_members.user_id
	Status    MemberStatus // meeting_members.status
	CreatedAt time.Time    // meeting_members.created_at
}
