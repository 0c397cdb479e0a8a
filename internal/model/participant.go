package model

import "time"

// ParticipantStatus enumerates the liveness states of a waiting-room
// participant entry.
type ParticipantStatus string

const (
	ParticipantWaiting      ParticipantStatus = "waiting"
	ParticipantReady        ParticipantStatus = "ready"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// Active reports whether the participant counts toward the visible
// waiting-room population and is eligible for grouping.
func (s ParticipantStatus) Active() bool {
	return s == ParticipantWaiting || s == ParticipantReady
}

// Participant is a waiting-room registry row.  There is at most one
// row per (event, user); a reconnecting user updates the existing row
// instead of creating a duplicate.  JoinedAt keeps the original join
// time across reconnects so that snapshot ordering is stable.
//
// Fields:
//  ID           – primary key identifier.
//  EventID      – event whose waiting room this entry belongs to.
//  UserID       – the waiting user.
//  Status       – waiting, ready or disconnected.
//  ConnectionID – opaque identifier of the current websocket connection.
//  JoinedAt     – first successful join for this event.
//  LastSeen     – last heartbeat or mutation timestamp.
type Participant struct {
	ID           uint64            // waiting_room_participants.id
	EventID      uint64            // waiting_room_participants.event_id
	UserID       uint64            // waiting_room_participants.user_id
	Status       ParticipantStatus // waiting_room_participants.status
	ConnectionID string            // waiting_room_participants.connection_id
	JoinedAt     time.Time         // waiting_room_participants.joined_at
	LastSeen     time.Time         // waiting_room_participants.last_seen
}
