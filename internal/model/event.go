package model

import "time"

// EventStatus enumerates the lifecycle states of an event.  The values
// are stored verbatim in the events.status column.
type EventStatus string

const (
	EventScheduled  EventStatus = "scheduled"   // created, waiting room not yet open
	EventInWaiting  EventStatus = "in_waiting"  // waiting room open, participants gathering
	EventInProgress EventStatus = "in_progress" // claimed for assembly, meetings being created
	EventCompleted  EventStatus = "completed"   // meetings created or event over
	EventCancelled  EventStatus = "cancelled"   // administratively cancelled, terminal
)

// CanTransition reports whether moving from s to the target state is a
// legal lifecycle transition.  COMPLETED and CANCELLED are terminal.
// The IN_PROGRESS -> IN_WAITING edge exists only so that a failed
// assembly can release its claim and become eligible for a retry.
func (s EventStatus) CanTransition(to EventStatus) bool {
	switch s {
	case EventScheduled:
		return to == EventInWaiting || to == EventCompleted || to == EventCancelled
	case EventInWaiting:
		return to == EventInProgress || to == EventCompleted || to == EventCancelled
	case EventInProgress:
		return to == EventCompleted || to == EventInWaiting || to == EventCancelled
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// Event represents a scheduled occurrence of an activity.  Enrolled
// users gather in its waiting room starting WaitMinutes before
// StartTime and are partitioned into meetings when StartTime passes.
//
// Fields:
//  ID                    – primary key identifier.
//  ActivityID            – activity this event belongs to.
//  StartTime             – when the conversation slot begins.
//  EndTime               – when the slot ends (must be after StartTime).
//  WaitMinutes           – minutes before StartTime at which the waiting
//                          room opens.
//  FirstReminderMinutes  – minutes before StartTime for the first
//                          reminder email (nil disables it).
//  SecondReminderMinutes – minutes before StartTime for the second
//                          reminder email (nil disables it).
//  FirstReminderSent     – whether the first reminder went out.
//  SecondReminderSent    – whether the second reminder went out.
//  WaitingEmailSent      – whether the waiting-room-open notice went out.
//  Status                – current lifecycle state.
//  CreatedAt             – creation timestamp.
//  UpdatedAt             – last update timestamp.
type Event struct {
	ID                    uint64      // events.id
	ActivityID            uint64      // events.activity_id
	StartTime             time.Time   // events.start_time
	EndTime               time.Time   // events.end_time
	WaitMinutes           uint32      // events.wait_minutes
	FirstReminderMinutes  *uint32     // events.first_reminder_minutes (nullable)
	SecondReminderMinutes *uint32     // events.second_reminder_minutes (nullable)
	FirstReminderSent     bool        // events.first_reminder_sent
	SecondReminderSent    bool        // events.second_reminder_sent
	WaitingEmailSent      bool        // events.waiting_email_sent
	Status                EventStatus // events.status
	CreatedAt             time.Time   // events.created_at
	UpdatedAt             time.Time   // events.updated_at
}

// WaitingRoomOpensAt returns the instant at which the waiting room for
// this event should open.
func (e Event) WaitingRoomOpensAt() time.Time {
	return e.StartTime.Add(-time.Duration(e.WaitMinutes) * time.Minute)
}
