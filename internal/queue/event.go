// Package queue defines message payloads exchanged over the message broker.
package queue

// NotificationKind distinguishes the outbound notifications that flow
// through the notification.send queue.
type NotificationKind string

const (
	KindEnrollmentConfirmed NotificationKind = "enrollment_confirmed"
	KindEnrollmentCancelled NotificationKind = "enrollment_cancelled"
	KindFirstReminder       NotificationKind = "first_reminder"
	KindSecondReminder      NotificationKind = "second_reminder"
	KindWaitingRoomOpen     NotificationKind = "waiting_room_open"
	KindMeetingsReady       NotificationKind = "meetings_ready"
)

// NotificationEvent is published whenever a participant must be told
// something about an event: enrollment receipts, the timed reminders,
// the waiting-room opening and the final meeting link. It carries
// enough information for downstream consumers to render and deliver
// the message without querying the primary database.
type NotificationEvent struct {
	Kind             NotificationKind `json:"kind"`
	EventID          uint64           `json:"event_id"`
	ActivityTitle    string           `json:"activity_title"`
	UserID           uint64           `json:"user_id"`
	UserCode         string           `json:"user_code"`
	Email            string           `json:"email,omitempty"`
	StartsAt         string           `json:"starts_at"`
	WaitingRoomURL   string           `json:"waiting_room_url,omitempty"`
	MeetingURL       string           `json:"meeting_url,omitempty"`
	UnsubscribeToken string           `json:"unsubscribe_token,omitempty"`
	QueuedAt         string           `json:"queued_at"`
}
