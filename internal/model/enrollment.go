package model

import "time"

// EnrollmentStatus enumerates the states of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentAttended  EnrollmentStatus = "attended"
	EnrollmentNoShow    EnrollmentStatus = "no_show"
)

// Enrollment links a user to an event.  Only users holding an
// enrollment in status "enrolled" may join the event's waiting room.
// The unsubscribe token is embedded in notification emails so a user
// can cancel without logging in.
//
// Fields:
//  ID               – primary key identifier.
//  EventID          – event being enrolled in.
//  UserID           – enrolled user.
//  Status           – current enrollment state.
//  UnsubscribeToken – random token embedded in email links.
//  EnrolledAt       – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Enrollment struct {
	ID               uint64           // enrollments.id
	EventID          uint64           // enrollments.event_id
	UserID           uint64           // enrollments.user_id
	Status           EnrollmentStatus // enrollments.status
	UnsubscribeToken string           // enrollments.unsubscribe_token
	EnrolledAt       time.Time        // enrollments.enrolled_at
	UpdatedAt        time.Time        // enrollments.updated_at
}
