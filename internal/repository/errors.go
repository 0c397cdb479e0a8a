// Package repository implements MySQL persistence for events,
// enrollments, waiting-room participants, meetings and users.  This
// file defines sentinel error values shared across repositories so
// that higher layers can distinguish failure scenarios.  For example,
// ErrNotEnrolled tells the websocket handler to close the connection,
// while ErrInvalidStateTransition marks an illegal lifecycle move
// that must be surfaced, never silently ignored.
package repository

import "errors"

// ErrEventNotFound is returned when the referenced event row does not
// exist.  Handlers translate this into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// ErrNotEnrolled is returned when a user without an active enrollment
// attempts a waiting-room operation.  The caller must treat this as
// an authorization failure and close the connection.
var ErrNotEnrolled = errors.New("user not enrolled in event")

// ErrAlreadyEnrolled is returned when an enrollment for the same
// (event, user) pair already exists.  Handlers translate this into an
// HTTP 409 response.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// ErrInvalidStateTransition is returned when an event lifecycle
// change is not permitted by the state machine, either statically
// (COMPLETED can never reopen) or because a concurrent writer moved
// the event first.
var ErrInvalidStateTransition = errors.New("invalid event state transition")

// ErrMeetingNotFound is returned when a user asks for their assigned
// meeting before assembly ran or without having been assigned.
var ErrMeetingNotFound = errors.New("no meeting assigned")

// ErrUserCodeExists is returned when registering a user whose code or
// email collides with an existing account.
var ErrUserCodeExists = errors.New("user code or email already exists")
