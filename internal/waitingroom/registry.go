package waitingroom

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/talkabout/talkabout/internal/broadcast"
	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/repository"
)

// ErrRoomClosed is returned for joins against an event that has
// already been claimed, completed or cancelled.  A participant
// arriving after the matchmaking moment must enroll in a future slot.
var ErrRoomClosed = errors.New("waiting room is closed")

// participantStore is the slice of ParticipantRepo the registry uses.
type participantStore interface {
	Join(ctx context.Context, eventID, userID uint64, connectionID string) error
	Heartbeat(ctx context.Context, eventID, userID uint64) error
	SetStatus(ctx context.Context, eventID, userID uint64, status model.ParticipantStatus) (bool, error)
	Snapshot(ctx context.Context, eventID uint64) ([]repository.Entry, error)
}

// enrollmentChecker authorizes joins; implemented by EnrollmentRepo.
type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, eventID, userID uint64) (bool, error)
}

// eventGetter looks up the event to validate its lifecycle state.
type eventGetter interface {
	GetByID(ctx context.Context, id uint64) (model.Event, error)
}

// Registry is the per-event waiting-room service.  Every mutation
// goes through it: it persists the registry row, then publishes the
// refreshed participant list on the event's broadcast channel.  The
// scheduler shares it to take assembly snapshots and to push event
// status notices.
type Registry struct {
	events       eventGetter
	enrollments  enrollmentChecker
	participants participantStore
	bc           broadcast.Broadcaster
}

// NewRegistry wires the registry service.
func NewRegistry(events eventGetter, enrollments enrollmentChecker, participants participantStore, bc broadcast.Broadcaster) *Registry {
	return &Registry{events: events, enrollments: enrollments, participants: participants, bc: bc}
}

// Join admits a user to an event's waiting room.  It fails with
// repository.ErrNotEnrolled when the user holds no active enrollment
// (the caller must close the connection) and with ErrRoomClosed when
// the event has moved past IN_WAITING.  Joining is idempotent per
// (event, user): a reconnect updates the existing entry back to
// WAITING.  On success the updated participant list is broadcast.
func (r *Registry) Join(ctx context.Context, eventID, userID uint64, connectionID string) error {
	ev, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	// Early connections while the event is still SCHEDULED are fine;
	// after the claim the snapshot is frozen and late arrivals stay out.
	if ev.Status != model.EventScheduled && ev.Status != model.EventInWaiting {
		return ErrRoomClosed
	}
	enrolled, err := r.enrollments.IsEnrolled(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !enrolled {
		return repository.ErrNotEnrolled
	}
	if err := r.participants.Join(ctx, eventID, userID, connectionID); err != nil {
		return err
	}
	r.broadcastList(ctx, eventID)
	return nil
}

// Heartbeat refreshes the participant's last-seen timestamp.  The
// visible set does not change, so nothing is broadcast.
func (r *Registry) Heartbeat(ctx context.Context, eventID, userID uint64) error {
	return r.participants.Heartbeat(ctx, eventID, userID)
}

// MarkReady flags the participant as ready and broadcasts the
// updated list.
func (r *Registry) MarkReady(ctx context.Context, eventID, userID uint64) error {
	changed, err := r.participants.SetStatus(ctx, eventID, userID, model.ParticipantReady)
	if err != nil {
		return err
	}
	if changed {
		r.broadcastList(ctx, eventID)
	}
	return nil
}

// MarkDisconnected transitions the entry to DISCONNECTED and
// broadcasts once.  Connection handlers must call this on every exit
// path.
func (r *Registry) MarkDisconnected(ctx context.Context, eventID, userID uint64) error {
	changed, err := r.participants.SetStatus(ctx, eventID, userID, model.ParticipantDisconnected)
	if err != nil {
		return err
	}
	if changed {
		r.broadcastList(ctx, eventID)
	}
	return nil
}

// Snapshot returns the active entries in stable join order.  The
// assembler calls this once, right after winning the claim; anything
// mutated later belongs to the next snapshot, not this one.
func (r *Registry) Snapshot(ctx context.Context, eventID uint64) ([]repository.Entry, error) {
	return r.participants.Snapshot(ctx, eventID)
}

// BroadcastStatus pushes an event_status message to the event's
// channel.  Best effort: a failed publish is logged, never returned,
// since nothing actionable can be done by the caller.
func (r *Registry) BroadcastStatus(ctx context.Context, eventID uint64, status, message string) {
	payload, err := json.Marshal(EventStatusMessage{Type: TypeEventStatus, Status: status, Message: message})
	if err != nil {
		log.Printf("waitingroom: marshal status for event %d: %v", eventID, err)
		return
	}
	if err := r.bc.Publish(ctx, eventID, payload); err != nil {
		log.Printf("waitingroom: broadcast status for event %d: %v", eventID, err)
	}
}

// broadcastList publishes the current participant list.  Broadcasts
// are best effort and never fail the mutation that triggered them.
func (r *Registry) broadcastList(ctx context.Context, eventID uint64) {
	entries, err := r.participants.Snapshot(ctx, eventID)
	if err != nil {
		log.Printf("waitingroom: snapshot for event %d: %v", eventID, err)
		return
	}
	payload, err := json.Marshal(NewParticipantList(entries))
	if err != nil {
		log.Printf("waitingroom: marshal list for event %d: %v", eventID, err)
		return
	}
	if err := r.bc.Publish(ctx, eventID, payload); err != nil {
		log.Printf("waitingroom: broadcast list for event %d: %v", eventID, err)
	}
}

// Pong builds the reply to a client ping.
func Pong(now time.Time) PongMessage {
	return PongMessage{Type: TypePong, Timestamp: now.UTC().Format(time.RFC3339)}
}
