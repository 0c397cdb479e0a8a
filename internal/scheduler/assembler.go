// Package scheduler drives the event lifecycle in the background: it
// opens waiting rooms, sends the timed reminders, and converts each
// event's waiting room into meetings at its start time.  Everything
// here runs off one ticker loop; correctness under concurrent ticks
// (or concurrent server instances) rests on the conditional UPDATE
// claims in the repository layer, never on in-process locking.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/talkabout/talkabout/internal/grouping"
	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// NotifyFunc delivers one notification event.  The production wiring
// publishes to RabbitMQ; tests substitute a recorder.  Delivery is
// fire and forget: implementations log failures, callers never see
// them.
type NotifyFunc func(ctx context.Context, ev queue.NotificationEvent)

// claimStore is the slice of EventRepo the assembler needs.
type claimStore interface {
	ClaimForAssembly(ctx context.Context, id uint64) (bool, error)
	ReleaseClaim(ctx context.Context, id uint64) error
	Complete(ctx context.Context, id uint64) error
}

// snapshotter yields the frozen participant set of a claimed event;
// implemented by the waiting-room registry.
type snapshotter interface {
	Snapshot(ctx context.Context, eventID uint64) ([]repository.Entry, error)
}

// meetingCreator persists one assembly atomically.
type meetingCreator interface {
	CreateForEvent(ctx context.Context, eventID uint64, provider model.MeetingProvider, groups []repository.GroupAssignment) error
}

// statusBroadcaster pushes event status notices to the waiting-room
// channel; implemented by the registry.
type statusBroadcaster interface {
	BroadcastStatus(ctx context.Context, eventID uint64, status, message string)
}

// emailLister resolves the contact details for an event's enrolled
// users; implemented by EnrollmentRepo.
type emailLister interface {
	ListEnrolled(ctx context.Context, eventID uint64) ([]repository.EnrolledUser, error)
}

// Assembler converts one claimed event into meetings.  It owns the
// critical sequence: claim, snapshot, group, persist, announce.  A
// failure after the claim rolls the event back to IN_WAITING so a
// later tick can retry with a fresh snapshot.
type Assembler struct {
	events      claimStore
	rooms       snapshotter
	enrollments emailLister
	meetings    meetingCreator
	broadcast   statusBroadcaster
	notify      NotifyFunc
	jitsiDomain string
}

// NewAssembler wires an Assembler.
func NewAssembler(events claimStore, rooms snapshotter, enrollments emailLister, meetings meetingCreator, broadcast statusBroadcaster, notify NotifyFunc, jitsiDomain string) *Assembler {
	return &Assembler{
		events:      events,
		rooms:       rooms,
		enrollments: enrollments,
		meetings:    meetings,
		broadcast:   broadcast,
		notify:      notify,
		jitsiDomain: jitsiDomain,
	}
}

// roomName builds the deterministic provider room identifier for one
// group.  Deterministic names mean a re-run of a failed assembly
// produces the same URLs, so nothing stale can leak to participants.
func (a *Assembler) roomName(eventID uint64, seq int) string {
	return fmt.Sprintf("talkabout-event-%d-group-%d", eventID, seq)
}

// AssembleEvent runs the exactly-once assembly for a due event.  Only
// the caller whose claim succeeds proceeds; everyone else returns
// immediately with no error.  With fewer than two active participants
// the event completes without meetings.  Any failure between claim
// and commit releases the claim and returns the error.
func (a *Assembler) AssembleEvent(ctx context.Context, cand repository.AssemblyCandidate) error {
	won, err := a.events.ClaimForAssembly(ctx, cand.EventID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	entries, err := a.rooms.Snapshot(ctx, cand.EventID)
	if err != nil {
		a.release(ctx, cand.EventID)
		return fmt.Errorf("snapshot event %d: %w", cand.EventID, err)
	}

	if len(entries) < 2 {
		// Nobody to talk to: the event ends without meetings.
		if err := a.events.Complete(ctx, cand.EventID); err != nil {
			return fmt.Errorf("complete event %d: %w", cand.EventID, err)
		}
		a.broadcast.BroadcastStatus(ctx, cand.EventID, waitingroom.StatusCompleted,
			"not enough participants showed up, the event was closed")
		log.Printf("scheduler: event %d completed with %d participant(s), no meetings", cand.EventID, len(entries))
		return nil
	}

	groups, err := grouping.Distribute(entries, int(cand.MaxPerRoom))
	if err != nil {
		a.release(ctx, cand.EventID)
		return fmt.Errorf("group event %d: %w", cand.EventID, err)
	}

	assignments := make([]repository.GroupAssignment, 0, len(groups))
	for i, g := range groups {
		name := a.roomName(cand.EventID, i+1)
		ga := repository.GroupAssignment{
			RoomURL:        fmt.Sprintf("https://%s/%s", a.jitsiDomain, name),
			ProviderRoomID: name,
			UserIDs:        make([]uint64, 0, len(g)),
		}
		for _, e := range g {
			ga.UserIDs = append(ga.UserIDs, e.UserID)
		}
		assignments = append(assignments, ga)
	}

	if err := a.meetings.CreateForEvent(ctx, cand.EventID, model.ProviderJitsi, assignments); err != nil {
		a.release(ctx, cand.EventID)
		return fmt.Errorf("create meetings for event %d: %w", cand.EventID, err)
	}

	if err := a.events.Complete(ctx, cand.EventID); err != nil {
		// Meetings exist; the expiry sweep will finish the transition.
		log.Printf("scheduler: complete event %d after assembly: %v", cand.EventID, err)
	}

	a.broadcast.BroadcastStatus(ctx, cand.EventID, waitingroom.StatusMeetingsReady,
		"your group is ready, check your meeting link")
	a.notifyMeetingsReady(ctx, cand, assignments)

	log.Printf("scheduler: event %d assembled into %d meeting(s) for %d participant(s)",
		cand.EventID, len(assignments), len(entries))
	return nil
}

// release rolls the claim back; a failure here is logged only, since
// the stuck-claim sweep recovers the event anyway.
func (a *Assembler) release(ctx context.Context, eventID uint64) {
	if err := a.events.ReleaseClaim(ctx, eventID); err != nil {
		log.Printf("scheduler: release claim for event %d: %v", eventID, err)
	}
}

// notifyMeetingsReady queues one meetings_ready notification per
// assigned participant, carrying their personal room URL.
func (a *Assembler) notifyMeetingsReady(ctx context.Context, cand repository.AssemblyCandidate, assignments []repository.GroupAssignment) {
	enrolled, err := a.enrollments.ListEnrolled(ctx, cand.EventID)
	if err != nil {
		log.Printf("scheduler: list enrolled for event %d: %v", cand.EventID, err)
		return
	}
	byID := make(map[uint64]repository.EnrolledUser, len(enrolled))
	for _, u := range enrolled {
		byID[u.UserID] = u
	}
	queuedAt := time.Now().UTC().Format(time.RFC3339)
	for _, ga := range assignments {
		for _, uid := range ga.UserIDs {
			u, ok := byID[uid]
			if !ok {
				continue
			}
			a.notify(ctx, queue.NotificationEvent{
				Kind:             queue.KindMeetingsReady,
				EventID:          cand.EventID,
				ActivityTitle:    cand.ActivityTitle,
				UserID:           u.UserID,
				UserCode:         u.UserCode,
				Email:            u.Email,
				StartsAt:         cand.StartTime.UTC().Format(time.RFC3339),
				MeetingURL:       ga.RoomURL,
				UnsubscribeToken: u.UnsubscribeToken,
				QueuedAt:         queuedAt,
			})
		}
	}
}
