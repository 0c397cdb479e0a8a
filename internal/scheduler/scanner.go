package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// sweepStore is the slice of EventRepo the scanner's sweeps need.
type sweepStore interface {
	GetDetail(ctx context.Context, id uint64) (repository.EventDetail, error)
	ListReminderDue(ctx context.Context, stage repository.ReminderStage, now time.Time) ([]model.Event, error)
	MarkReminderSent(ctx context.Context, id uint64, stage repository.ReminderStage) error
	ListWaitingRoomDue(ctx context.Context, now time.Time) ([]model.Event, error)
	OpenWaitingRoom(ctx context.Context, id uint64) (bool, error)
	ListAssemblyDue(ctx context.Context, now time.Time) ([]repository.AssemblyCandidate, error)
	CompleteExpired(ctx context.Context, now time.Time) (int64, error)
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error)
}

// assemblyRunner runs the claim-and-assemble sequence for one due
// event; implemented by Assembler.
type assemblyRunner interface {
	AssembleEvent(ctx context.Context, cand repository.AssemblyCandidate) error
}

// tokenPurger removes expired refresh tokens; implemented by
// TokenRepo.  Optional housekeeping, may be nil.
type tokenPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scanner is the periodic driver.  Every tick it runs the reminder
// sweeps, opens due waiting rooms, dispatches due assemblies, closes
// expired events and reclaims stuck claims.  Every sweep is guarded
// by conditional writes in the store, so running several scanners
// against the same database stays safe; at worst ticks overlap and
// lose their races.
type Scanner struct {
	events      sweepStore
	enrollments emailLister
	assembler   assemblyRunner
	broadcast   statusBroadcaster
	notify      NotifyFunc
	tokens      tokenPurger

	interval     time.Duration
	reclaimAfter time.Duration
	baseURL      string

	now func() time.Time
}

// NewScanner wires a Scanner.  baseURL is the public origin used to
// build waiting-room links in notifications; tokens may be nil to
// skip refresh-token housekeeping.
func NewScanner(events sweepStore, enrollments emailLister, assembler assemblyRunner, broadcast statusBroadcaster, notify NotifyFunc, tokens tokenPurger, interval, reclaimAfter time.Duration, baseURL string) *Scanner {
	return &Scanner{
		events:       events,
		enrollments:  enrollments,
		assembler:    assembler,
		broadcast:    broadcast,
		notify:       notify,
		tokens:       tokens,
		interval:     interval,
		reclaimAfter: reclaimAfter,
		baseURL:      baseURL,
		now:          time.Now,
	}
}

// Run ticks until the context is cancelled.  It is meant to be
// launched once as a goroutine from main.
func (s *Scanner) Run(ctx context.Context) {
	log.Printf("scheduler: scanning every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every sweep once.  Sweeps are independent; one failing is
// logged and never blocks the others.
func (s *Scanner) Tick(ctx context.Context) {
	now := s.now().UTC()
	s.sweepReminders(ctx, repository.FirstReminder, queue.KindFirstReminder, now)
	s.sweepReminders(ctx, repository.SecondReminder, queue.KindSecondReminder, now)
	s.sweepWaitingRooms(ctx, now)
	s.sweepAssemblies(ctx, now)
	s.sweepExpired(ctx, now)
	s.sweepStuck(ctx, now)
	s.sweepTokens(ctx, now)
}

// sweepReminders queues the pre-event reminder for every due event
// and marks it sent.  The mark happens after queuing: losing a
// notification to a crash in between is acceptable, sending it twice
// on every later tick is not.
func (s *Scanner) sweepReminders(ctx context.Context, stage repository.ReminderStage, kind queue.NotificationKind, now time.Time) {
	due, err := s.events.ListReminderDue(ctx, stage, now)
	if err != nil {
		log.Printf("scheduler: list reminders (stage %d): %v", stage, err)
		return
	}
	for _, ev := range due {
		s.notifyEnrolled(ctx, ev.ID, kind, "")
		if err := s.events.MarkReminderSent(ctx, ev.ID, stage); err != nil {
			log.Printf("scheduler: mark reminder sent for event %d: %v", ev.ID, err)
		}
	}
}

// sweepWaitingRooms opens every due waiting room: a guarded
// SCHEDULED to IN_WAITING transition, a channel notice for anyone
// already connected, and a waiting_room_open notification per
// enrolled user.
func (s *Scanner) sweepWaitingRooms(ctx context.Context, now time.Time) {
	due, err := s.events.ListWaitingRoomDue(ctx, now)
	if err != nil {
		log.Printf("scheduler: list due waiting rooms: %v", err)
		return
	}
	for _, ev := range due {
		opened, err := s.events.OpenWaitingRoom(ctx, ev.ID)
		if err != nil {
			log.Printf("scheduler: open waiting room for event %d: %v", ev.ID, err)
			continue
		}
		if !opened {
			continue // another scanner got there first
		}
		log.Printf("scheduler: waiting room open for event %d", ev.ID)
		s.broadcast.BroadcastStatus(ctx, ev.ID, waitingroom.StatusWaitingOpen, "the waiting room is open")
		s.notifyEnrolled(ctx, ev.ID, queue.KindWaitingRoomOpen, s.waitingRoomURL(ev.ID))
	}
}

// sweepAssemblies dispatches one assembly goroutine per due event and
// waits for the batch.  The claim inside AssembleEvent serializes
// against other scanners, so parallel dispatch here is safe.
func (s *Scanner) sweepAssemblies(ctx context.Context, now time.Time) {
	due, err := s.events.ListAssemblyDue(ctx, now)
	if err != nil {
		log.Printf("scheduler: list due assemblies: %v", err)
		return
	}
	var wg sync.WaitGroup
	for _, cand := range due {
		wg.Add(1)
		go func(cand repository.AssemblyCandidate) {
			defer wg.Done()
			if err := s.assembler.AssembleEvent(ctx, cand); err != nil {
				log.Printf("scheduler: assemble event %d: %v", cand.EventID, err)
			}
		}(cand)
	}
	wg.Wait()
}

func (s *Scanner) sweepExpired(ctx context.Context, now time.Time) {
	n, err := s.events.CompleteExpired(ctx, now)
	if err != nil {
		log.Printf("scheduler: complete expired events: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: completed %d expired event(s)", n)
	}
}

func (s *Scanner) sweepStuck(ctx context.Context, now time.Time) {
	n, err := s.events.ReleaseStuck(ctx, now.Add(-s.reclaimAfter))
	if err != nil {
		log.Printf("scheduler: release stuck claims: %v", err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: released %d stuck claim(s)", n)
	}
}

func (s *Scanner) sweepTokens(ctx context.Context, now time.Time) {
	if s.tokens == nil {
		return
	}
	if _, err := s.tokens.PurgeExpired(ctx, now); err != nil {
		log.Printf("scheduler: purge refresh tokens: %v", err)
	}
}

func (s *Scanner) waitingRoomURL(eventID uint64) string {
	if s.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/v1/events/%d/waiting-room", s.baseURL, eventID)
}

// notifyEnrolled queues one notification of the given kind per
// enrolled user of the event.
func (s *Scanner) notifyEnrolled(ctx context.Context, eventID uint64, kind queue.NotificationKind, link string) {
	detail, err := s.events.GetDetail(ctx, eventID)
	if err != nil {
		log.Printf("scheduler: load event %d: %v", eventID, err)
		return
	}
	enrolled, err := s.enrollments.ListEnrolled(ctx, eventID)
	if err != nil {
		log.Printf("scheduler: list enrolled for event %d: %v", eventID, err)
		return
	}
	queuedAt := s.now().UTC().Format(time.RFC3339)
	for _, u := range enrolled {
		s.notify(ctx, queue.NotificationEvent{
			Kind:             kind,
			EventID:          eventID,
			ActivityTitle:    detail.ActivityTitle,
			UserID:           u.UserID,
			UserCode:         u.UserCode,
			Email:            u.Email,
			StartsAt:         detail.StartTime.UTC().Format(time.RFC3339),
			WaitingRoomURL:   link,
			UnsubscribeToken: u.UnsubscribeToken,
			QueuedAt:         queuedAt,
		})
	}
}

// QueueNotifier adapts the RabbitMQ publisher into a NotifyFunc.
// Publishing is fire and forget; the publisher already logs failures.
func QueueNotifier(publish func(ctx context.Context, ev queue.NotificationEvent) error) NotifyFunc {
	return func(ctx context.Context, ev queue.NotificationEvent) {
		_ = publish(ctx, ev)
	}
}
