package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// fakeEventStore backs claimStore with the same compare-and-set
// semantics as the real conditional UPDATE.
type fakeEventStore struct {
	mu     sync.Mutex
	status map[uint64]model.EventStatus
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{status: make(map[uint64]model.EventStatus)}
}

func (f *fakeEventStore) get(id uint64) model.EventStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[id]
}

func (f *fakeEventStore) cas(id uint64, from, to model.EventStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status[id] != from {
		return false
	}
	f.status[id] = to
	return true
}

func (f *fakeEventStore) ClaimForAssembly(ctx context.Context, id uint64) (bool, error) {
	return f.cas(id, model.EventInWaiting, model.EventInProgress), nil
}

func (f *fakeEventStore) ReleaseClaim(ctx context.Context, id uint64) error {
	f.cas(id, model.EventInProgress, model.EventInWaiting)
	return nil
}

func (f *fakeEventStore) Complete(ctx context.Context, id uint64) error {
	if !f.cas(id, model.EventInProgress, model.EventCompleted) {
		return repository.ErrInvalidStateTransition
	}
	return nil
}

type fakeRooms struct{ entries []repository.Entry }

func (f *fakeRooms) Snapshot(ctx context.Context, eventID uint64) ([]repository.Entry, error) {
	return f.entries, nil
}

type fakeMeetings struct {
	mu      sync.Mutex
	fail    error
	created [][]repository.GroupAssignment
}

func (f *fakeMeetings) CreateForEvent(ctx context.Context, eventID uint64, provider model.MeetingProvider, groups []repository.GroupAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.created = append(f.created, groups)
	return nil
}

func (f *fakeMeetings) assemblies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeBroadcast struct {
	mu       sync.Mutex
	statuses []string
}

func (f *fakeBroadcast) BroadcastStatus(ctx context.Context, eventID uint64, status, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

type fakeEnrolled struct{ users []repository.EnrolledUser }

func (f *fakeEnrolled) ListEnrolled(ctx context.Context, eventID uint64) ([]repository.EnrolledUser, error) {
	return f.users, nil
}

type notifyRecorder struct {
	mu     sync.Mutex
	events []queue.NotificationEvent
}

func (n *notifyRecorder) notify(ctx context.Context, ev queue.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func entriesFor(n int) []repository.Entry {
	out := make([]repository.Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, repository.Entry{
			UserID:   uint64(i),
			UserCode: fmt.Sprintf("U%03d", i),
			Status:   model.ParticipantWaiting,
			JoinedAt: time.Date(2024, 5, 1, 10, 0, i, 0, time.UTC),
		})
	}
	return out
}

func enrolledFor(n int) []repository.EnrolledUser {
	out := make([]repository.EnrolledUser, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, repository.EnrolledUser{
			UserID:   uint64(i),
			UserCode: fmt.Sprintf("U%03d", i),
			Email:    fmt.Sprintf("u%03d@example.com", i),
		})
	}
	return out
}

func testCandidate() repository.AssemblyCandidate {
	return repository.AssemblyCandidate{
		EventID:       1,
		ActivityTitle: "Morning circles",
		MaxPerRoom:    3,
		StartTime:     time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestAssembler_CreatesBalancedMeetings(t *testing.T) {
	req := require.New(t)
	events := newFakeEventStore()
	events.status[1] = model.EventInWaiting
	meetings := &fakeMeetings{}
	bc := &fakeBroadcast{}
	rec := &notifyRecorder{}
	a := NewAssembler(events, &fakeRooms{entries: entriesFor(7)}, &fakeEnrolled{users: enrolledFor(7)},
		meetings, bc, rec.notify, "meet.jit.si")

	req.NoError(a.AssembleEvent(context.Background(), testCandidate()))

	req.Equal(model.EventCompleted, events.get(1))
	req.Equal(1, meetings.assemblies())
	groups := meetings.created[0]
	req.Len(groups, 3)
	req.Len(groups[0].UserIDs, 3)
	req.Len(groups[1].UserIDs, 2)
	req.Len(groups[2].UserIDs, 2)
	req.Equal("https://meet.jit.si/talkabout-event-1-group-1", groups[0].RoomURL)
	req.Equal("talkabout-event-1-group-2", groups[1].ProviderRoomID)

	req.Equal([]string{waitingroom.StatusMeetingsReady}, bc.statuses)
	req.Len(rec.events, 7)
	req.Equal(queue.KindMeetingsReady, rec.events[0].Kind)
	req.Equal(groups[0].RoomURL, rec.events[0].MeetingURL)
}

func TestAssembler_ConcurrentClaimsAssembleOnce(t *testing.T) {
	req := require.New(t)
	events := newFakeEventStore()
	events.status[1] = model.EventInWaiting
	meetings := &fakeMeetings{}
	bc := &fakeBroadcast{}
	rec := &notifyRecorder{}
	a := NewAssembler(events, &fakeRooms{entries: entriesFor(6)}, &fakeEnrolled{users: enrolledFor(6)},
		meetings, bc, rec.notify, "meet.jit.si")

	const scanners = 16
	var wg sync.WaitGroup
	errs := make(chan error, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.AssembleEvent(context.Background(), testCandidate())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	req.Equal(1, meetings.assemblies())
	req.Equal(model.EventCompleted, events.get(1))
	req.Len(bc.statuses, 1)
}

func TestAssembler_FailedPersistReleasesClaim(t *testing.T) {
	req := require.New(t)
	events := newFakeEventStore()
	events.status[1] = model.EventInWaiting
	boom := errors.New("deadlock")
	meetings := &fakeMeetings{fail: boom}
	bc := &fakeBroadcast{}
	rec := &notifyRecorder{}
	a := NewAssembler(events, &fakeRooms{entries: entriesFor(4)}, &fakeEnrolled{users: enrolledFor(4)},
		meetings, bc, rec.notify, "meet.jit.si")

	err := a.AssembleEvent(context.Background(), testCandidate())
	req.ErrorIs(err, boom)

	// Claim rolled back so the next tick can retry.
	req.Equal(model.EventInWaiting, events.get(1))
	req.Zero(meetings.assemblies())
	req.Empty(bc.statuses)
	req.Empty(rec.events)

	// Retry without the fault succeeds.
	meetings.fail = nil
	req.NoError(a.AssembleEvent(context.Background(), testCandidate()))
	req.Equal(model.EventCompleted, events.get(1))
	req.Equal(1, meetings.assemblies())
}

func TestAssembler_TooFewParticipantsCompletesWithoutMeetings(t *testing.T) {
	req := require.New(t)
	for _, n := range []int{0, 1} {
		events := newFakeEventStore()
		events.status[1] = model.EventInWaiting
		meetings := &fakeMeetings{}
		bc := &fakeBroadcast{}
		rec := &notifyRecorder{}
		a := NewAssembler(events, &fakeRooms{entries: entriesFor(n)}, &fakeEnrolled{users: enrolledFor(n)},
			meetings, bc, rec.notify, "meet.jit.si")

		req.NoError(a.AssembleEvent(context.Background(), testCandidate()))
		req.Equal(model.EventCompleted, events.get(1), "n=%d", n)
		req.Zero(meetings.assemblies(), "n=%d", n)
		req.Equal([]string{waitingroom.StatusCompleted}, bc.statuses, "n=%d", n)
		req.Empty(rec.events, "n=%d", n)
	}
}

func TestAssembler_SkipsAlreadyClaimedEvent(t *testing.T) {
	req := require.New(t)
	events := newFakeEventStore()
	events.status[1] = model.EventInProgress
	meetings := &fakeMeetings{}
	a := NewAssembler(events, &fakeRooms{entries: entriesFor(5)}, &fakeEnrolled{},
		meetings, &fakeBroadcast{}, (&notifyRecorder{}).notify, "meet.jit.si")

	req.NoError(a.AssembleEvent(context.Background(), testCandidate()))
	req.Zero(meetings.assemblies())
	req.Equal(model.EventInProgress, events.get(1))
}
