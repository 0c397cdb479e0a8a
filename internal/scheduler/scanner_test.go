package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// fakeSweepStore drives the scanner sweeps from in-memory events.
type fakeSweepStore struct {
	mu     sync.Mutex
	events map[uint64]*model.Event
	detail map[uint64]repository.EventDetail
}

func newFakeSweepStore() *fakeSweepStore {
	return &fakeSweepStore{
		events: make(map[uint64]*model.Event),
		detail: make(map[uint64]repository.EventDetail),
	}
}

func (f *fakeSweepStore) add(ev model.Event, title string, maxPerRoom uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := ev
	f.events[ev.ID] = &e
	f.detail[ev.ID] = repository.EventDetail{Event: e, ActivityTitle: title, MaxPerRoom: maxPerRoom}
}

func (f *fakeSweepStore) GetDetail(ctx context.Context, id uint64) (repository.EventDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.detail[id]
	if !ok {
		return repository.EventDetail{}, repository.ErrEventNotFound
	}
	return d, nil
}

func (f *fakeSweepStore) ListReminderDue(ctx context.Context, stage repository.ReminderStage, now time.Time) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, ev := range f.events {
		if ev.Status != model.EventScheduled {
			continue
		}
		mins, sent := ev.FirstReminderMinutes, ev.FirstReminderSent
		if stage == repository.SecondReminder {
			mins, sent = ev.SecondReminderMinutes, ev.SecondReminderSent
		}
		if mins == nil || sent {
			continue
		}
		if !ev.StartTime.Add(-time.Duration(*mins) * time.Minute).After(now) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) MarkReminderSent(ctx context.Context, id uint64, stage repository.ReminderStage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stage == repository.FirstReminder {
		f.events[id].FirstReminderSent = true
	} else {
		f.events[id].SecondReminderSent = true
	}
	return nil
}

func (f *fakeSweepStore) ListWaitingRoomDue(ctx context.Context, now time.Time) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, ev := range f.events {
		if ev.Status != model.EventScheduled || ev.WaitingEmailSent {
			continue
		}
		if !ev.StartTime.Add(-time.Duration(ev.WaitMinutes) * time.Minute).After(now) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) OpenWaitingRoom(ctx context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := f.events[id]
	if ev.Status != model.EventScheduled {
		return false, nil
	}
	ev.Status = model.EventInWaiting
	ev.WaitingEmailSent = true
	return true, nil
}

func (f *fakeSweepStore) ListAssemblyDue(ctx context.Context, now time.Time) ([]repository.AssemblyCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.AssemblyCandidate
	for _, ev := range f.events {
		if ev.Status == model.EventInWaiting && !ev.StartTime.After(now) {
			d := f.detail[ev.ID]
			out = append(out, repository.AssemblyCandidate{
				EventID:       ev.ID,
				ActivityTitle: d.ActivityTitle,
				MaxPerRoom:    d.MaxPerRoom,
				StartTime:     ev.StartTime,
			})
		}
	}
	return out, nil
}

func (f *fakeSweepStore) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if !ev.Status.Terminal() && ev.EndTime.Before(now) {
			ev.Status = model.EventCompleted
			n++
		}
	}
	return n, nil
}

func (f *fakeSweepStore) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.Status == model.EventInProgress && ev.StartTime.Before(cutoff) {
			ev.Status = model.EventInWaiting
			n++
		}
	}
	return n, nil
}

func (f *fakeSweepStore) status(id uint64) model.EventStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id].Status
}

// noopAssembler records dispatches without doing work.
type noopAssembler struct {
	mu    sync.Mutex
	calls []uint64
}

func (a *noopAssembler) AssembleEvent(ctx context.Context, cand repository.AssemblyCandidate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, cand.EventID)
	return nil
}

func minsPtr(v uint32) *uint32 { return &v }

func newTestScanner(store *fakeSweepStore, asm assemblyRunner, bc *fakeBroadcast, rec *notifyRecorder, at time.Time) *Scanner {
	s := NewScanner(store, &fakeEnrolled{users: enrolledFor(2)}, asm, bc, rec.notify, nil,
		time.Second, 10*time.Minute, "https://talkabout.example.com")
	s.now = func() time.Time { return at }
	return s
}

func TestScanner_OpensDueWaitingRoomOnce(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	store.add(model.Event{
		ID:          1,
		StartTime:   now.Add(5 * time.Minute),
		EndTime:     now.Add(35 * time.Minute),
		WaitMinutes: 10,
		Status:      model.EventScheduled,
	}, "Morning circles", 3)

	bc := &fakeBroadcast{}
	rec := &notifyRecorder{}
	s := newTestScanner(store, &noopAssembler{}, bc, rec, now)

	s.Tick(context.Background())
	req.Equal(model.EventInWaiting, store.status(1))
	req.Equal([]string{waitingroom.StatusWaitingOpen}, bc.statuses)
	req.Len(rec.events, 2)
	req.Equal(queue.KindWaitingRoomOpen, rec.events[0].Kind)
	req.Equal("https://talkabout.example.com/v1/events/1/waiting-room", rec.events[0].WaitingRoomURL)
	req.Equal("Morning circles", rec.events[0].ActivityTitle)

	// A second tick finds nothing left to open or announce.
	s.Tick(context.Background())
	req.Len(bc.statuses, 1)
	req.Len(rec.events, 2)
}

func TestScanner_NotYetDueWaitingRoomStaysClosed(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	store.add(model.Event{
		ID:          1,
		StartTime:   now.Add(30 * time.Minute),
		EndTime:     now.Add(time.Hour),
		WaitMinutes: 10,
		Status:      model.EventScheduled,
	}, "Morning circles", 3)

	s := newTestScanner(store, &noopAssembler{}, &fakeBroadcast{}, &notifyRecorder{}, now)
	s.Tick(context.Background())
	req.Equal(model.EventScheduled, store.status(1))
}

func TestScanner_RemindersSentOnce(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	store.add(model.Event{
		ID:                    1,
		StartTime:             now.Add(20 * time.Minute),
		EndTime:               now.Add(time.Hour),
		WaitMinutes:           5,
		FirstReminderMinutes:  minsPtr(24 * 60),
		SecondReminderMinutes: minsPtr(30),
		Status:                model.EventScheduled,
	}, "Morning circles", 3)

	rec := &notifyRecorder{}
	s := newTestScanner(store, &noopAssembler{}, &fakeBroadcast{}, rec, now)

	s.Tick(context.Background())
	// Both stages are overdue: two kinds, two enrolled users each.
	req.Len(rec.events, 4)
	kinds := map[queue.NotificationKind]int{}
	for _, ev := range rec.events {
		kinds[ev.Kind]++
	}
	req.Equal(2, kinds[queue.KindFirstReminder])
	req.Equal(2, kinds[queue.KindSecondReminder])

	s.Tick(context.Background())
	req.Len(rec.events, 4)
}

func TestScanner_DispatchesDueAssemblies(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	store.add(model.Event{
		ID:        1,
		StartTime: now.Add(-time.Minute),
		EndTime:   now.Add(30 * time.Minute),
		Status:    model.EventInWaiting,
	}, "Morning circles", 3)
	store.add(model.Event{
		ID:        2,
		StartTime: now.Add(10 * time.Minute),
		EndTime:   now.Add(40 * time.Minute),
		Status:    model.EventInWaiting,
	}, "Evening circles", 4)

	asm := &noopAssembler{}
	s := newTestScanner(store, asm, &fakeBroadcast{}, &notifyRecorder{}, now)
	s.Tick(context.Background())

	req.Equal([]uint64{1}, asm.calls)
}

func TestScanner_ReclaimsStuckEvent(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	// Claimed 30 minutes ago, no meetings: well past the 10 minute cutoff.
	store.add(model.Event{
		ID:        1,
		StartTime: now.Add(-30 * time.Minute),
		EndTime:   now.Add(30 * time.Minute),
		Status:    model.EventInProgress,
	}, "Morning circles", 3)

	asm := &noopAssembler{}
	s := newTestScanner(store, asm, &fakeBroadcast{}, &notifyRecorder{}, now)
	s.Tick(context.Background())

	// Released back to IN_WAITING; the same tick's assembly sweep ran
	// before the reclaim, so the retry lands on the next tick.
	req.Equal(model.EventInWaiting, store.status(1))
	s.Tick(context.Background())
	req.Equal([]uint64{1}, asm.calls)
}

func TestScanner_CompletesExpiredEvents(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeSweepStore()
	store.add(model.Event{
		ID:               1,
		StartTime:        now.Add(-2 * time.Hour),
		EndTime:          now.Add(-time.Hour),
		WaitingEmailSent: true,
		Status:           model.EventInWaiting,
	}, "Morning circles", 3)

	s := newTestScanner(store, &noopAssembler{}, &fakeBroadcast{}, &notifyRecorder{}, now)
	s.Tick(context.Background())
	req.Equal(model.EventCompleted, store.status(1))
}
