package waitingroom

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talkabout/talkabout/internal/broadcast"
	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/repository"
)

// fakeParticipants is an in-memory participantStore preserving join
// order, mirroring the unique (event, user) key of the real table.
type fakeParticipants struct {
	entries []*fakeEntry
	clock   time.Time
}

type fakeEntry struct {
	eventID  uint64
	userID   uint64
	userCode string
	status   model.ParticipantStatus
	joinedAt time.Time
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{clock: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (f *fakeParticipants) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeParticipants) find(eventID, userID uint64) *fakeEntry {
	for _, e := range f.entries {
		if e.eventID == eventID && e.userID == userID {
			return e
		}
	}
	return nil
}

func (f *fakeParticipants) Join(ctx context.Context, eventID, userID uint64, connectionID string) error {
	if e := f.find(eventID, userID); e != nil {
		e.status = model.ParticipantWaiting
		return nil
	}
	f.entries = append(f.entries, &fakeEntry{
		eventID:  eventID,
		userID:   userID,
		userCode: "U" + string(rune('A'+len(f.entries))),
		status:   model.ParticipantWaiting,
		joinedAt: f.tick(),
	})
	return nil
}

func (f *fakeParticipants) Heartbeat(ctx context.Context, eventID, userID uint64) error { return nil }

func (f *fakeParticipants) SetStatus(ctx context.Context, eventID, userID uint64, status model.ParticipantStatus) (bool, error) {
	e := f.find(eventID, userID)
	if e == nil || e.status == status {
		return false, nil
	}
	e.status = status
	return true, nil
}

func (f *fakeParticipants) Snapshot(ctx context.Context, eventID uint64) ([]repository.Entry, error) {
	var out []repository.Entry
	for _, e := range f.entries {
		if e.eventID == eventID && e.status.Active() {
			out = append(out, repository.Entry{
				UserID:   e.userID,
				UserCode: e.userCode,
				Status:   e.status,
				JoinedAt: e.joinedAt,
			})
		}
	}
	return out, nil
}

type fakeEvents struct{ status model.EventStatus }

func (f *fakeEvents) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	return model.Event{ID: id, Status: f.status}, nil
}

type fakeEnrollments struct{ enrolled map[uint64]bool }

func (f *fakeEnrollments) IsEnrolled(ctx context.Context, eventID, userID uint64) (bool, error) {
	return f.enrolled[userID], nil
}

func newTestRegistry(status model.EventStatus, enrolled ...uint64) (*Registry, *fakeParticipants, *broadcast.LocalBroadcaster) {
	parts := newFakeParticipants()
	en := &fakeEnrollments{enrolled: make(map[uint64]bool)}
	for _, id := range enrolled {
		en.enrolled[id] = true
	}
	bc := broadcast.NewLocal()
	return NewRegistry(&fakeEvents{status: status}, en, parts, bc), parts, bc
}

func recvMessage(t *testing.T, ch <-chan []byte) map[string]any {
	t.Helper()
	select {
	case payload := <-ch:
		var m map[string]any
		require.NoError(t, json.Unmarshal(payload, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
		return nil
	}
}

func TestRegistry_JoinBroadcastsList(t *testing.T) {
	req := require.New(t)
	reg, _, bc := newTestRegistry(model.EventInWaiting, 7)
	ctx := context.Background()

	ch, cancel := bc.Subscribe(ctx, 1)
	defer cancel()

	req.NoError(reg.Join(ctx, 1, 7, "conn-1"))

	msg := recvMessage(t, ch)
	req.Equal(TypeParticipantList, msg["type"])
	req.EqualValues(1, msg["count"])
}

func TestRegistry_JoinWithoutEnrollment(t *testing.T) {
	req := require.New(t)
	reg, parts, _ := newTestRegistry(model.EventInWaiting, 7)

	err := reg.Join(context.Background(), 1, 99, "conn-1")
	req.ErrorIs(err, repository.ErrNotEnrolled)
	req.Empty(parts.entries)
}

func TestRegistry_JoinAfterClaimIsRefused(t *testing.T) {
	req := require.New(t)
	for _, status := range []model.EventStatus{model.EventInProgress, model.EventCompleted, model.EventCancelled} {
		reg, _, _ := newTestRegistry(status, 7)
		err := reg.Join(context.Background(), 1, 7, "conn-1")
		req.ErrorIs(err, ErrRoomClosed, "status %s", status)
	}
}

func TestRegistry_ReconnectKeepsSingleEntry(t *testing.T) {
	req := require.New(t)
	reg, _, _ := newTestRegistry(model.EventInWaiting, 7)
	ctx := context.Background()

	req.NoError(reg.Join(ctx, 1, 7, "conn-1"))
	req.NoError(reg.MarkDisconnected(ctx, 1, 7))
	req.NoError(reg.Join(ctx, 1, 7, "conn-2"))

	snap, err := reg.Snapshot(ctx, 1)
	req.NoError(err)
	req.Len(snap, 1)
	req.Equal(model.ParticipantWaiting, snap[0].Status)
}

func TestRegistry_ReadyAndDisconnectBroadcast(t *testing.T) {
	req := require.New(t)
	reg, _, bc := newTestRegistry(model.EventInWaiting, 7, 8)
	ctx := context.Background()

	req.NoError(reg.Join(ctx, 1, 7, "conn-1"))
	req.NoError(reg.Join(ctx, 1, 8, "conn-2"))

	ch, cancel := bc.Subscribe(ctx, 1)
	defer cancel()

	req.NoError(reg.MarkReady(ctx, 1, 7))
	msg := recvMessage(t, ch)
	req.EqualValues(2, msg["count"])

	req.NoError(reg.MarkDisconnected(ctx, 1, 8))
	msg = recvMessage(t, ch)
	req.EqualValues(1, msg["count"])

	snap, err := reg.Snapshot(ctx, 1)
	req.NoError(err)
	req.Len(snap, 1)
	req.Equal(model.ParticipantReady, snap[0].Status)
}

func TestRegistry_SnapshotPreservesJoinOrder(t *testing.T) {
	req := require.New(t)
	reg, _, _ := newTestRegistry(model.EventInWaiting, 1, 2, 3)
	ctx := context.Background()

	req.NoError(reg.Join(ctx, 1, 2, "c2"))
	req.NoError(reg.Join(ctx, 1, 3, "c3"))
	req.NoError(reg.Join(ctx, 1, 1, "c1"))

	// User 2 reconnecting must not move to the back of the order.
	req.NoError(reg.MarkDisconnected(ctx, 1, 2))
	req.NoError(reg.Join(ctx, 1, 2, "c2-bis"))

	snap, err := reg.Snapshot(ctx, 1)
	req.NoError(err)
	ids := []uint64{snap[0].UserID, snap[1].UserID, snap[2].UserID}
	req.Equal([]uint64{2, 3, 1}, ids)
}

func TestRegistry_HeartbeatDoesNotBroadcast(t *testing.T) {
	req := require.New(t)
	reg, _, bc := newTestRegistry(model.EventInWaiting, 7)
	ctx := context.Background()

	req.NoError(reg.Join(ctx, 1, 7, "conn-1"))

	ch, cancel := bc.Subscribe(ctx, 1)
	defer cancel()

	req.NoError(reg.Heartbeat(ctx, 1, 7))
	select {
	case payload := <-ch:
		t.Fatalf("unexpected broadcast: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistry_BroadcastStatus(t *testing.T) {
	req := require.New(t)
	reg, _, bc := newTestRegistry(model.EventInWaiting, 7)
	ctx := context.Background()

	ch, cancel := bc.Subscribe(ctx, 1)
	defer cancel()

	reg.BroadcastStatus(ctx, 1, StatusMeetingsReady, "your meeting is ready")
	msg := recvMessage(t, ch)
	req.Equal(TypeEventStatus, msg["type"])
	req.Equal(StatusMeetingsReady, msg["status"])
}
