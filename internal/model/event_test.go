package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventStatusTransitions(t *testing.T) {
	req := require.New(t)

	req.True(EventScheduled.CanTransition(EventInWaiting))
	req.True(EventInWaiting.CanTransition(EventInProgress))
	req.True(EventInProgress.CanTransition(EventCompleted))
	// Claim rollback is the only way back.
	req.True(EventInProgress.CanTransition(EventInWaiting))
	req.True(EventScheduled.CanTransition(EventCancelled))

	// No skipping ahead or moving backwards otherwise.
	req.False(EventScheduled.CanTransition(EventInProgress))
	req.False(EventInWaiting.CanTransition(EventScheduled))
	req.False(EventCompleted.CanTransition(EventInWaiting))
	req.False(EventCancelled.CanTransition(EventScheduled))
	req.False(EventCompleted.CanTransition(EventCancelled))
}

func TestEventStatusTerminal(t *testing.T) {
	req := require.New(t)
	req.True(EventCompleted.Terminal())
	req.True(EventCancelled.Terminal())
	req.False(EventScheduled.Terminal())
	req.False(EventInWaiting.Terminal())
	req.False(EventInProgress.Terminal())
}

func TestWaitingRoomOpensAt(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := Event{StartTime: start, WaitMinutes: 15}
	require.Equal(t, start.Add(-15*time.Minute), ev.WaitingRoomOpensAt())
}

func TestParticipantStatusActive(t *testing.T) {
	req := require.New(t)
	req.True(ParticipantWaiting.Active())
	req.True(ParticipantReady.Active())
	req.False(ParticipantDisconnected.Active())
}
