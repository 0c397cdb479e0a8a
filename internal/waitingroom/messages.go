// Package waitingroom implements the real-time waiting room: the
// durable participant registry, the hub of live websocket
// connections, and the JSON message contract spoken over them.
package waitingroom

import (
	"time"

	"github.com/talkabout/talkabout/internal/repository"
)

// Message types exchanged with clients.
const (
	TypeParticipantList = "participant_list"
	TypeEventStatus     = "event_status"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeReady           = "ready"
)

// Event status values pushed over the channel.
const (
	StatusWaitingOpen   = "in_waiting"
	StatusMeetingsReady = "meetings_ready"
	StatusCompleted     = "completed"
	StatusCancelled     = "cancelled"
)

// WireParticipant is one entry of a participant_list message.
type WireParticipant struct {
	UserRef  string `json:"userRef"`
	JoinedAt string `json:"joinedAt"`
	Status   string `json:"status"`
}

// ParticipantListMessage carries the full visible participant set.
// It is rebuilt from a registry snapshot after every mutation that
// changes the visible set.
type ParticipantListMessage struct {
	Type         string            `json:"type"`
	Participants []WireParticipant `json:"participants"`
	Count        int               `json:"count"`
}

// NewParticipantList converts a registry snapshot into its wire form.
func NewParticipantList(entries []repository.Entry) ParticipantListMessage {
	list := make([]WireParticipant, 0, len(entries))
	for _, e := range entries {
		list = append(list, WireParticipant{
			UserRef:  e.UserCode,
			JoinedAt: e.JoinedAt.UTC().Format(time.RFC3339),
			Status:   string(e.Status),
		})
	}
	return ParticipantListMessage{Type: TypeParticipantList, Participants: list, Count: len(list)}
}

// EventStatusMessage announces a lifecycle change of the event, e.g.
// the terminal "meetings_ready" or "completed" notices.
type EventStatusMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PongMessage answers a client ping.
type PongMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ClientMessage is what clients send: {"type":"ping"} as a heartbeat
// or {"type":"ready"} to flag readiness.
type ClientMessage struct {
	Type string `json:"type"`
}
