package waitingroom

import (
	"context"
	"sync"

	"github.com/talkabout/talkabout/internal/broadcast"
)

// Conn is the hub's view of a live connection: an outbound sink that
// may refuse delivery when dead.  *Client implements it.
type Conn interface {
	Send(payload []byte) bool
	Close()
}

// Hub tracks the websocket connections of this process, keyed by
// event id, and pumps broadcast payloads to them.  The first
// connection for an event opens a subscription on the broadcast
// channel; the last one leaving closes it.  All state is private to
// the hub and guarded by one mutex; connection handlers and the
// subscription pumps never share structures directly.
type Hub struct {
	bc broadcast.Broadcaster

	mu    sync.Mutex
	rooms map[uint64]*hubRoom
}

type hubRoom struct {
	conns  map[Conn]struct{}
	cancel func()
}

// NewHub returns a Hub fanning out payloads from the given
// broadcaster.
func NewHub(bc broadcast.Broadcaster) *Hub {
	return &Hub{bc: bc, rooms: make(map[uint64]*hubRoom)}
}

// Add registers a connection for an event, subscribing to the event's
// broadcast channel if this is the first local connection.
func (h *Hub) Add(eventID uint64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[eventID]
	if !ok {
		payloads, cancel := h.bc.Subscribe(context.Background(), eventID)
		room = &hubRoom{conns: make(map[Conn]struct{}), cancel: cancel}
		h.rooms[eventID] = room
		go h.pump(eventID, payloads)
	}
	room.conns[c] = struct{}{}
}

// Remove drops a connection.  When the event's last local connection
// is gone the broadcast subscription is released.  Removing an
// unknown connection is a no-op.
func (h *Hub) Remove(eventID uint64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[eventID]
	if !ok {
		return
	}
	if _, ok := room.conns[c]; !ok {
		return
	}
	delete(room.conns, c)
	c.Close()
	if len(room.conns) == 0 {
		room.cancel()
		delete(h.rooms, eventID)
	}
}

// pump forwards subscription payloads to every local connection of
// the event.  It exits when the subscription channel closes.  A
// connection whose queue is full is evicted on the spot; its handler
// notices the closed socket and runs its normal disconnect path.
func (h *Hub) pump(eventID uint64, payloads <-chan []byte) {
	for payload := range payloads {
		h.mu.Lock()
		room, ok := h.rooms[eventID]
		if !ok {
			h.mu.Unlock()
			return
		}
		var dead []Conn
		for c := range room.conns {
			if !c.Send(payload) {
				dead = append(dead, c)
			}
		}
		h.mu.Unlock()
		for _, c := range dead {
			h.Remove(eventID, c)
		}
	}
}

// LocalCount reports how many connections this process holds for an
// event.  Used by the stats endpoint.
func (h *Hub) LocalCount(eventID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[eventID]
	if !ok {
		return 0
	}
	return len(room.conns)
}
