// Package broadcast is the channel layer behind the waiting-room
// websockets.  Registry and scheduler mutations are published to a
// per-event channel; every server process that hosts connections for
// that event subscribes and fans the payloads out to its local
// sockets.  Redis pub/sub backs the production implementation so that
// broadcasts cross process boundaries; a process-local implementation
// exists for single-node setups and tests.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broadcaster publishes raw JSON payloads to an event's channel and
// lets consumers subscribe to them.  Delivery is best effort; a
// payload published while nobody subscribes is dropped.
type Broadcaster interface {
	// Publish sends payload to every current subscriber of the event's
	// channel.
	Publish(ctx context.Context, eventID uint64, payload []byte) error
	// Subscribe returns a channel of payloads for the event plus a
	// cancel function that releases the subscription.  The payload
	// channel is closed after cancel.
	Subscribe(ctx context.Context, eventID uint64) (<-chan []byte, func())
}

func channelName(eventID uint64) string {
	return fmt.Sprintf("waiting_room:%d", eventID)
}

// RedisBroadcaster distributes payloads over Redis pub/sub channels
// named waiting_room:{eventID}.
type RedisBroadcaster struct {
	rdb *redis.Client
}

// NewRedis returns a Broadcaster backed by the given Redis client.
func NewRedis(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

// Publish implements Broadcaster.
func (b *RedisBroadcaster) Publish(ctx context.Context, eventID uint64, payload []byte) error {
	return b.rdb.Publish(ctx, channelName(eventID), payload).Err()
}

// Subscribe implements Broadcaster.  The returned channel drains a
// dedicated Redis subscription; cancelling closes both.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, eventID uint64) (<-chan []byte, func()) {
	sub := b.rdb.Subscribe(ctx, channelName(eventID))
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	cancel := func() { _ = sub.Close() }
	return out, cancel
}

// LocalBroadcaster keeps subscriptions in process memory.  It is used
// when no Redis server is configured and by tests; semantics match
// the Redis implementation except that payloads never leave the
// process.
type LocalBroadcaster struct {
	mu   sync.Mutex
	next int
	subs map[uint64]map[int]chan []byte
}

// NewLocal returns an empty process-local Broadcaster.
func NewLocal() *LocalBroadcaster {
	return &LocalBroadcaster{subs: make(map[uint64]map[int]chan []byte)}
}

// Publish implements Broadcaster.  Slow subscribers are skipped
// rather than blocking the publisher.
func (b *LocalBroadcaster) Publish(ctx context.Context, eventID uint64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[eventID] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe implements Broadcaster.
func (b *LocalBroadcaster) Subscribe(ctx context.Context, eventID uint64) (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan []byte, 16)
	if b.subs[eventID] == nil {
		b.subs[eventID] = make(map[int]chan []byte)
	}
	b.subs[eventID][id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[eventID][id]; ok {
			delete(b.subs[eventID], id)
			if len(b.subs[eventID]) == 0 {
				delete(b.subs, eventID)
			}
			close(sub)
		}
	}
	return ch, cancel
}
