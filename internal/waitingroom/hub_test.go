package waitingroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talkabout/talkabout/internal/broadcast"
)

// fakeConn records delivered payloads; when full is set it refuses
// delivery like a client with a saturated queue.
type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	full     bool
	closed   bool
}

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.payloads = append(c.payloads, payload)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestHub_FansOutToAllConnections(t *testing.T) {
	req := require.New(t)
	bc := broadcast.NewLocal()
	hub := NewHub(bc)

	a, b := &fakeConn{}, &fakeConn{}
	hub.Add(1, a)
	hub.Add(1, b)
	other := &fakeConn{}
	hub.Add(2, other)

	req.NoError(bc.Publish(context.Background(), 1, []byte(`{"type":"event_status"}`)))

	req.Eventually(func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Zero(other.count())
}

func TestHub_RemoveLastConnectionCancelsSubscription(t *testing.T) {
	req := require.New(t)
	bc := broadcast.NewLocal()
	hub := NewHub(bc)

	a, b := &fakeConn{}, &fakeConn{}
	hub.Add(1, a)
	hub.Add(1, b)
	req.Equal(2, hub.LocalCount(1))

	hub.Remove(1, a)
	req.True(a.isClosed())
	req.Equal(1, hub.LocalCount(1))

	hub.Remove(1, b)
	req.Equal(0, hub.LocalCount(1))

	// With the subscription released a publish reaches nobody.
	req.NoError(bc.Publish(context.Background(), 1, []byte("x")))
	time.Sleep(20 * time.Millisecond)
	req.Zero(b.count())
}

func TestHub_RemoveUnknownConnection(t *testing.T) {
	hub := NewHub(broadcast.NewLocal())
	hub.Remove(42, &fakeConn{})
}

func TestHub_EvictsSaturatedConnection(t *testing.T) {
	req := require.New(t)
	bc := broadcast.NewLocal()
	hub := NewHub(bc)

	healthy := &fakeConn{}
	stuck := &fakeConn{full: true}
	hub.Add(1, healthy)
	hub.Add(1, stuck)

	req.NoError(bc.Publish(context.Background(), 1, []byte("x")))

	req.Eventually(func() bool { return hub.LocalCount(1) == 1 && stuck.isClosed() }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return healthy.count() == 1 }, time.Second, 5*time.Millisecond)
}
