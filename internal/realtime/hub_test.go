package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loopbackBus mimics Redis pub/sub, including delivering a publisher its
// own messages.
type loopbackBus struct {
	mu       sync.Mutex
	handlers map[string][]func(origin, event string, payload []byte)
	cancels  int
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[string][]func(origin, event string, payload []byte))}
}

func (b *loopbackBus) PublishStreamEvent(origin, streamID, event string, payload []byte) error {
	b.mu.Lock()
	hs := append([](func(origin, event string, payload []byte))(nil), b.handlers[streamID]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(origin, event, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeStream(streamID string, handler func(origin, event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	b.handlers[streamID] = append(b.handlers[streamID], handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.cancels++
		b.mu.Unlock()
	}, nil
}

func (b *loopbackBus) cancelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancels
}

func testClient(hub *Hub, id, streamID string, buf int) *Client {
	return &Client{
		ID:       id,
		StreamID: streamID,
		hub:      hub,
		send:     make(chan WSMessage, buf),
		logger:   zap.NewNop(),
	}
}

func TestHubPublishDeliversOnceWithRedis(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(zap.NewNop(), bus, bus)

	c := testClient(hub, "c1", "s1", 8)
	hub.Register(c)

	// The bus echoes the hub's own publish back to it; local subscribers
	// must still see the event exactly once.
	hub.Publish("s1", "frame_analyzed", map[string]string{"stream_id": "s1"})
	require.Len(t, c.send, 1)
	msg := <-c.send
	assert.Equal(t, "frame_analyzed", msg.Event)
}

func TestHubDeliversCrossInstanceEvents(t *testing.T) {
	bus := newLoopbackBus()
	hubA := NewHub(zap.NewNop(), bus, bus)
	hubB := NewHub(zap.NewNop(), bus, bus)

	ca := testClient(hubA, "ca", "s1", 8)
	cb := testClient(hubB, "cb", "s1", 8)
	hubA.Register(ca)
	hubB.Register(cb)

	hubA.Publish("s1", "stream_degraded", map[string]string{"stream_id": "s1"})
	assert.Len(t, ca.send, 1, "publishing instance delivers locally once")
	assert.Len(t, cb.send, 1, "other instance delivers via the bus once")
}

func TestHubPublishScopedToStream(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c1 := testClient(hub, "c1", "s1", 8)
	c2 := testClient(hub, "c2", "s2", 8)
	hub.Register(c1)
	hub.Register(c2)

	hub.Publish("s1", "stream_stopped", map[string]string{"stream_id": "s1"})
	assert.Len(t, c1.send, 1)
	assert.Empty(t, c2.send)
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := testClient(hub, "c1", "s1", 1)
	hub.Register(c)

	hub.Publish("s1", "e1", 1)
	hub.Publish("s1", "e2", 2)
	hub.Publish("s1", "e3", 3)

	assert.Len(t, c.send, 1, "overflow beyond the send buffer is dropped")
}

func TestHubRegisterUnregisterLifecycle(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(zap.NewNop(), bus, bus)

	c1 := testClient(hub, "c1", "s1", 8)
	c2 := testClient(hub, "c2", "s1", 8)
	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 2, hub.SubscriberCount("s1"))

	hub.Unregister(c1)
	assert.Equal(t, 1, hub.SubscriberCount("s1"))
	assert.Equal(t, 0, bus.cancelCount(), "subscription held while clients remain")

	hub.Unregister(c2)
	assert.Equal(t, 0, hub.SubscriberCount("s1"))
	assert.Equal(t, 1, bus.cancelCount(), "last client leaving cancels the subscription")
}
