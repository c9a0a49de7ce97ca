// Package realtime is the outbound event plane: a WebSocket hub fanning
// analysis events out to subscribers, with Redis pub/sub bridging
// instances.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub maintains stream_id -> set of connections and broadcasts events.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to
// Redis so subscribers connected to other instances see the same feed.
// Messages are tagged with the publishing instance, because Redis delivers
// a publisher its own messages; the subscription handler drops those so
// local subscribers see each event exactly once.
type Hub struct {
	// instanceID identifies this hub in Redis messages so self-originated
	// deliveries can be discarded.
	instanceID string
	// streamID -> map[clientID]*Client
	streams  map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per stream
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes events to Redis for cross-instance broadcast.
// origin identifies the publishing hub instance.
type RedisPublisher interface {
	PublishStreamEvent(origin, streamID, event string, payload []byte) error
}

// RedisSubscriber subscribes to stream channels and invokes handler for
// incoming events, including the publishing instance's origin tag.
type RedisSubscriber interface {
	SubscribeStream(streamID string, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub/redisSub may both be nil
// for single-instance deployments.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		instanceID: uuid.New().String(),
		streams:    make(map[string]map[string]*Client),
		subs:       make(map[string]func()),
		logger:     logger,
		redis:      redisPub,
		redisSub:   redisSub,
	}
}

// Register adds a client to a stream feed. Starts the Redis subscription
// for this stream when the first client arrives.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.streams[c.StreamID] == nil {
		h.streams[c.StreamID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeStream(c.StreamID, func(origin, event string, payload []byte) {
				if origin == h.instanceID {
					// Publish already broadcast this locally.
					return
				}
				h.broadcastLocal(c.StreamID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.StreamID] = cancel
			}
		}
	}
	h.streams[c.StreamID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID))
}

// Unregister removes a client. Cancels the Redis subscription when the
// last client for the stream leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.streams[c.StreamID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.streams, c.StreamID)
			if cancel, ok := h.subs[c.StreamID]; ok {
				cancel()
				delete(h.subs, c.StreamID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID))
}

// Publish implements the core's event publisher contract: local broadcast
// plus Redis publish for other instances. Never blocks; slow subscriber
// buffers drop.
func (h *Hub) Publish(streamID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(streamID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishStreamEvent(h.instanceID, streamID, event, data)
	}
}

// SubscriberCount returns the number of connected clients for a stream.
func (h *Hub) SubscriberCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}

func (h *Hub) broadcastLocal(streamID, event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.streams[streamID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}
