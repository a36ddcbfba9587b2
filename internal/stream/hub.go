package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"backend-kwenda/internal/trips"
)

// Hub fans tracking snapshots out to every websocket watcher of a trip.
// With a redis client attached, broadcasts also cross instance boundaries
// through pub/sub.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	TripID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(tripID string) *Client {
	client := &Client{
		TripID: tripID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tripID] == nil {
		h.clients[tripID] = map[*Client]struct{}{}
	}
	h.clients[tripID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if watchers, ok := h.clients[client.TripID]; ok {
		delete(watchers, client)
		if len(watchers) == 0 {
			delete(h.clients, client.TripID)
		}
	}
	close(client.Send)
}

// BroadcastTracking matches the synchronizer's broadcast hook.
func (h *Hub) BroadcastTracking(tripID string, data trips.TrackingData) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal tracking snapshot: %v", err)
		return
	}
	h.Broadcast(tripID, payload)
}

// Broadcast delivers a payload to every watcher of the trip. With redis
// attached the payload travels through pub/sub so watchers on other
// instances see it too; local delivery then happens on the subscription
// side, which keeps each watcher at exactly one copy.
func (h *Hub) Broadcast(tripID string, payload []byte) {
	if h.redis == nil {
		h.deliverLocal(tripID, payload)
		return
	}
	err := h.redis.Publish(context.Background(), redisChannel(tripID), payload).Err()
	if err != nil {
		log.Printf("redis publish error: %v", err)
		h.deliverLocal(tripID, payload)
	}
}

func (h *Hub) deliverLocal(tripID string, payload []byte) {
	h.mu.RLock()
	watchers := h.clients[tripID]
	h.mu.RUnlock()

	// Slow readers are skipped, never blocked on.
	for client := range watchers {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "trip:*:stream")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		if tripID := tripIDFromChannel(msg.Channel); tripID != "" {
			h.deliverLocal(tripID, []byte(msg.Payload))
		}
	}
}

func redisChannel(tripID string) string {
	return "trip:" + tripID + ":stream"
}

func tripIDFromChannel(ch string) string {
	// trip:{id}:stream
	const prefix = "trip:"
	const suffix = ":stream"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
