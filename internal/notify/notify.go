package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier is the toast/notification sink. Calls are fire-and-forget: a
// failed publish is logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, topic, event, message string)
}

type event struct {
	Event   string    `json:"event"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RedisNotifier publishes toast events on notify:{topic}.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Notify(ctx context.Context, topic, ev, message string) {
	payload, _ := json.Marshal(event{Event: ev, Message: message, At: time.Now()})
	if err := n.rdb.Publish(ctx, Channel(topic), payload).Err(); err != nil {
		log.Printf("notify publish error: %v", err)
	}
}

func Channel(topic string) string {
	return "notify:" + topic
}

// LogNotifier stands in when redis is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, topic, ev, message string) {
	log.Printf("notify %s: %s %s", topic, ev, message)
}

// Nop discards notifications; used by tests.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, string) {}

// ForConfig picks the redis notifier when a client is available.
func ForConfig(rdb *redis.Client) Notifier {
	if rdb == nil {
		return LogNotifier{}
	}
	return NewRedisNotifier(rdb)
}
