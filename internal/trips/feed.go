package trips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var errFeedClosed = errors.New("change feed subscription closed")

// ChangeFeed delivers change notifications for trip records and for a
// counterparty's live location. onDrop fires when a subscription dies for
// any reason other than its own cancel.
type ChangeFeed interface {
	SubscribeRecord(ctx context.Context, kind Kind, id string, onChange func(), onDrop func(error)) (func(), error)
	SubscribeLocation(ctx context.Context, counterpartyID string, onUpdate func(CounterpartyLocation), onDrop func(error)) (func(), error)
}

// RedisFeed implements ChangeFeed over redis pub/sub. Trip updates come in
// on record:{kind}:{id}; live locations on courier:{id}:location as JSON
// CounterpartyLocation payloads.
type RedisFeed struct {
	rdb *redis.Client
}

func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

func RecordChannel(kind Kind, id string) string {
	return fmt.Sprintf("record:%s:%s", kind, id)
}

func LocationChannel(counterpartyID string) string {
	return "courier:" + counterpartyID + ":location"
}

func (f *RedisFeed) SubscribeRecord(ctx context.Context, kind Kind, id string, onChange func(), onDrop func(error)) (func(), error) {
	return f.subscribe(ctx, RecordChannel(kind, id), func(string) { onChange() }, onDrop)
}

func (f *RedisFeed) SubscribeLocation(ctx context.Context, counterpartyID string, onUpdate func(CounterpartyLocation), onDrop func(error)) (func(), error) {
	return f.subscribe(ctx, LocationChannel(counterpartyID), func(payload string) {
		var loc CounterpartyLocation
		if err := json.Unmarshal([]byte(payload), &loc); err != nil {
			return
		}
		onUpdate(loc)
	}, onDrop)
}

func (f *RedisFeed) subscribe(ctx context.Context, channel string, onMsg func(string), onDrop func(error)) (func(), error) {
	pubsub := f.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	var once sync.Once
	cancelled := false
	var mu sync.Mutex

	go func() {
		for msg := range pubsub.Channel() {
			onMsg(msg.Payload)
		}
		mu.Lock()
		dropped := !cancelled
		mu.Unlock()
		if dropped && onDrop != nil {
			onDrop(errFeedClosed)
		}
	}()

	cancel := func() {
		once.Do(func() {
			mu.Lock()
			cancelled = true
			mu.Unlock()
			_ = pubsub.Close()
		})
	}
	return cancel, nil
}
