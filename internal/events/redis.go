package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker over Redis pub/sub so every server instance
// sees the same live feed. Each subscription owns its PubSub connection.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis broker: parse url: %w", err)
	}
	return NewRedisBrokerWithClient(redis.NewClient(opt)), nil
}

func NewRedisBrokerWithClient(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, prefix: "delivery:", subs: map[chan Event]*redis.PubSub{}}
}

// Ping verifies connectivity; used at startup.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis broker: ping: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (chan Event, error) {
	ps := b.rdb.Subscribe(ctx, b.channel(topic))
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis broker: subscribe %s: %w", topic, err)
	}

	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("op=events.redis topic=%s dropped malformed event: %v", topic, err)
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch, nil
}

// Unsubscribe closes the subscription's PubSub; the relay goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(_ string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis broker: marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel(topic), data).Err(); err != nil {
		return fmt.Errorf("redis broker: publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[chan Event]*redis.PubSub{}
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	return b.rdb.Close()
}

func (b *RedisBroker) channel(topic string) string { return b.prefix + topic }
