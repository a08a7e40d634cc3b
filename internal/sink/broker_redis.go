package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisChannel carries releases when no channel is configured.
const DefaultRedisChannel = "pickbatch:releases"

// RedisBroker publishes releases as JSON over Redis Pub/Sub so pickers and
// dashboards in other processes can follow them.
type RedisBroker struct {
	rdb     *redis.Client
	channel string

	mu   sync.Mutex
	subs map[chan Release]*redis.PubSub
}

// NewRedisBroker connects lazily; url is a redis:// URL as accepted by
// redis.ParseURL.
func NewRedisBroker(url, channel string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBroker{rdb: redis.NewClient(opt), channel: channel, subs: map[chan Release]*redis.PubSub{}}, nil
}

// Ping checks the connection.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe() chan Release {
	ch := make(chan Release, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel)
	// initial consume to ensure subscription
	if _, err := ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("channel", b.channel).Msg("redis subscribe")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var r Release
			if err := json.Unmarshal([]byte(msg.Payload), &r); err == nil {
				select {
				case ch <- r:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the subscription; ch is closed once its reader
// goroutine drains.
func (b *RedisBroker) Unsubscribe(ch chan Release) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(ctx context.Context, r Release) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}
