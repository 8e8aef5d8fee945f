package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tallerco/shopcore/pkg/logger"
)

const groupChannelPrefix = "shopcore:group:"

// RedisBus extends the in-process bus across a cluster. Publishes go through
// Redis pub/sub so every node delivers to its locally registered sessions;
// registration itself stays process-local. A single subscriber goroutine feeds
// the local bus, which preserves per-group delivery order.
type RedisBus struct {
	client *redis.Client
	local  *MemoryBus
	pubsub *redis.PubSub
	cancel context.CancelFunc
	log    *zap.Logger
}

// RedisBusConfig carries connection options for the broker-backed bus.
type RedisBusConfig struct {
	URL     string
	Timeout time.Duration
}

// NewRedisBus connects to Redis and starts the subscriber loop. The returned
// bus must be closed to release the subscription.
func NewRedisBus(ctx context.Context, cfg RedisBusConfig) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse redis url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	bus := &RedisBus{
		client: client,
		local:  NewMemoryBus(),
		pubsub: client.PSubscribe(runCtx, groupChannelPrefix+"*"),
		cancel: stop,
		log:    logger.WithModule("realtime.redis"),
	}

	go bus.receiveLoop(runCtx)
	return bus, nil
}

// GroupAdd registers a session locally; remote nodes keep their own tables.
func (b *RedisBus) GroupAdd(group string, s *Session) {
	b.local.GroupAdd(group, s)
}

// GroupDiscard removes a session from the local registration table.
func (b *RedisBus) GroupDiscard(group string, s *Session) {
	b.local.GroupDiscard(group, s)
}

// Publish sends the envelope through Redis so every node, including this one,
// fans out to its locally registered sessions.
func (b *RedisBus) Publish(ctx context.Context, group string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: marshal envelope: %w", err)
	}

	if err := b.client.Publish(ctx, groupChannelPrefix+group, payload).Err(); err != nil {
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	return nil
}

// Close stops the subscriber loop and releases the Redis connection.
func (b *RedisBus) Close() error {
	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		return err
	}
	return b.client.Close()
}

func (b *RedisBus) receiveLoop(ctx context.Context) {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			group := strings.TrimPrefix(msg.Channel, groupChannelPrefix)

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("discarding undecodable envelope",
					zap.String("group", group),
					zap.Error(err),
				)
				continue
			}

			_ = b.local.Publish(ctx, group, env)
		}
	}
}
