package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/kvcache/internal/logging"
)

// DefaultInvalidationChannel is the Redis Pub/Sub channel used when none is
// configured.
const DefaultInvalidationChannel = "kvcache:invalidate"

// Invalidator listens for invalidation signals over Redis Pub/Sub and
// removes the named entries from the engine. A payload without wildcards is
// a single key; a payload with '*' or '?' purges every matching key.
type Invalidator struct {
	engine  *Engine
	client  *redis.Client
	channel string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator for engine. An empty channel uses
// DefaultInvalidationChannel.
func NewInvalidator(engine *Engine, client *redis.Client, channel string) *Invalidator {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Invalidator{
		engine:  engine,
		client:  client,
		channel: channel,
	}
}

// Run subscribes and applies signals until ctx is cancelled or Close is
// called. The subscription is confirmed before Run starts consuming.
func (iv *Invalidator) Run(ctx context.Context) error {
	iv.mu.Lock()
	if iv.closed {
		iv.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	iv.cancel = cancel
	iv.mu.Unlock()
	defer cancel()

	pubsub := iv.client.Subscribe(subCtx, iv.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(subCtx); err != nil {
		if errors.Is(subCtx.Err(), context.Canceled) {
			return nil
		}
		return err
	}
	logging.Op().Info("invalidation feed subscribed", "channel", iv.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			iv.Apply(subCtx, msg.Payload)
		}
	}
}

// Apply handles a single signal payload and returns the number of live
// entries it removed.
func (iv *Invalidator) Apply(ctx context.Context, payload string) int {
	if payload == "" {
		return 0
	}
	if HasWildcard(payload) {
		n, err := iv.engine.PurgePattern(ctx, payload)
		if err != nil {
			logging.Op().Warn("invalid invalidation pattern", "pattern", payload, "error", err)
			return 0
		}
		logging.Op().Debug("keys invalidated", "pattern", payload, "count", n)
		return n
	}
	if err := iv.engine.Delete(ctx, payload); err != nil {
		return 0
	}
	logging.Op().Debug("key invalidated", "key", payload)
	return 1
}

// Publish sends an invalidation signal for a key or pattern.
func (iv *Invalidator) Publish(ctx context.Context, keyOrPattern string) error {
	return iv.client.Publish(ctx, iv.channel, keyOrPattern).Err()
}

// Close stops the listener.
func (iv *Invalidator) Close() error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.closed {
		return nil
	}
	iv.closed = true
	if iv.cancel != nil {
		iv.cancel()
	}
	return nil
}
