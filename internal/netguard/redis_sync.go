package netguard

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisAllowlistKey     = "credgate:allowlist:extension"
	redisAllowlistChannel = "credgate:allowlist:updates"
	redisOpTimeout        = 5 * time.Second
)

// EnableRedisReload keeps the classifier's extension list in sync across
// instances: the current extension is loaded from redis at startup and a
// subscription applies later updates. Each update swaps in a full snapshot,
// the running allow-set is never mutated in place.
func EnableRedisReload(ctx context.Context, client *redis.Client, classifier *Classifier) {
	if client == nil {
		log.Warn("Allow-list synchronization disabled: redis client is nil")
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	raw, err := client.Get(opCtx, redisAllowlistKey).Result()
	cancel()
	switch {
	case errors.Is(err, redis.Nil):
		// No shared extension published yet; keep the local one.
	case err != nil:
		log.Error("Allow-list sync: failed to load extension from redis", "error", err)
	default:
		classifier.UpdateExtension(raw)
		log.Debug("Allow-list extension loaded from redis")
	}

	go subscribeToAllowlistUpdates(ctx, client, classifier)
}

// PublishExtension stores the new extension list in redis and notifies all
// subscribed instances.
func PublishExtension(ctx context.Context, client *redis.Client, raw string) error {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, redisAllowlistKey, raw, 0).Err(); err != nil {
		return err
	}
	return client.Publish(opCtx, redisAllowlistChannel, raw).Err()
}

func subscribeToAllowlistUpdates(ctx context.Context, client *redis.Client, classifier *Classifier) {
	pubsub := client.Subscribe(ctx, redisAllowlistChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Allow-list sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		classifier.UpdateExtension(msg.Payload)
		log.Info("Allow-list extension updated", "source", "redis")
	}
}
