package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "authid:verify:"
	// InvalidationChannel carries ids whose verification result changed.
	InvalidationChannel = "authid:invalidation"
)

// Redis shares verification results between broker instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, id string) (bool, bool) {
	val, err := r.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

func (r *Redis) Set(ctx context.Context, id string, valid bool) {
	val := "0"
	if valid {
		val = "1"
	}
	r.client.Set(ctx, keyPrefix+id, val, r.ttl)
}

// Invalidate deletes the shared entry and tells other instances to drop theirs.
func (r *Redis) Invalidate(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, InvalidationChannel, id).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Subscribe returns invalidated ids until ctx is done.
func (r *Redis) Subscribe(ctx context.Context) <-chan string {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (r *Redis) Close() error {
	return r.client.Close()
}
