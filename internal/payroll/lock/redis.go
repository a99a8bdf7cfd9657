package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"nomina/pkg/platform/sentinel"
)

const defaultLockTTL = 5 * time.Minute

// releaseScript deletes the lock only when the caller still owns it, so a
// run that outlived the TTL cannot release a lock re-acquired by another
// instance.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a distributed per-document lock for multi-instance deployments,
// built on SET NX with a TTL safety net against crashed holders.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL overrides the lock expiry. The TTL only exists to reap locks from
// crashed pipeline runs; it should comfortably exceed the slowest run.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultLockTTL,
		prefix: "nomina:doclock:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := r.prefix + key

	ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sentinel.ErrLocked
	}

	release := func() {
		// Best effort: the TTL reaps the lock if the release is lost.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{full}, token).Err()
	}
	return release, nil
}
