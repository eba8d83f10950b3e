package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisConfig describes how to reach the redis server. An empty Addr disables the cache.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace"`
	TTL       int    `json:"ttl_seconds"`
}

// Redis is a Store shared by every instance of the web server.
type Redis struct {
	inner     redis.Cmdable
	namespace string
	ttl       time.Duration
}

var _ Store = &Redis{}

// NewRedis connects to redis and checks the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.Addr)
	}
	ttl := DefaultTTL
	if cfg.TTL > 0 {
		ttl = time.Duration(cfg.TTL) * time.Second
	}
	return newRedis(client, cfg.Namespace, ttl), nil
}

func newRedis(client redis.Cmdable, namespace string, ttl time.Duration) *Redis {
	if namespace == "" {
		namespace = "microblog"
	}
	return &Redis{
		inner:     client,
		namespace: namespace + ":",
		ttl:       ttl,
	}
}

func (r *Redis) key(k string) string {
	return r.namespace + k
}

// genKey lives outside the prefix it counts for, so Invalidate's scan never deletes it.
func (r *Redis) genKey(prefix string) string {
	return r.namespace + "gen:" + prefix
}

func (r *Redis) Generation(ctx context.Context, prefix string) (uint64, error) {
	gen, err := r.inner.Get(ctx, r.genKey(prefix)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "redis get generation")
	}
	return gen, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.inner.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return errors.Wrap(r.inner.Set(ctx, r.key(key), value, r.ttl).Err(), "redis set")
}

// Invalidate bumps the generation, then scans for the matching keys, redis has no
// prefix delete.
func (r *Redis) Invalidate(ctx context.Context, prefix string) error {
	if err := r.inner.Incr(ctx, r.genKey(prefix)).Err(); err != nil {
		return errors.Wrap(err, "redis incr generation")
	}
	var cursor uint64
	for {
		keys, next, err := r.inner.Scan(ctx, cursor, r.key(prefix)+"*", 100).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan")
		}
		if len(keys) > 0 {
			if err := r.inner.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis del")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
