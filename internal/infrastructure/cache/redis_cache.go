package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

// RedisCache is a ports.Cache over a shared Redis instance. Keys are
// namespaced so several deployments can share one database.
type RedisCache struct {
	client    *redis.Client
	namespace string
}

var _ ports.Cache = (*RedisCache)(nil)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(err, "ping redis")
	}
	return client, nil
}

func NewRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	value, err := c.client.Get(ctx, c.key(trimmedKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(err, "get redis key")
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := c.client.Set(ctx, c.key(trimmedKey), value, ttl).Err(); err != nil {
		return errs.Wrap(err, "set redis key")
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.client.Del(ctx, c.key(trimmedKey)).Err(); err != nil {
		return errs.Wrap(err, "delete redis key")
	}
	return nil
}

func (c *RedisCache) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}
