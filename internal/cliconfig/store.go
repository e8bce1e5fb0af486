package cliconfig

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authpipe/session"
	"github.com/redis/go-redis/v9"
)

// OpenStore opens the configured credential store. The returned close function
// releases any connection the store holds and is never nil.
func (c *Config) OpenStore(ctx context.Context) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Store.Kind {
	case StoreMemory:
		return session.NewMemoryStore(), noop, nil
	case StoreFile:
		return session.NewFileStore(c.Store.FilePath), noop, nil
	case StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{c.Store.RedisAddr},
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping %s: %w", c.Store.RedisAddr, err)
		}
		return session.NewRedisStore(client, c.Store.Prefix, c.Store.Profile, c.Store.TTL), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
}
