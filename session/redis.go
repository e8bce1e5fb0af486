package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 3

// RedisStore persists the credential state of one profile in Redis so it survives
// process restarts and can be shared by several processes acting as the same client.
//
//	Key: <prefix>:<profile>
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	profile string
	ttl     time.Duration
}

// NewRedisStore creates a [RedisStore]. An empty prefix defaults to "ap" and an empty
// profile to "default". ttl bounds how long an untouched session survives; 0 keeps it
// until cleared.
func NewRedisStore(client redis.UniversalClient, prefix, profile string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ap"
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{
		redis:   client,
		prefix:  prefix,
		profile: profile,
		ttl:     ttl,
	}
}

func (s *RedisStore) key() string {
	return s.prefix + ":" + s.profile
}

// Load reads and decodes the profile state.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Load(ctx context.Context) (State, error) {
	data, err := s.redis.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	state, err := Decode(data)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	return state, nil
}

// Save writes creds. When user is nil the stored profile is carried over inside an
// optimistic WATCH transaction so a concurrent Clear is never resurrected with stale data.
//
//	Performance: 1 SET, or WATCH + GET + MULTI/SET when the profile is preserved.
func (s *RedisStore) Save(ctx context.Context, creds Credentials, user *User) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}

	if user != nil {
		data, err := Encode(State{Credentials: &creds, User: user})
		if err != nil {
			return err
		}
		if err := s.redis.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	key := s.key()
	txf := func(tx *redis.Tx) error {
		var existing *User
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if prev, decodeErr := Decode(raw); decodeErr == nil {
				existing = prev.User
			}
		case errors.Is(err, redis.Nil):
		default:
			return err
		}

		data, err := Encode(State{Credentials: &creds, User: existing})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.redis.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrPartialCredentials) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear deletes the profile key. Deleting a missing key is not an error.
//
//	Performance: 1 Redis DEL.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
