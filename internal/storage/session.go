package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type sessionRedis interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	SessionKey(sessionID, name string) string
}

// SessionBackend keeps session-scoped values in Redis. Every save refreshes the TTL.
type SessionBackend struct {
	client sessionRedis
	ttl    time.Duration
}

func NewSessionBackend(client sessionRedis, ttl time.Duration) (*SessionBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &SessionBackend{client: client, ttl: ttl}, nil
}

func (b *SessionBackend) Load(ctx context.Context, owner, key string) (string, bool, error) {
	value, err := b.client.Get(ctx, b.client.SessionKey(owner, key))
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *SessionBackend) Save(ctx context.Context, owner, key, value string) error {
	return b.client.Set(ctx, b.client.SessionKey(owner, key), value, b.ttl)
}

func (b *SessionBackend) Delete(ctx context.Context, owner, key string) error {
	return b.client.Del(ctx, b.client.SessionKey(owner, key))
}
