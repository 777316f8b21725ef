package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces session keys
const DefaultRedisKeyPrefix = "shopify:sessions:"

// RedisSessionStorage implements SessionStorage with Redis. Each session is a JSON
// string key; a per-shop set indexes the ids of the shop's sessions.
type RedisSessionStorage struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisSessionStorage creates a Redis session storage with a pre-configured client
func NewRedisSessionStorage(client redis.UniversalClient, keyPrefix string) *RedisSessionStorage {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisSessionStorage{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

var _ ports.SessionStorage = (*RedisSessionStorage)(nil)

func (s *RedisSessionStorage) sessionKey(id string) string {
	return s.keyPrefix + "session:" + id
}

func (s *RedisSessionStorage) shopKey(shop string) string {
	return s.keyPrefix + "shop:" + shop
}

// Ping checks the connection
func (s *RedisSessionStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// StoreSession saves or replaces a session. Sessions that can neither be used nor
// refreshed after their expiry are given a matching key TTL.
func (s *RedisSessionStorage) StoreSession(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("failed to store session: missing id")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := s.ttl(session)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
		pipe.SAdd(ctx, s.shopKey(session.Shop), session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// LoadSession retrieves a session by id
func (s *RedisSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// FindSessionsByShop retrieves all live sessions of a shop. Ids whose keys expired are
// pruned from the shop index.
func (s *RedisSessionStorage) FindSessionsByShop(ctx context.Context, shop string) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, s.shopKey(shop)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list shop sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load shop sessions: %w", err)
	}

	var sessions []*domain.Session
	var stale []any
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var session domain.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", ids[i], err)
		}
		sessions = append(sessions, &session)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.shopKey(shop), stale...).Err()
	}
	return sessions, nil
}

// DeleteSessionsByShop removes every session of a shop
func (s *RedisSessionStorage) DeleteSessionsByShop(ctx context.Context, shop string) (int64, error) {
	ids, err := s.client.SMembers(ctx, s.shopKey(shop)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to list shop sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := s.client.Del(ctx, s.shopKey(shop)).Err(); err != nil {
		return deleted, fmt.Errorf("failed to delete shop index: %w", err)
	}
	return deleted, nil
}

// ttl returns 0 (no expiry) unless the session becomes useless at a known time
func (s *RedisSessionStorage) ttl(session *domain.Session) time.Duration {
	if session.Expires == nil || session.RefreshToken != "" {
		return 0
	}
	ttl := session.Expires.Sub(s.now())
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}
