package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"janua/engine/internal/mfa/domain"
)

// RedisStore keeps challenges as Redis hashes under "mfa:challenge:<id>" with
// a TTL, plus a "mfa:current:<tenant>:<user>" pointer enforcing one live
// challenge per user.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a challenge store backed by the given client.
// Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mfa"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) challengeKey(id string) string {
	return s.prefix + "challenge:" + id
}

func (s *RedisStore) currentKey(tenantID, userID string) string {
	return s.prefix + "current:" + tenantID + ":" + userID
}

// consumeScript flips state created->consumed only when still created.
var consumeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") == "created" then
  redis.call("HSET", KEYS[1], "state", "consumed")
  return 1
end
return 0
`)

// Put stores the challenge and invalidates the user's prior challenge.
func (s *RedisStore) Put(ctx context.Context, c *domain.Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	cur := s.currentKey(c.TenantID, c.UserID)
	if prev, err := s.client.Get(ctx, cur).Result(); err == nil && prev != "" && prev != c.ID {
		if err := s.Invalidate(ctx, prev); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	key := s.challengeKey(c.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":    c.UserID,
		"tenant_id":  c.TenantID,
		"method":     string(c.Method),
		"code_hash":  c.CodeHash,
		"state":      string(c.State),
		"attempts":   c.Attempts,
		"fp":         c.DeviceFingerprint,
		"ip":         c.IPAddress,
		"ua":         c.UserAgent,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": c.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.Set(ctx, cur, c.ID, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the challenge, or ErrNotFound when the key is missing (expired
// keys disappear via TTL).
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	m, err := s.client.HGetAll(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	attempts, _ := strconv.ParseInt(m["attempts"], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	expiresAt, _ := time.Parse(time.RFC3339Nano, m["expires_at"])
	return &domain.Challenge{
		ID:                id,
		UserID:            m["user_id"],
		TenantID:          m["tenant_id"],
		Method:            domain.Method(m["method"]),
		CodeHash:          m["code_hash"],
		State:             domain.State(m["state"]),
		Attempts:          attempts,
		DeviceFingerprint: m["fp"],
		IPAddress:         m["ip"],
		UserAgent:         m["ua"],
		CreatedAt:         createdAt,
		ExpiresAt:         expiresAt,
	}, nil
}

// IncrementAttempts bumps the attempt counter atomically via HINCRBY.
func (s *RedisStore) IncrementAttempts(ctx context.Context, id string) (int64, error) {
	key := s.challengeKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}
	return s.client.HIncrBy(ctx, key, "attempts", 1).Result()
}

// Consume transitions created->consumed via a Lua script so only one caller wins.
func (s *RedisStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.challengeKey(id)}).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate marks the challenge terminal-invalid. Missing keys are a no-op.
func (s *RedisStore) Invalidate(ctx context.Context, id string) error {
	key := s.challengeKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	return s.client.HSet(ctx, key, "state", string(domain.StateInvalid)).Err()
}
