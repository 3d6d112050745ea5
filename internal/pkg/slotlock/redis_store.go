package slotlock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TableFox/app/models"
)

const (
	redisSlotPrefix    = "slotlock:slot:"
	redisTokenPrefix   = "slotlock:token:"
	redisSessionPrefix = "slotlock:session:"
)

// KEYS: slot, token, session. ARGV: token, ttl ms, payload, session id.
var insertScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
  if ARGV[4] ~= '' then
    redis.call('SADD', KEYS[3], ARGV[1])
    redis.call('PEXPIRE', KEYS[3], ARGV[2])
  end
  return 1
end
return 0
`)

// KEYS: slot, token. ARGV: token, ttl ms, payload.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
  return 1
end
return 0
`)

// KEYS: slot, token, session. ARGV: token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
redis.call('DEL', KEYS[2])
redis.call('SREM', KEYS[3], ARGV[1])
return 1
`)

// RedisStore keeps locks as Redis keys with a PX lease. Redis TTLs do the
// reaping; reads still compare ExpiresAt with the caller's clock.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Insert(ctx context.Context, lock *models.SlotLock, now time.Time) error {
	ttl := lock.ExpiresAt.Sub(now).Milliseconds()
	if ttl <= 0 {
		return errors.New("slot lock lease must be positive")
	}
	payload, err := json.Marshal(lock)
	if err != nil {
		return err
	}

	ok, err := insertScript.Run(ctx, s.client,
		[]string{redisSlotPrefix + KeyOf(lock).String(), redisTokenPrefix + lock.Token, redisSessionPrefix + lock.SessionID},
		lock.Token, ttl, payload, lock.SessionID,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrSlotTaken
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string, now time.Time) (*models.SlotLock, error) {
	raw, err := s.client.Get(ctx, redisTokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, err
	}

	var lock models.SlotLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, err
	}
	if !lock.ActiveAt(now) {
		return nil, ErrLockNotFound
	}
	return &lock, nil
}

func (s *RedisStore) ActiveForKey(ctx context.Context, key Key, now time.Time) (*models.SlotLock, error) {
	token, err := s.client.Get(ctx, redisSlotPrefix+key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, token, now)
}

func (s *RedisStore) Extend(ctx context.Context, token string, expiresAt, now time.Time) (*models.SlotLock, error) {
	lock, err := s.Get(ctx, token, now)
	if err != nil {
		return nil, err
	}
	lock.ExpiresAt = expiresAt
	lock.LastExtendedAt = now

	payload, err := json.Marshal(lock)
	if err != nil {
		return nil, err
	}
	ok, err := extendScript.Run(ctx, s.client,
		[]string{redisSlotPrefix + KeyOf(lock).String(), redisTokenPrefix + token},
		token, expiresAt.Sub(now).Milliseconds(), payload,
	).Int()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, ErrLockNotFound
	}
	return lock, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	raw, err := s.client.Get(ctx, redisTokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var lock models.SlotLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return err
	}
	return releaseScript.Run(ctx, s.client,
		[]string{redisSlotPrefix + KeyOf(&lock).String(), redisTokenPrefix + token, redisSessionPrefix + lock.SessionID},
		token,
	).Err()
}

func (s *RedisStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, nil
	}
	tokens, err := s.client.SMembers(ctx, redisSessionPrefix+sessionID).Result()
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, token := range tokens {
		if err := s.Delete(ctx, token); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, s.client.Del(ctx, redisSessionPrefix+sessionID).Err()
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
