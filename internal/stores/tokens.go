package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound         = errors.New("token not found")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSecretMismatch   = errors.New("token secret mismatch")
	ErrTokenAttemptsExceeded = errors.New("token attempts exceeded")
	ErrTokenRedisUnavailable = errors.New("token redis unavailable")
)

// issueTokenLua replaces the record for (purpose, email) in one step.
// KEYS[1] = record key
// KEYS[2] = value index key (optional)
// ARGV[1] = secret hash (32 bytes)
// ARGV[2] = user id
// ARGV[3] = expiresAt unix ms
// ARGV[4] = key lifetime ms (ttl + retention)
// ARGV[5] = email (index value)
var issueTokenLua = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'h', ARGV[1], 'uid', ARGV[2], 'exp', ARGV[3], 'att', 0)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
if #KEYS > 1 then
  redis.call('SET', KEYS[2], ARGV[5], 'PX', ARGV[4])
end
return 1
`)

// restoreTokenLua writes a consumed record back unless a newer token was
// issued for the same (purpose, email) in the meantime.
// KEYS and ARGV as for issueTokenLua.
var restoreTokenLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'h', ARGV[1], 'uid', ARGV[2], 'exp', ARGV[3], 'att', 0)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
if #KEYS > 1 then
  redis.call('SET', KEYS[2], ARGV[5], 'PX', ARGV[4])
end
return 1
`)

// consumeTokenLua atomically validates and deletes a token record.
// KEYS[1] = record key
// KEYS[2] = value index key (optional)
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = now unix ms
// ARGV[3] = max attempts
// ARGV[4] = "1" when a mismatch counts as a failed attempt
//
// Returns:
//
//	{hash, user id, expiresAt} on success
//	error string: "not_found", "expired", "mismatch", "attempts_exceeded"
var consumeTokenLua = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'h', 'uid', 'exp')
if not rec[1] then
  return {err='not_found'}
end

local now = tonumber(ARGV[2])
local expiresAt = tonumber(rec[3])

if rec[1] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  if #KEYS > 1 then
    redis.call('DEL', KEYS[2])
  end
  if now > expiresAt then
    return {err='expired'}
  end
  return {rec[1], rec[2], rec[3]}
end

if ARGV[4] ~= '1' then
  return {err='not_found'}
end

if now > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local attempts = redis.call('HINCRBY', KEYS[1], 'att', 1)
if attempts >= tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end
return {err='mismatch'}
`)

// TokenRecord is the stored form of a single-use token. The plaintext value
// never reaches Redis.
type TokenRecord struct {
	Purpose    string
	Email      string
	UserID     string
	SecretHash [32]byte
	ExpiresAt  time.Time
	Attempts   int
}

// TokenStore persists at most one token per (purpose, email).
//
// Purposes looked up by value keep a secondary index from the secret hash to
// the email. A stale index left behind by reissue resolves to a record whose
// hash no longer matches and is reported as not found.
type TokenStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *TokenStore {
	if prefix == "" {
		prefix = "gi"
	}
	if retention < 0 {
		retention = 0
	}
	return &TokenStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *TokenStore) recordKey(purpose, email string) string {
	return s.prefix + ":tok:" + purpose + ":" + email
}

func (s *TokenStore) indexKey(purpose, encodedHash string) string {
	return s.prefix + ":tokv:" + purpose + ":" + encodedHash
}

// Issue stores record, replacing any previous token for the same (purpose, email).
// indexed controls whether the token can later be consumed by value alone.
func (s *TokenStore) Issue(ctx context.Context, record *TokenRecord, encodedHash string, indexed bool, now time.Time) error {
	if record == nil || record.Purpose == "" || record.Email == "" {
		return errors.New("token record requires purpose and email")
	}
	lifetime := record.ExpiresAt.Sub(now) + s.retention
	if lifetime <= 0 {
		return errors.New("token record already expired")
	}

	keys := []string{s.recordKey(record.Purpose, record.Email)}
	if indexed {
		keys = append(keys, s.indexKey(record.Purpose, encodedHash))
	}

	err := issueTokenLua.Run(ctx, s.redis, keys,
		string(record.SecretHash[:]),
		record.UserID,
		record.ExpiresAt.UnixMilli(),
		lifetime.Milliseconds(),
		record.Email,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

// Restore puts back a record removed by Consume when the effect it gated
// could not be applied. It reports false when a newer token already exists
// or the record has expired.
func (s *TokenStore) Restore(ctx context.Context, record *TokenRecord, encodedHash string, indexed bool, now time.Time) (bool, error) {
	if record == nil || record.Purpose == "" || record.Email == "" {
		return false, errors.New("token record requires purpose and email")
	}
	if !record.ExpiresAt.After(now) {
		return false, nil
	}
	lifetime := record.ExpiresAt.Sub(now) + s.retention

	keys := []string{s.recordKey(record.Purpose, record.Email)}
	if indexed {
		keys = append(keys, s.indexKey(record.Purpose, encodedHash))
	}

	restored, err := restoreTokenLua.Run(ctx, s.redis, keys,
		string(record.SecretHash[:]),
		record.UserID,
		record.ExpiresAt.UnixMilli(),
		lifetime.Milliseconds(),
		record.Email,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return restored == 1, nil
}

// ResolveEmail maps an indexed secret hash back to its email.
func (s *TokenStore) ResolveEmail(ctx context.Context, purpose, encodedHash string) (string, error) {
	email, err := s.redis.Get(ctx, s.indexKey(purpose, encodedHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return email, nil
}

// Consume validates providedHash against the record for (purpose, email) and
// deletes it on match. When countMismatch is set a wrong secret increments the
// attempt counter and the record is dropped at maxAttempts.
func (s *TokenStore) Consume(
	ctx context.Context,
	purpose, email string,
	providedHash [32]byte,
	encodedHash string,
	indexed bool,
	countMismatch bool,
	maxAttempts int,
	now time.Time,
) (*TokenRecord, error) {
	keys := []string{s.recordKey(purpose, email)}
	if indexed {
		keys = append(keys, s.indexKey(purpose, encodedHash))
	}
	count := "0"
	if countMismatch {
		count = "1"
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	result, err := consumeTokenLua.Run(ctx, s.redis, keys,
		string(providedHash[:]),
		now.UnixMilli(),
		maxAttempts,
		count,
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrTokenNotFound
		case "expired":
			return nil, ErrTokenExpired
		case "mismatch":
			return nil, ErrTokenSecretMismatch
		case "attempts_exceeded":
			return nil, ErrTokenAttemptsExceeded
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
	}

	fields, ok := result.([]interface{})
	if !ok || len(fields) != 3 {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrTokenRedisUnavailable)
	}
	storedHash, _ := fields[0].(string)
	userID, _ := fields[1].(string)
	expRaw, _ := fields[2].(string)

	// Lua string equality is not constant-time.
	if subtle.ConstantTimeCompare([]byte(storedHash), providedHash[:]) != 1 {
		return nil, ErrTokenSecretMismatch
	}

	expMs, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	record := &TokenRecord{
		Purpose:    purpose,
		Email:      email,
		UserID:     userID,
		SecretHash: providedHash,
		ExpiresAt:  time.UnixMilli(expMs),
	}
	return record, nil
}

// Get returns the stored record for (purpose, email) without consuming it.
// Expired records still inside the retention window are returned as-is.
func (s *TokenStore) Get(ctx context.Context, purpose, email string) (*TokenRecord, error) {
	values, err := s.redis.HGetAll(ctx, s.recordKey(purpose, email)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrTokenNotFound
	}

	record := &TokenRecord{
		Purpose: purpose,
		Email:   email,
		UserID:  values["uid"],
	}
	copy(record.SecretHash[:], values["h"])
	if ms, err := strconv.ParseInt(values["exp"], 10, 64); err == nil {
		record.ExpiresAt = time.UnixMilli(ms)
	}
	if att, err := strconv.Atoi(strings.TrimSpace(values["att"])); err == nil {
		record.Attempts = att
	}
	return record, nil
}
