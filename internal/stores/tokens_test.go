package stores

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func hashOf(value string) ([32]byte, string) {
	h := sha256.Sum256([]byte(value))
	return h, base64.RawURLEncoding.EncodeToString(h[:])
}

func issueTestToken(t *testing.T, store *TokenStore, purpose, email, value string, indexed bool, now time.Time, ttl time.Duration) {
	t.Helper()

	h, enc := hashOf(value)
	err := store.Issue(context.Background(), &TokenRecord{
		Purpose:    purpose,
		Email:      email,
		UserID:     "u1",
		SecretHash: h,
		ExpiresAt:  now.Add(ttl),
	}, enc, indexed, now)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
}

func TestTokenStoreConsumeOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "email_verify", "a@example.com", "tok-1", true, now, time.Hour)

	h, enc := hashOf("tok-1")
	record, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.UserID != "u1" {
		t.Fatalf("expected user u1, got %q", record.UserID)
	}
	if record.ExpiresAt.UnixMilli() != now.Add(time.Hour).UnixMilli() {
		t.Fatalf("unexpected expiry %v", record.ExpiresAt)
	}

	_, err = store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on second consume, got %v", err)
	}
	if _, err := store.ResolveEmail(context.Background(), "email_verify", enc); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected index removed, got %v", err)
	}
}

func TestTokenStoreReissueInvalidatesPrevious(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "password_reset", "a@example.com", "first", true, now, time.Hour)
	issueTestToken(t, store, "password_reset", "a@example.com", "second", true, now, time.Hour)

	// The stale index still resolves, but the record no longer matches.
	firstHash, firstEnc := hashOf("first")
	email, err := store.ResolveEmail(context.Background(), "password_reset", firstEnc)
	if err != nil {
		t.Fatalf("ResolveEmail failed: %v", err)
	}
	_, err = store.Consume(context.Background(), "password_reset", email, firstHash, firstEnc, true, false, 1, now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for replaced token, got %v", err)
	}

	secondHash, secondEnc := hashOf("second")
	if _, err := store.Consume(context.Background(), "password_reset", "a@example.com", secondHash, secondEnc, true, false, 1, now); err != nil {
		t.Fatalf("expected second token to be live: %v", err)
	}
}

func TestTokenStoreExpiredThenGone(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "email_verify", "a@example.com", "tok", true, now, time.Minute)

	h, enc := hashOf("tok")
	later := now.Add(2 * time.Minute)
	_, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, later)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	_, err = store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, later)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after expiry, got %v", err)
	}
}

func TestTokenStoreKeyLifetimeIncludesRetention(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", 10*time.Minute)
	now := time.Now()
	issueTestToken(t, store, "email_verify", "a@example.com", "tok", false, now, 5*time.Minute)

	ttl := mr.TTL("gi:tok:email_verify:a@example.com")
	if ttl != 15*time.Minute {
		t.Fatalf("expected 15m key lifetime, got %v", ttl)
	}

	mr.FastForward(16 * time.Minute)
	if _, err := store.Get(context.Background(), "email_verify", "a@example.com"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected record evicted after retention, got %v", err)
	}
}

func TestTokenStoreMismatchCountsAttempts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "two_factor", "a@example.com", "123456", false, now, 5*time.Minute)

	wrong, _ := hashOf("000000")
	for i := 0; i < 2; i++ {
		_, err := store.Consume(context.Background(), "two_factor", "a@example.com", wrong, "", false, true, 3, now)
		if !errors.Is(err, ErrTokenSecretMismatch) {
			t.Fatalf("attempt %d: expected ErrTokenSecretMismatch, got %v", i+1, err)
		}
	}

	record, err := store.Get(context.Background(), "two_factor", "a@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", record.Attempts)
	}

	_, err = store.Consume(context.Background(), "two_factor", "a@example.com", wrong, "", false, true, 3, now)
	if !errors.Is(err, ErrTokenAttemptsExceeded) {
		t.Fatalf("expected ErrTokenAttemptsExceeded, got %v", err)
	}

	right, _ := hashOf("123456")
	_, err = store.Consume(context.Background(), "two_factor", "a@example.com", right, "", false, true, 3, now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected record dropped after attempts, got %v", err)
	}
}

func TestTokenStoreMismatchWithoutCountingIsNotFound(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "email_verify", "a@example.com", "tok", true, now, time.Hour)

	wrong, wrongEnc := hashOf("other")
	_, err := store.Consume(context.Background(), "email_verify", "a@example.com", wrong, wrongEnc, true, false, 1, now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	if _, err := store.Get(context.Background(), "email_verify", "a@example.com"); err != nil {
		t.Fatalf("expected live record untouched: %v", err)
	}
}

func TestTokenStoreConcurrentConsumeSingleWinner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "password_reset", "a@example.com", "tok", true, now, time.Hour)
	h, enc := hashOf("tok")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(context.Background(), "password_reset", "a@example.com", h, enc, true, false, 1, now); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", success)
	}
}

func TestTokenStoreConcurrentIssueLeavesOneLiveToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, enc := hashOf(fmt.Sprintf("tok-%d", i))
			errs <- store.Issue(context.Background(), &TokenRecord{
				Purpose:    "email_verify",
				Email:      "a@example.com",
				SecretHash: h,
				ExpiresAt:  now.Add(time.Hour),
			}, enc, true, now)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
	}

	live := 0
	for i := 0; i < n; i++ {
		h, enc := hashOf(fmt.Sprintf("tok-%d", i))
		if _, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, now); err == nil {
			live++
		} else if !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live token after concurrent issues, got %d", live)
	}
}

func TestTokenStoreRestoreAfterConsume(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "email_verify", "a@example.com", "tok-1", true, now, time.Hour)
	h, enc := hashOf("tok-1")

	record, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	restored, err := store.Restore(context.Background(), record, enc, true, now)
	if err != nil || !restored {
		t.Fatalf("expected restore, got %v, %v", restored, err)
	}

	email, err := store.ResolveEmail(context.Background(), "email_verify", enc)
	if err != nil || email != "a@example.com" {
		t.Fatalf("expected index restored, got %q, %v", email, err)
	}
	again, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, now)
	if err != nil || again.UserID != "u1" {
		t.Fatalf("expected restored token to consume, got %+v, %v", again, err)
	}
}

func TestTokenStoreRestoreKeepsNewerToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewTokenStore(rdb, "gi", time.Hour)
	now := time.Now()
	issueTestToken(t, store, "password_reset", "a@example.com", "old", true, now, time.Hour)
	oldHash, oldEnc := hashOf("old")
	record, err := store.Consume(context.Background(), "password_reset", "a@example.com", oldHash, oldEnc, true, false, 1, now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	issueTestToken(t, store, "password_reset", "a@example.com", "new", true, now, time.Hour)
	restored, err := store.Restore(context.Background(), record, oldEnc, true, now)
	if err != nil || restored {
		t.Fatalf("expected restore to yield to the newer token, got %v, %v", restored, err)
	}

	newHash, newEnc := hashOf("new")
	if _, err := store.Consume(context.Background(), "password_reset", "a@example.com", newHash, newEnc, true, false, 1, now); err != nil {
		t.Fatalf("newer token must stay live: %v", err)
	}

	record.ExpiresAt = now.Add(-time.Second)
	if restored, _ := store.Restore(context.Background(), record, oldEnc, true, now); restored {
		t.Fatal("expired records must not be restored")
	}
}

func TestTokenStoreRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewTokenStore(rdb, "gi", time.Hour)
	mr.Close()

	h, enc := hashOf("tok")
	_, err := store.Consume(context.Background(), "email_verify", "a@example.com", h, enc, true, false, 1, time.Now())
	if !errors.Is(err, ErrTokenRedisUnavailable) {
		t.Fatalf("expected ErrTokenRedisUnavailable, got %v", err)
	}
}
