// Command goidentity-loadtest measures token store issue and consume latency
// against Redis, or an embedded miniredis when no address is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const purpose = "email_verify"

type emailState struct {
	email string
	value string
	mu    sync.Mutex
}

func main() {
	var (
		emails      = flag.Int("emails", 50000, "number of distinct emails to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (issue + consume)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gi-load", "token key prefix")
	)
	flag.Parse()

	if *emails <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "emails, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := stores.NewTokenStore(client, *prefix, time.Hour)

	states := make([]emailState, *emails)
	fmt.Printf("seeding %d tokens...\n", *emails)
	startSeed := time.Now()
	for i := range states {
		states[i].email = fmt.Sprintf("user-%d@load.test", i)
		value, err := issue(ctx, store, states[i].email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].value = value
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	issueStats := runPhase(states, *ops, *concurrency, 7919, func(s *emailState) error {
		value, err := issue(ctx, store, s.email)
		if err == nil {
			s.value = value
		}
		return err
	})
	consumeStats := runPhase(states, *ops, *concurrency, 6151, func(s *emailState) error {
		h := internal.HashSecret(s.value)
		_, err := store.Consume(ctx, purpose, s.email, h, internal.EncodeHash(h), true, false, 1, time.Now())
		if err != nil {
			return err
		}
		// Keep a live token for the next pick; not timed separately.
		value, err := issue(ctx, store, s.email)
		if err == nil {
			s.value = value
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("consume+reissue", consumeStats)
}

func issue(ctx context.Context, store *stores.TokenStore, email string) (string, error) {
	value, err := internal.NewLinkToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	h := internal.HashSecret(value)
	record := &stores.TokenRecord{
		Purpose:    purpose,
		Email:      email,
		UserID:     "load",
		SecretHash: h,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := store.Issue(ctx, record, internal.EncodeHash(h), true, now); err != nil {
		return "", err
	}
	return value, nil
}

func runPhase(states []emailState, ops, concurrency int, seed int64, op func(*emailState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				state.mu.Unlock()
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
