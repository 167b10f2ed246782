package goIdentity_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/memory"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var (
	linkTokenRe = regexp.MustCompile(`token=([A-Za-z0-9-]+)`)
	codeRe      = regexp.MustCompile(`code is: (\d+)</p>`)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *goIdentity.Engine
	repo   *memory.Repository
	outbox *mail.Outbox
	hasher *password.Bcrypt
	mr     *miniredis.Miniredis
	clock  *fakeClock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() goIdentity.Config {
	cfg := goIdentity.DefaultConfig()
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*goIdentity.Config), opts ...func(*goIdentity.Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	env := &testEnv{
		repo:   memory.New(),
		outbox: &mail.Outbox{},
		hasher: hasher,
		mr:     mr,
		clock:  &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	b := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityRepository(env.repo).
		WithHasher(hasher).
		WithMailSender(env.outbox).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

type userSpec struct {
	email     string
	password  string
	name      string
	verified  bool
	twoFactor bool
	role      goIdentity.Role
}

func (env *testEnv) createUser(t *testing.T, spec userSpec) goIdentity.User {
	t.Helper()

	in := goIdentity.NewUser{Email: spec.email, Name: spec.name, Role: spec.role}
	if spec.name == "" {
		in.Name = "Test User"
	}
	if spec.password != "" {
		hash, err := env.hasher.Hash(spec.password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		in.CredentialHash = hash
	}
	if spec.verified {
		now := env.clock.Now()
		in.EmailVerifiedAt = &now
	}

	u, err := env.repo.CreateUser(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if spec.twoFactor {
		enabled := true
		if err := env.repo.UpdateUser(context.Background(), u.ID, goIdentity.UserPatch{IsTwoFactorEnabled: &enabled}); err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}
		u.IsTwoFactorEnabled = true
	}
	return u
}

func (env *testEnv) user(t *testing.T, id string) goIdentity.User {
	t.Helper()
	u, err := env.repo.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID(%s): %v", id, err)
	}
	return u
}

// lastLinkToken extracts the token from the most recent link mail sent to email.
func (env *testEnv) lastLinkToken(t *testing.T, email string) string {
	t.Helper()
	msg, ok := env.outbox.Last(email)
	if !ok {
		t.Fatalf("no mail sent to %s", email)
	}
	m := linkTokenRe.FindStringSubmatch(msg.HTML)
	if m == nil {
		t.Fatalf("no token link in mail %q", msg.HTML)
	}
	return m[1]
}

// lastCode extracts the two-factor code from the most recent mail sent to email.
func (env *testEnv) lastCode(t *testing.T, email string) string {
	t.Helper()
	msg, ok := env.outbox.Last(email)
	if !ok {
		t.Fatalf("no mail sent to %s", email)
	}
	m := codeRe.FindStringSubmatch(msg.HTML)
	if m == nil {
		t.Fatalf("no two-factor code in mail %q", msg.HTML)
	}
	return m[1]
}

func (env *testEnv) mailCount(email string) int {
	n := 0
	for _, m := range env.outbox.Messages() {
		if m.To == email {
			n++
		}
	}
	return n
}

// flakyRepo fails the next call of an armed method once, then delegates.
type flakyRepo struct {
	*memory.Repository

	mu   sync.Mutex
	fail map[string]error
}

func newFlakyRepo(repo *memory.Repository) *flakyRepo {
	return &flakyRepo{Repository: repo, fail: map[string]error{}}
}

func (r *flakyRepo) failNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[method] = err
}

func (r *flakyRepo) take(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.fail[method]
	delete(r.fail, method)
	return err
}

func (r *flakyRepo) CreateLinkedUser(ctx context.Context, input goIdentity.NewUser, account goIdentity.LinkedAccount) (goIdentity.User, error) {
	if err := r.take("CreateLinkedUser"); err != nil {
		return goIdentity.User{}, err
	}
	return r.Repository.CreateLinkedUser(ctx, input, account)
}

func (r *flakyRepo) SetVerifiedEmail(ctx context.Context, userID, email string, verifiedAt time.Time) error {
	if err := r.take("SetVerifiedEmail"); err != nil {
		return err
	}
	return r.Repository.SetVerifiedEmail(ctx, userID, email, verifiedAt)
}

func (r *flakyRepo) UpdateUser(ctx context.Context, userID string, patch goIdentity.UserPatch) error {
	if err := r.take("UpdateUser"); err != nil {
		return err
	}
	return r.Repository.UpdateUser(ctx, userID, patch)
}

// newFlakyEnv builds a test env whose engine talks to a flakyRepo over env.repo.
func newFlakyEnv(t *testing.T, mutate func(*goIdentity.Config)) (*testEnv, *flakyRepo) {
	t.Helper()
	var flaky *flakyRepo
	env := newTestEnv(t, mutate, func(b *goIdentity.Builder) {
		flaky = newFlakyRepo(memory.New())
		b.WithIdentityRepository(flaky)
	})
	env.repo = flaky.Repository
	return env, flaky
}

func ptr[T any](v T) *T {
	return &v
}
