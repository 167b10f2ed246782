package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
)

type accountKey struct {
	provider  string
	accountID string
}

// Repository stores users, linked accounts and two-factor confirmations in
// maps guarded by one mutex. Returned values are copies.
type Repository struct {
	mu            sync.RWMutex
	users         map[string]goIdentity.User
	byEmail       map[string]string
	accounts      map[accountKey]goIdentity.LinkedAccount
	confirmations map[string]struct{}
}

var _ goIdentity.IdentityRepository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		users:         make(map[string]goIdentity.User),
		byEmail:       make(map[string]string),
		accounts:      make(map[accountKey]goIdentity.LinkedAccount),
		confirmations: make(map[string]struct{}),
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u goIdentity.User) goIdentity.User {
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		u.EmailVerifiedAt = &t
	}
	return u
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalize(email)]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrNotFound
	}
	return copyUser(r.users[id]), nil
}

func (r *Repository) GetUserByID(ctx context.Context, userID string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *Repository) CreateUser(ctx context.Context, input goIdentity.NewUser) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	email := normalize(input.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return goIdentity.User{}, goIdentity.ErrEmailInUse
	}
	return copyUser(r.insertLocked(email, input)), nil
}

// insertLocked stores a new user under email. r.mu must be held for writing.
func (r *Repository) insertLocked(email string, input goIdentity.NewUser) goIdentity.User {
	role := input.Role
	if role == "" {
		role = goIdentity.RoleUser
	}
	u := copyUser(goIdentity.User{
		ID:              uuid.NewString(),
		Email:           email,
		EmailVerifiedAt: input.EmailVerifiedAt,
		Name:            input.Name,
		CredentialHash:  input.CredentialHash,
		Role:            role,
	})
	r.users[u.ID] = u
	r.byEmail[email] = u.ID
	return u
}

func (r *Repository) UpdateUser(ctx context.Context, userID string, patch goIdentity.UserPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.CredentialHash != nil {
		u.CredentialHash = *patch.CredentialHash
	}
	if patch.IsTwoFactorEnabled != nil {
		u.IsTwoFactorEnabled = *patch.IsTwoFactorEnabled
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	r.users[userID] = u
	return nil
}

func (r *Repository) SetVerifiedEmail(ctx context.Context, userID, email string, verifiedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = normalize(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	if owner, taken := r.byEmail[email]; taken && owner != userID {
		return goIdentity.ErrEmailInUse
	}
	delete(r.byEmail, u.Email)
	u.Email = email
	u.EmailVerifiedAt = &verifiedAt
	r.users[userID] = u
	r.byEmail[email] = userID
	return nil
}

func (r *Repository) GetAccountByUserID(ctx context.Context, userID string) (goIdentity.LinkedAccount, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.LinkedAccount{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, acct := range r.accounts {
		if acct.UserID == userID {
			return acct, nil
		}
	}
	return goIdentity.LinkedAccount{}, goIdentity.ErrNotFound
}

func (r *Repository) GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (goIdentity.LinkedAccount, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.LinkedAccount{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.accounts[accountKey{provider, providerAccountID}]
	if !ok {
		return goIdentity.LinkedAccount{}, goIdentity.ErrNotFound
	}
	return acct, nil
}

// LinkAccount stores account and stamps the owner as verified in one critical
// section. An existing verification time is kept.
func (r *Repository) LinkAccount(ctx context.Context, account goIdentity.LinkedAccount, verifiedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[account.UserID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	key := accountKey{account.Provider, account.ProviderAccountID}
	if existing, ok := r.accounts[key]; ok && existing.UserID != account.UserID {
		return goIdentity.ErrEmailInUse
	}
	r.accounts[key] = account
	if u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &verifiedAt
		r.users[u.ID] = u
	}
	return nil
}

// CreateLinkedUser creates a user and its first linked account in one
// critical section. Nothing is written when either record conflicts.
func (r *Repository) CreateLinkedUser(ctx context.Context, input goIdentity.NewUser, account goIdentity.LinkedAccount) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	email := normalize(input.Email)
	key := accountKey{account.Provider, account.ProviderAccountID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return goIdentity.User{}, goIdentity.ErrEmailInUse
	}
	if _, taken := r.accounts[key]; taken {
		return goIdentity.User{}, goIdentity.ErrEmailInUse
	}
	u := r.insertLocked(email, input)
	account.UserID = u.ID
	r.accounts[key] = account
	return copyUser(u), nil
}

func (r *Repository) CreateTwoFactorConfirmation(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return goIdentity.ErrNotFound
	}
	r.confirmations[userID] = struct{}{}
	return nil
}

func (r *Repository) ConsumeTwoFactorConfirmation(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.confirmations[userID]; !ok {
		return false, nil
	}
	delete(r.confirmations, userID)
	return true, nil
}

// HasTwoFactorConfirmation reports whether userID holds an unconsumed confirmation.
func (r *Repository) HasTwoFactorConfirmation(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.confirmations[userID]
	return ok
}
