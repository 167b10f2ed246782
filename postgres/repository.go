package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// DBTX is the subset of *sql.DB the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Repository is a PostgreSQL [goIdentity.IdentityRepository].
type Repository struct {
	db DBTX
}

var _ goIdentity.IdentityRepository = (*Repository)(nil)

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, email_verified_at, name, credential_hash, role, is_two_factor_enabled`

func scanUser(row *sql.Row) (goIdentity.User, error) {
	var (
		u          goIdentity.User
		verifiedAt sql.NullTime
		role       string
	)
	if err := row.Scan(&u.ID, &u.Email, &verifiedAt, &u.Name, &u.CredentialHash, &role, &u.IsTwoFactorEnabled); err != nil {
		return goIdentity.User{}, mapErr(err)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.EmailVerifiedAt = &t
	}
	u.Role = goIdentity.Role(role)
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, normalizeEmail(email)))
}

func (r *Repository) GetUserByID(ctx context.Context, userID string) (goIdentity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

func (r *Repository) CreateUser(ctx context.Context, input goIdentity.NewUser) (goIdentity.User, error) {
	role := input.Role
	if role == "" {
		role = goIdentity.RoleUser
	}
	u := goIdentity.User{
		Email:           normalizeEmail(input.Email),
		EmailVerifiedAt: input.EmailVerifiedAt,
		Name:            input.Name,
		CredentialHash:  input.CredentialHash,
		Role:            role,
	}

	query :=
		`INSERT INTO users (email, email_verified_at, name, credential_hash, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		u.Email, nullTime(u.EmailVerifiedAt), u.Name, u.CredentialHash, string(u.Role),
	).Scan(&u.ID)
	if err != nil {
		return goIdentity.User{}, mapErr(err)
	}
	return u, nil
}

func (r *Repository) UpdateUser(ctx context.Context, userID string, patch goIdentity.UserPatch) error {
	if patch.Empty() {
		return nil
	}

	var role any
	if patch.Role != nil {
		role = string(*patch.Role)
	}
	query :=
		`UPDATE users SET
		   name = COALESCE($2, name),
		   credential_hash = COALESCE($3, credential_hash),
		   is_two_factor_enabled = COALESCE($4, is_two_factor_enabled),
		   role = COALESCE($5, role)
		 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		userID, nullString(patch.Name), nullString(patch.CredentialHash), nullBool(patch.IsTwoFactorEnabled), role,
	)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (r *Repository) SetVerifiedEmail(ctx context.Context, userID, email string, verifiedAt time.Time) error {
	query := `UPDATE users SET email = $2, email_verified_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, normalizeEmail(email), verifiedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (r *Repository) GetAccountByUserID(ctx context.Context, userID string) (goIdentity.LinkedAccount, error) {
	query :=
		`SELECT user_id, provider, provider_account_id FROM accounts
		 WHERE user_id = $1
		 ORDER BY created_at
		 LIMIT 1`
	var a goIdentity.LinkedAccount
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&a.UserID, &a.Provider, &a.ProviderAccountID); err != nil {
		return goIdentity.LinkedAccount{}, mapErr(err)
	}
	return a, nil
}

func (r *Repository) GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (goIdentity.LinkedAccount, error) {
	query :=
		`SELECT user_id, provider, provider_account_id FROM accounts
		 WHERE provider = $1 AND provider_account_id = $2`
	var a goIdentity.LinkedAccount
	if err := r.db.QueryRowContext(ctx, query, provider, providerAccountID).Scan(&a.UserID, &a.Provider, &a.ProviderAccountID); err != nil {
		return goIdentity.LinkedAccount{}, mapErr(err)
	}
	return a, nil
}

// LinkAccount inserts the account and stamps the owner's first verification
// in one transaction.
func (r *Repository) LinkAccount(ctx context.Context, account goIdentity.LinkedAccount, verifiedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	insert :=
		`INSERT INTO accounts (user_id, provider, provider_account_id)
		 VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insert, account.UserID, account.Provider, account.ProviderAccountID); err != nil {
		return mapErr(err)
	}

	stamp := `UPDATE users SET email_verified_at = COALESCE(email_verified_at, $2) WHERE id = $1`
	res, err := tx.ExecContext(ctx, stamp, account.UserID, verifiedAt)
	if err != nil {
		return mapErr(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// CreateLinkedUser inserts a user and its first linked account in one
// transaction.
func (r *Repository) CreateLinkedUser(ctx context.Context, input goIdentity.NewUser, account goIdentity.LinkedAccount) (goIdentity.User, error) {
	role := input.Role
	if role == "" {
		role = goIdentity.RoleUser
	}
	u := goIdentity.User{
		Email:           normalizeEmail(input.Email),
		EmailVerifiedAt: input.EmailVerifiedAt,
		Name:            input.Name,
		CredentialHash:  input.CredentialHash,
		Role:            role,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goIdentity.User{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	insertUser :=
		`INSERT INTO users (email, email_verified_at, name, credential_hash, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`
	err = tx.QueryRowContext(ctx, insertUser,
		u.Email, nullTime(u.EmailVerifiedAt), u.Name, u.CredentialHash, string(u.Role),
	).Scan(&u.ID)
	if err != nil {
		return goIdentity.User{}, mapErr(err)
	}

	insertAccount :=
		`INSERT INTO accounts (user_id, provider, provider_account_id)
		 VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertAccount, u.ID, account.Provider, account.ProviderAccountID); err != nil {
		return goIdentity.User{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return goIdentity.User{}, mapErr(err)
	}
	return u, nil
}

func (r *Repository) CreateTwoFactorConfirmation(ctx context.Context, userID string) error {
	query :=
		`INSERT INTO two_factor_confirmations (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET created_at = now()`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *Repository) ConsumeTwoFactorConfirmation(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM two_factor_confirmations WHERE user_id = $1`, userID)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return goIdentity.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			// A taken (provider, account id) pair is reported like a taken email.
			if pgErr.TableName == "users" || pgErr.TableName == "accounts" || strings.Contains(pgErr.ConstraintName, "email") {
				return goIdentity.ErrEmailInUse
			}
		case pgForeignKeyViolation, pgInvalidText:
			// Unknown or malformed user id.
			return goIdentity.ErrNotFound
		}
	}
	return fmt.Errorf("%w: %v", goIdentity.ErrStoreUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
