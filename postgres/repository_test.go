package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewRepository(db), mock
}

var userCols = []string{"id", "email", "email_verified_at", "name", "credential_hash", "role", "is_two_factor_enabled"}

func TestGetUserByEmailNormalizes(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	verified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-1", "a@x.com", verified, "Ada", "hash", "ADMIN", true))

	u, err := repo.GetUserByEmail(context.Background(), " A@X.com ")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != "u-1" || u.Role != goIdentity.RoleAdmin || !u.IsTwoFactorEnabled || u.EmailVerifiedAt == nil || !u.EmailVerifiedAt.Equal(verified) {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestGetUserByIDNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).WithArgs("u-9").WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetUserByID(context.Background(), "u-9"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).WithArgs("not-a-uuid").WillReturnError(&pgconn.PgError{Code: pgInvalidText})
	if _, err := repo.GetUserByID(context.Background(), "not-a-uuid"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("malformed id: expected ErrNotFound, got %v", err)
	}
}

func TestGetUserUnverifiedHasNilTimestamp(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-1", "a@x.com", nil, "", "", "USER", false))

	u, err := repo.GetUserByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.EmailVerified() {
		t.Fatal("expected unverified user")
	}
}

func TestCreateUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\s*\(email,\s*email_verified_at,\s*name,\s*credential_hash,\s*role\).*RETURNING\s+id$`).
		WithArgs("a@x.com", nil, "Ada", "hash", "USER").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))

	u, err := repo.CreateUser(context.Background(), goIdentity.NewUser{Email: "A@x.com", Name: "Ada", CredentialHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != "u-1" || u.Email != "a@x.com" || u.Role != goIdentity.RoleUser {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, TableName: "users", ConstraintName: "users_email_key"})

	if _, err := repo.CreateUser(context.Background(), goIdentity.NewUser{Email: "a@x.com"}); !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	name := "New"
	enabled := true

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET.*COALESCE\(\$2,\s*name\).*WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u-1", "New", nil, true, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateUser(context.Background(), "u-1", goIdentity.UserPatch{Name: &name, IsTwoFactorEnabled: &enabled}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	// An empty patch never reaches the database.
	if err := repo.UpdateUser(context.Background(), "u-1", goIdentity.UserPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
}

func TestUpdateUserMissing(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	name := "New"

	mock.ExpectExec(`UPDATE\s+users\s+SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.UpdateUser(context.Background(), "u-9", goIdentity.UserPatch{Name: &name}); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetVerifiedEmailConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+email\s*=\s*\$2,\s*email_verified_at\s*=\s*\$3`).
		WithArgs("u-1", "b@x.com", now).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, TableName: "users"})

	if err := repo.SetVerifiedEmail(context.Background(), "u-1", "B@x.com", now); !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestLinkAccountCommits(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).WithArgs("u-1", "github", "42").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+email_verified_at\s*=\s*COALESCE`).WithArgs("u-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.LinkAccount(context.Background(), goIdentity.LinkedAccount{UserID: "u-1", Provider: "github", ProviderAccountID: "42"}, now)
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}
}

func TestLinkAccountRollsBackOnFailure(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})
	mock.ExpectRollback()

	err := repo.LinkAccount(context.Background(), goIdentity.LinkedAccount{UserID: "u-9", Provider: "github", ProviderAccountID: "42"}, time.Now())
	if !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateLinkedUserCommits(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WithArgs("new@x.com", now, "New", "", "USER").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-7"))
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).WithArgs("u-7", "github", "42").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := repo.CreateLinkedUser(context.Background(),
		goIdentity.NewUser{Email: "New@x.com", Name: "New", EmailVerifiedAt: &now},
		goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"})
	if err != nil {
		t.Fatalf("CreateLinkedUser: %v", err)
	}
	if u.ID != "u-7" || u.Email != "new@x.com" || !u.EmailVerified() {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestCreateLinkedUserRollsBackWhenAccountInsertFails(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-7"))
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.CreateLinkedUser(context.Background(),
		goIdentity.NewUser{Email: "new@x.com", EmailVerifiedAt: &now},
		goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"})
	if !errors.Is(err, goIdentity.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCreateLinkedUserTakenAccount(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-7"))
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, TableName: "accounts", ConstraintName: "accounts_pkey"})
	mock.ExpectRollback()

	_, err := repo.CreateLinkedUser(context.Background(),
		goIdentity.NewUser{Email: "new@x.com"},
		goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"})
	if !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestGetAccountByProvider(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+provider\s*=\s*\$1\s+AND\s+provider_account_id\s*=\s*\$2`).
		WithArgs("github", "42").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "provider", "provider_account_id"}).AddRow("u-1", "github", "42"))

	a, err := repo.GetAccountByProvider(context.Background(), "github", "42")
	if err != nil || a.UserID != "u-1" {
		t.Fatalf("unexpected account %+v, %v", a, err)
	}

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+user_id`).WithArgs("u-2").WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetAccountByUserID(context.Background(), "u-2"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTwoFactorConfirmationLifecycle(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+two_factor_confirmations.*ON\s+CONFLICT`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+two_factor_confirmations`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+two_factor_confirmations`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.CreateTwoFactorConfirmation(ctx, "u-1"); err != nil {
		t.Fatalf("CreateTwoFactorConfirmation: %v", err)
	}
	if ok, err := repo.ConsumeTwoFactorConfirmation(ctx, "u-1"); err != nil || !ok {
		t.Fatalf("first consume: %v, %v", ok, err)
	}
	if ok, err := repo.ConsumeTwoFactorConfirmation(ctx, "u-1"); err != nil || ok {
		t.Fatalf("second consume must report none: %v, %v", ok, err)
	}
}

func TestDriverFailureWrapsStoreUnavailable(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users`).WillReturnError(errors.New("connection reset"))
	_, err := repo.GetUserByEmail(context.Background(), "a@x.com")
	if !errors.Is(err, goIdentity.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
