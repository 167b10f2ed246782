package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	r := New()
	ctx := context.Background()

	if _, err := r.CreateUser(ctx, goIdentity.NewUser{Email: "A@x.com", Name: "a"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com", Name: "b"}); !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	u, err := r.GetUserByEmail(ctx, " a@X.com ")
	if err != nil || u.Role != goIdentity.RoleUser {
		t.Fatalf("unexpected lookup result %+v err=%v", u, err)
	}
}

func TestSetVerifiedEmailMovesIndex(t *testing.T) {
	r := New()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "old@x.com"})

	if err := r.SetVerifiedEmail(ctx, u.ID, "new@x.com", time.Now()); err != nil {
		t.Fatalf("SetVerifiedEmail: %v", err)
	}
	if _, err := r.GetUserByEmail(ctx, "old@x.com"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("old email should be released, got %v", err)
	}
	got, err := r.GetUserByEmail(ctx, "new@x.com")
	if err != nil || got.ID != u.ID || !got.EmailVerified() {
		t.Fatalf("unexpected user %+v err=%v", got, err)
	}
}

func TestSetVerifiedEmailConflict(t *testing.T) {
	r := New()
	ctx := context.Background()
	a, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com"})
	_, _ = r.CreateUser(ctx, goIdentity.NewUser{Email: "b@x.com"})

	if err := r.SetVerifiedEmail(ctx, a.ID, "b@x.com", time.Now()); !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestLinkAccountStampsVerification(t *testing.T) {
	r := New()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com"})

	err := r.LinkAccount(ctx, goIdentity.LinkedAccount{UserID: u.ID, Provider: "github", ProviderAccountID: "42"}, time.Now())
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}
	got, _ := r.GetUserByID(ctx, u.ID)
	if !got.EmailVerified() {
		t.Fatal("expected email to be verified after linking")
	}
	acct, err := r.GetAccountByUserID(ctx, u.ID)
	if err != nil || acct.Provider != "github" {
		t.Fatalf("unexpected account %+v err=%v", acct, err)
	}
}

func TestLinkAccountKeepsExistingVerification(t *testing.T) {
	r := New()
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com", EmailVerifiedAt: &first})

	err := r.LinkAccount(ctx, goIdentity.LinkedAccount{UserID: u.ID, Provider: "google", ProviderAccountID: "g"}, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}
	got, _ := r.GetUserByID(ctx, u.ID)
	if !got.EmailVerifiedAt.Equal(first) {
		t.Fatalf("expected original verification time kept, got %v", got.EmailVerifiedAt)
	}
}

func TestCreateLinkedUserWritesBothRecords(t *testing.T) {
	r := New()
	ctx := context.Background()
	now := time.Now()

	u, err := r.CreateLinkedUser(ctx,
		goIdentity.NewUser{Email: "New@x.com", Name: "New", EmailVerifiedAt: &now},
		goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"})
	if err != nil {
		t.Fatalf("CreateLinkedUser: %v", err)
	}
	acct, err := r.GetAccountByProvider(ctx, "github", "42")
	if err != nil || acct.UserID != u.ID {
		t.Fatalf("unexpected account %+v err=%v", acct, err)
	}
	if got, _ := r.GetUserByEmail(ctx, "new@x.com"); got.ID != u.ID || !got.EmailVerified() {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestCreateLinkedUserConflictWritesNothing(t *testing.T) {
	r := New()
	ctx := context.Background()
	if _, err := r.CreateLinkedUser(ctx, goIdentity.NewUser{Email: "a@x.com"}, goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"}); err != nil {
		t.Fatalf("CreateLinkedUser: %v", err)
	}

	_, err := r.CreateLinkedUser(ctx, goIdentity.NewUser{Email: "b@x.com"}, goIdentity.LinkedAccount{Provider: "github", ProviderAccountID: "42"})
	if !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse for a taken account, got %v", err)
	}
	if _, err := r.GetUserByEmail(ctx, "b@x.com"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("conflicting call must not leave a user behind, got %v", err)
	}

	_, err = r.CreateLinkedUser(ctx, goIdentity.NewUser{Email: "a@x.com"}, goIdentity.LinkedAccount{Provider: "google", ProviderAccountID: "g"})
	if !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse for a taken email, got %v", err)
	}
	if _, err := r.GetAccountByProvider(ctx, "google", "g"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("conflicting call must not leave an account behind, got %v", err)
	}
}

func TestTwoFactorConfirmationSingleUse(t *testing.T) {
	r := New()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com"})

	if err := r.CreateTwoFactorConfirmation(ctx, u.ID); err != nil {
		t.Fatalf("CreateTwoFactorConfirmation: %v", err)
	}
	if ok, _ := r.ConsumeTwoFactorConfirmation(ctx, u.ID); !ok {
		t.Fatal("expected first consume to find the confirmation")
	}
	if ok, _ := r.ConsumeTwoFactorConfirmation(ctx, u.ID); ok {
		t.Fatal("expected second consume to find nothing")
	}
}

func TestReturnedUsersAreCopies(t *testing.T) {
	r := New()
	ctx := context.Background()
	now := time.Now()
	u, _ := r.CreateUser(ctx, goIdentity.NewUser{Email: "a@x.com", EmailVerifiedAt: &now})

	got, _ := r.GetUserByID(ctx, u.ID)
	*got.EmailVerifiedAt = time.Time{}

	again, _ := r.GetUserByID(ctx, u.ID)
	if again.EmailVerifiedAt.IsZero() {
		t.Fatal("mutating a returned user must not change the stored record")
	}
}

func TestCancelledContext(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.GetUserByID(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
