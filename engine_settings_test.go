package goIdentity_test

import (
	"context"
	"errors"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestSettingsNameApplied(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true, name: "Old"})

	res, err := env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{Name: ptr("New")})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if res.Name != goIdentity.FieldApplied || res.Email != goIdentity.FieldNotRequested {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := env.user(t, u.ID).Name; got != "New" {
		t.Fatalf("expected name New, got %q", got)
	}

	res, err = env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{Name: ptr("New")})
	if err != nil || res.Name != goIdentity.FieldUnchanged {
		t.Fatalf("expected Unchanged, got %+v, %v", res, err)
	}
}

func TestSettingsEmailChangeIsExclusive(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true, name: "Old"})
	ctx := context.Background()

	res, err := env.engine.UpdateSettings(ctx, u.ID, goIdentity.SettingsRequest{
		Email:              ptr("b@x.com"),
		Name:               ptr("New"),
		IsTwoFactorEnabled: ptr(true),
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if res.Email != goIdentity.FieldPendingVerification ||
		res.Name != goIdentity.FieldDeferred ||
		res.TwoFactor != goIdentity.FieldDeferred {
		t.Fatalf("unexpected statuses %+v", res)
	}

	stored := env.user(t, u.ID)
	if stored.Email != "a@x.com" || stored.Name != "Old" || stored.IsTwoFactorEnabled {
		t.Fatalf("nothing may be written before confirmation, got %+v", stored)
	}
	if env.mailCount("b@x.com") != 1 || env.mailCount("a@x.com") != 0 {
		t.Fatal("verification must go to the new address only")
	}

	userID, err := env.engine.ConfirmEmail(ctx, env.lastLinkToken(t, "b@x.com"))
	if err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	if userID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, userID)
	}
	stored = env.user(t, u.ID)
	if stored.Email != "b@x.com" || !stored.EmailVerified() {
		t.Fatalf("expected verified new email, got %+v", stored)
	}
	if _, err := env.repo.GetUserByEmail(ctx, "a@x.com"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("old address should be released, got %v", err)
	}
}

func TestSettingsEmailInUse(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})
	env.createUser(t, userSpec{email: "b@x.com", password: "secret123", verified: true})

	_, err := env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{Email: ptr("B@x.com")})
	if !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if env.mailCount("b@x.com") != 0 {
		t.Fatal("no token may be issued for an owned address")
	}
}

func TestConfirmEmailChangeLosesRace(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})
	ctx := context.Background()

	if _, err := env.engine.UpdateSettings(ctx, u.ID, goIdentity.SettingsRequest{Email: ptr("b@x.com")}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	token := env.lastLinkToken(t, "b@x.com")
	env.createUser(t, userSpec{email: "b@x.com", password: "secret123", verified: true})

	if _, err := env.engine.ConfirmEmail(ctx, token); !errors.Is(err, goIdentity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if got := env.user(t, u.ID).Email; got != "a@x.com" {
		t.Fatalf("email must not move, got %q", got)
	}
}

func TestSettingsSameEmailUnchanged(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})

	res, err := env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{Email: ptr("A@X.com"), Name: ptr("Other")})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if res.Email != goIdentity.FieldUnchanged || res.Name != goIdentity.FieldApplied {
		t.Fatalf("unexpected statuses %+v", res)
	}
}

func TestSettingsPasswordChange(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})
	ctx := context.Background()

	_, err := env.engine.UpdateSettings(ctx, u.ID, goIdentity.SettingsRequest{Password: ptr("wrong"), NewPassword: ptr("newsecret")})
	if !errors.Is(err, goIdentity.ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}

	res, err := env.engine.UpdateSettings(ctx, u.ID, goIdentity.SettingsRequest{Password: ptr("secret123"), NewPassword: ptr("newsecret")})
	if err != nil || res.Password != goIdentity.FieldApplied {
		t.Fatalf("expected Applied, got %+v, %v", res, err)
	}

	if _, err := env.engine.SignIn(ctx, goIdentity.SignInRequest{Email: "a@x.com", Password: "secret123"}); !errors.Is(err, goIdentity.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.SignIn(ctx, goIdentity.SignInRequest{Email: "a@x.com", Password: "newsecret"}); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestSettingsPasswordNeedsBothFields(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})

	res, err := env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{NewPassword: ptr("newsecret")})
	if err != nil || res.Password != goIdentity.FieldIgnored {
		t.Fatalf("expected Ignored, got %+v, %v", res, err)
	}
}

func TestSettingsOAuthSubjectRestricted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	signed, err := env.engine.OAuthSignIn(ctx, goIdentity.OAuthProfile{Provider: "github", ProviderAccountID: "1", Email: "a@x.com", Name: "Octo"})
	if err != nil {
		t.Fatalf("OAuthSignIn: %v", err)
	}

	res, err := env.engine.UpdateSettings(ctx, signed.UserID, goIdentity.SettingsRequest{
		Email:              ptr("b@x.com"),
		Password:           ptr("x"),
		NewPassword:        ptr("newsecret"),
		IsTwoFactorEnabled: ptr(true),
		Name:               ptr("Renamed"),
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if res.Email != goIdentity.FieldIgnored ||
		res.Password != goIdentity.FieldIgnored ||
		res.TwoFactor != goIdentity.FieldIgnored ||
		res.Name != goIdentity.FieldApplied {
		t.Fatalf("unexpected statuses %+v", res)
	}
	stored := env.user(t, signed.UserID)
	if stored.Email != "a@x.com" || stored.IsTwoFactorEnabled || stored.Name != "Renamed" {
		t.Fatalf("unexpected stored user %+v", stored)
	}
}

func TestSettingsRoleChangePolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})

	res, err := env.engine.UpdateSettings(context.Background(), u.ID, goIdentity.SettingsRequest{Role: ptr(goIdentity.RoleAdmin)})
	if err != nil || res.Role != goIdentity.FieldIgnored {
		t.Fatalf("expected Ignored, got %+v, %v", res, err)
	}
	if env.user(t, u.ID).Role != goIdentity.RoleUser {
		t.Fatal("role must not change")
	}

	open := newTestEnv(t, func(c *goIdentity.Config) { c.Settings.AllowRoleChange = true })
	v := open.createUser(t, userSpec{email: "a@x.com", password: "secret123", verified: true})
	res, err = open.engine.UpdateSettings(context.Background(), v.ID, goIdentity.SettingsRequest{Role: ptr(goIdentity.RoleAdmin)})
	if err != nil || res.Role != goIdentity.FieldApplied {
		t.Fatalf("expected Applied, got %+v, %v", res, err)
	}
	if _, err := open.engine.UpdateSettings(context.Background(), v.ID, goIdentity.SettingsRequest{Role: ptr(goIdentity.Role("ROOT"))}); !errors.Is(err, goIdentity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
}

func TestSettingsUnknownSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.UpdateSettings(context.Background(), "missing", goIdentity.SettingsRequest{Name: ptr("x")}); !errors.Is(err, goIdentity.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.UpdateSettings(context.Background(), "", goIdentity.SettingsRequest{}); !errors.Is(err, goIdentity.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
