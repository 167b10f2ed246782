package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type RegisterResult struct {
	UserID string
	Issued *IssueResult
}

type RegisterMetrics struct {
	RegisterSuccess   int
	RegisterDuplicate int
}

type RegisterEvents struct {
	Register string
}

type RegisterErrors struct {
	EngineNotReady error
	InvalidInput   error
	NotFound       error
	EmailInUse     error
}

// RegisterDeps captures self-service registration dependencies.
type RegisterDeps struct {
	MinPasswordLength int

	GetUserByEmail func(ctx context.Context, email string) (UserRecord, error)
	HashPassword   func(string) (string, error)
	CreateUser     func(ctx context.Context, email, name, hash string) (string, error)
	IssueToken     func(ctx context.Context, purpose, email, userID string) (*IssueResult, error)

	MetricInc func(int)
	EmitAudit auditFunc

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// ValidEmail reports whether s is a bare address with a domain part.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}

// RunRegister creates an unverified credential user and sends the first
// email-verify token.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (*RegisterResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.GetUserByEmail == nil || deps.HashPassword == nil || deps.CreateUser == nil || deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if !ValidEmail(email) || name == "" || len(in.Password) < deps.MinPasswordLength {
		return nil, deps.Errors.InvalidInput
	}

	_, err := deps.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.RegisterDuplicate)
		deps.EmitAudit(ctx, deps.Events.Register, false, "", email, deps.Errors.EmailInUse, nil)
		return nil, deps.Errors.EmailInUse
	case !errors.Is(err, deps.Errors.NotFound):
		return nil, err
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	userID, err := deps.CreateUser(ctx, email, name, hash)
	if err != nil {
		if errors.Is(err, deps.Errors.EmailInUse) {
			deps.MetricInc(deps.Metrics.RegisterDuplicate)
		}
		return nil, err
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.Register, true, userID, email, nil, nil)

	issued, err := deps.IssueToken(ctx, PurposeEmailVerify, email, userID)
	if err != nil {
		// The account exists; the user can ask for another token by signing in.
		return &RegisterResult{UserID: userID}, err
	}
	return &RegisterResult{UserID: userID, Issued: issued}, nil
}
