package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// Register creates an unverified credential user and mails the first
// email-verify token. If the token cannot be issued after the user exists,
// the result is still returned together with the error; signing in issues a
// fresh token.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res, err := internalflows.RunRegister(ctx, internalflows.RegisterInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
	}, e.registerFlowDeps())
	if res == nil {
		return nil, err
	}
	return &RegisterResult{
		UserID:       res.UserID,
		Verification: toTokenReceipt(res.Issued),
	}, err
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		MinPasswordLength: e.config.Password.MinLength,
		GetUserByEmail:    e.getFlowUserByEmail,
		HashPassword:      e.hashPassword,
		CreateUser: func(ctx context.Context, email, name, hash string) (string, error) {
			u, err := e.repo.CreateUser(ctx, NewUser{
				Email:          email,
				Name:           name,
				CredentialHash: hash,
				Role:           RoleUser,
			})
			if err != nil {
				return "", repoErr(err)
			}
			return u.ID, nil
		},
		IssueToken: e.issueToken,
		MetricInc:  e.flowMetricInc,
		EmitAudit:  e.emitAudit,
		Metrics: internalflows.RegisterMetrics{
			RegisterSuccess:   int(MetricRegisterSuccess),
			RegisterDuplicate: int(MetricRegisterDuplicate),
		},
		Events: internalflows.RegisterEvents{
			Register: auditEventRegister,
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			NotFound:       ErrNotFound,
			EmailInUse:     ErrEmailInUse,
		},
	}
}
