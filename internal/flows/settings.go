package flows

import (
	"context"
	"errors"
	"strings"
)

// FieldStatus values mirror goIdentity.FieldStatus.
type FieldStatus int

const (
	FieldNotRequested FieldStatus = iota
	FieldApplied
	FieldUnchanged
	FieldPendingVerification
	FieldIgnored
	FieldDeferred
)

// SettingsInput is the flow-local settings payload. Nil fields are not requested.
type SettingsInput struct {
	Name               *string
	Email              *string
	Password           *string
	NewPassword        *string
	IsTwoFactorEnabled *bool
	Role               *string
}

// SettingsPatch is what gets written. Nil fields are left untouched.
type SettingsPatch struct {
	Name               *string
	CredentialHash     *string
	IsTwoFactorEnabled *bool
	Role               *string
}

func (p SettingsPatch) empty() bool {
	return p.Name == nil && p.CredentialHash == nil && p.IsTwoFactorEnabled == nil && p.Role == nil
}

// SettingsOutcome reports each requested field separately.
type SettingsOutcome struct {
	Email       FieldStatus
	Password    FieldStatus
	Name        FieldStatus
	TwoFactor   FieldStatus
	Role        FieldStatus
	DeliveryErr error
}

type SettingsMetrics struct {
	SettingsUpdated      int
	EmailChangeRequested int
	PasswordChanged      int
	SettingsRejected     int
}

type SettingsEvents struct {
	SettingsUpdated      string
	EmailChangeRequested string
	PasswordChanged      string
}

type SettingsErrors struct {
	EngineNotReady    error
	InvalidInput      error
	Unauthorized      error
	NotFound          error
	EmailInUse        error
	IncorrectPassword error
}

// SettingsDeps captures settings mutation dependencies.
type SettingsDeps struct {
	MinPasswordLength int
	AllowRoleChange   bool

	GetUserByID      func(ctx context.Context, userID string) (UserRecord, error)
	GetUserByEmail   func(ctx context.Context, email string) (UserRecord, error)
	HasLinkedAccount func(ctx context.Context, userID string) (bool, error)
	UpdateUser       func(ctx context.Context, userID string, patch SettingsPatch) error

	VerifyPassword func(secret, hash string) (bool, error)
	HashPassword   func(string) (string, error)
	ValidRole      func(string) bool

	IssueToken func(ctx context.Context, purpose, email, userID string) (*IssueResult, error)

	MetricInc func(int)
	EmitAudit auditFunc

	Metrics SettingsMetrics
	Events  SettingsEvents
	Errors  SettingsErrors
}

// RunUpdateSettings applies a self-service change for subjectID.
//
// OAuth-origin subjects cannot change email, password or two-factor state.
// A differing email is never written here: it is checked for ownership,
// a verify token goes to the new address and the call returns at once, with
// every other requested field reported as Deferred. A password change needs
// both the current and the new password and a stored credential.
func RunUpdateSettings(ctx context.Context, subjectID string, in SettingsInput, deps SettingsDeps) (*SettingsOutcome, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.GetUserByID == nil ||
		deps.GetUserByEmail == nil ||
		deps.HasLinkedAccount == nil ||
		deps.UpdateUser == nil ||
		deps.VerifyPassword == nil ||
		deps.HashPassword == nil ||
		deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.ValidRole == nil {
		deps.ValidRole = func(string) bool { return false }
	}

	if subjectID == "" {
		return nil, deps.Errors.Unauthorized
	}
	user, err := deps.GetUserByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return nil, deps.Errors.Unauthorized
		}
		return nil, err
	}

	isOAuth, err := deps.HasLinkedAccount(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	out := &SettingsOutcome{}
	if isOAuth {
		if in.Email != nil {
			out.Email = FieldIgnored
			in.Email = nil
		}
		if in.Password != nil || in.NewPassword != nil {
			out.Password = FieldIgnored
			in.Password, in.NewPassword = nil, nil
		}
		if in.IsTwoFactorEnabled != nil {
			out.TwoFactor = FieldIgnored
			in.IsTwoFactorEnabled = nil
		}
	}

	if in.Email != nil {
		next := NormalizeEmail(*in.Email)
		if !ValidEmail(next) {
			return nil, reject(&deps, deps.Errors.InvalidInput)
		}
		if next == NormalizeEmail(user.Email) {
			out.Email = FieldUnchanged
		} else {
			return requestEmailChange(ctx, &deps, user, next, in, out)
		}
	}

	var patch SettingsPatch

	if in.Password != nil || in.NewPassword != nil {
		if in.Password == nil || in.NewPassword == nil || user.CredentialHash == "" {
			out.Password = FieldIgnored
		} else {
			ok, err := deps.VerifyPassword(*in.Password, user.CredentialHash)
			if err != nil || !ok {
				return nil, reject(&deps, deps.Errors.IncorrectPassword)
			}
			if len(*in.NewPassword) < deps.MinPasswordLength {
				return nil, reject(&deps, deps.Errors.InvalidInput)
			}
			hash, err := deps.HashPassword(*in.NewPassword)
			if err != nil {
				return nil, err
			}
			patch.CredentialHash = &hash
			out.Password = FieldApplied
		}
	}

	if in.IsTwoFactorEnabled != nil {
		if *in.IsTwoFactorEnabled == user.TwoFactorEnabled {
			out.TwoFactor = FieldUnchanged
		} else {
			v := *in.IsTwoFactorEnabled
			patch.IsTwoFactorEnabled = &v
			out.TwoFactor = FieldApplied
		}
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		switch {
		case name == "":
			return nil, reject(&deps, deps.Errors.InvalidInput)
		case name == user.Name:
			out.Name = FieldUnchanged
		default:
			patch.Name = &name
			out.Name = FieldApplied
		}
	}

	if in.Role != nil {
		role := *in.Role
		switch {
		case !deps.AllowRoleChange:
			out.Role = FieldIgnored
		case !deps.ValidRole(role):
			return nil, reject(&deps, deps.Errors.InvalidInput)
		case role == user.Role:
			out.Role = FieldUnchanged
		default:
			patch.Role = &role
			out.Role = FieldApplied
		}
	}

	if patch.empty() {
		return out, nil
	}
	if err := deps.UpdateUser(ctx, user.ID, patch); err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SettingsUpdated)
	if patch.CredentialHash != nil {
		deps.MetricInc(deps.Metrics.PasswordChanged)
		deps.EmitAudit(ctx, deps.Events.PasswordChanged, true, user.ID, user.Email, nil, nil)
	}
	deps.EmitAudit(ctx, deps.Events.SettingsUpdated, true, user.ID, user.Email, nil, func() map[string]string {
		return settingsAuditMeta(out, isOAuth)
	})
	return out, nil
}

func requestEmailChange(
	ctx context.Context,
	deps *SettingsDeps,
	user UserRecord,
	next string,
	in SettingsInput,
	out *SettingsOutcome,
) (*SettingsOutcome, error) {
	owner, err := deps.GetUserByEmail(ctx, next)
	switch {
	case err == nil:
		if owner.ID != user.ID {
			deps.EmitAudit(ctx, deps.Events.EmailChangeRequested, false, user.ID, user.Email, deps.Errors.EmailInUse, nil)
			return nil, reject(deps, deps.Errors.EmailInUse)
		}
	case errors.Is(err, deps.Errors.NotFound):
	default:
		return nil, err
	}

	issued, err := deps.IssueToken(ctx, PurposeEmailVerify, next, user.ID)
	if err != nil {
		return nil, err
	}

	out.Email = FieldPendingVerification
	out.DeliveryErr = issued.DeliveryErr
	if in.Password != nil || in.NewPassword != nil {
		out.Password = FieldDeferred
	}
	if in.IsTwoFactorEnabled != nil {
		out.TwoFactor = FieldDeferred
	}
	if in.Name != nil {
		out.Name = FieldDeferred
	}
	if in.Role != nil {
		out.Role = FieldDeferred
	}

	deps.MetricInc(deps.Metrics.EmailChangeRequested)
	deps.EmitAudit(ctx, deps.Events.EmailChangeRequested, true, user.ID, user.Email, nil, nil)
	return out, nil
}

func reject(deps *SettingsDeps, err error) error {
	deps.MetricInc(deps.Metrics.SettingsRejected)
	return err
}

func settingsAuditMeta(out *SettingsOutcome, isOAuth bool) map[string]string {
	meta := map[string]string{}
	for field, status := range map[string]FieldStatus{
		"name":       out.Name,
		"password":   out.Password,
		"two_factor": out.TwoFactor,
		"role":       out.Role,
	} {
		if status == FieldApplied {
			meta[field] = "applied"
		}
	}
	if isOAuth {
		meta["oauth"] = "true"
	}
	return meta
}
