package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// UpdateSettings applies a self-service change for the authenticated subject.
//
// Each requested field gets its own status in the result. An email change is
// exclusive: it mails a verify token to the new address, leaves the stored
// email untouched, and reports every other requested field as
// [FieldDeferred]. OAuth-origin subjects cannot change email, password or
// two-factor state; those fields come back as [FieldIgnored].
func (e *Engine) UpdateSettings(ctx context.Context, subjectID string, req SettingsRequest) (*SettingsResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	in := internalflows.SettingsInput{
		Name:               req.Name,
		Email:              req.Email,
		Password:           req.Password,
		NewPassword:        req.NewPassword,
		IsTwoFactorEnabled: req.IsTwoFactorEnabled,
	}
	if req.Role != nil {
		role := string(*req.Role)
		in.Role = &role
	}

	out, err := internalflows.RunUpdateSettings(ctx, subjectID, in, e.settingsFlowDeps())
	if err != nil {
		return nil, err
	}
	return &SettingsResult{
		Email:       FieldStatus(out.Email),
		Password:    FieldStatus(out.Password),
		Name:        FieldStatus(out.Name),
		TwoFactor:   FieldStatus(out.TwoFactor),
		Role:        FieldStatus(out.Role),
		DeliveryErr: out.DeliveryErr,
	}, nil
}

func (e *Engine) settingsFlowDeps() internalflows.SettingsDeps {
	return internalflows.SettingsDeps{
		MinPasswordLength: e.config.Password.MinLength,
		AllowRoleChange:   e.config.Settings.AllowRoleChange,
		GetUserByID:       e.getFlowUserByID,
		GetUserByEmail:    e.getFlowUserByEmail,
		HasLinkedAccount:  e.hasLinkedAccount,
		UpdateUser: func(ctx context.Context, userID string, patch internalflows.SettingsPatch) error {
			p := UserPatch{
				Name:               patch.Name,
				CredentialHash:     patch.CredentialHash,
				IsTwoFactorEnabled: patch.IsTwoFactorEnabled,
			}
			if patch.Role != nil {
				role := Role(*patch.Role)
				p.Role = &role
			}
			return repoErr(e.repo.UpdateUser(ctx, userID, p))
		},
		VerifyPassword: e.verifyPassword,
		HashPassword:   e.hashPassword,
		ValidRole: func(r string) bool {
			return Role(r).Valid()
		},
		IssueToken: e.issueToken,
		MetricInc:  e.flowMetricInc,
		EmitAudit:  e.emitAudit,
		Metrics: internalflows.SettingsMetrics{
			SettingsUpdated:      int(MetricSettingsUpdated),
			EmailChangeRequested: int(MetricEmailChangeRequested),
			PasswordChanged:      int(MetricPasswordChanged),
			SettingsRejected:     int(MetricSettingsRejected),
		},
		Events: internalflows.SettingsEvents{
			SettingsUpdated:      auditEventSettingsUpdated,
			EmailChangeRequested: auditEventEmailChangeRequested,
			PasswordChanged:      auditEventPasswordChanged,
		},
		Errors: internalflows.SettingsErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidInput:      ErrInvalidInput,
			Unauthorized:      ErrUnauthorized,
			NotFound:          ErrNotFound,
			EmailInUse:        ErrEmailInUse,
			IncorrectPassword: ErrIncorrectPassword,
		},
	}
}
