package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// Family groups the engine counters of one flow. Each member counter is one
// outcome of that flow, exported under a single labeled series.
type Family struct {
	Name    string
	Help    string
	Members []Member
}

// Member binds an engine counter to its outcome label inside a family.
type Member struct {
	ID      goIdentity.MetricID
	Outcome string
}

// PromName is the Prometheus counter name, e.g. goidentity_sign_in_total.
func (f Family) PromName() string {
	return "goidentity_" + f.Name + "_total"
}

// OTelName is the OpenTelemetry instrument name, e.g. goidentity.sign_in.
func (f Family) OTelName() string {
	return "goidentity." + f.Name
}

// OutcomeLabel is the label (Prometheus) or attribute key (OTel) carrying
// Member.Outcome.
const OutcomeLabel = "outcome"

const (
	LatencyPromName = "goidentity_sign_in_latency_seconds"
	LatencyOTelName = "goidentity.sign_in.latency"
	LatencyHelp     = "Credential sign-in latency."

	AuditDroppedPromName = "goidentity_audit_dropped_total"
	AuditDroppedOTelName = "goidentity.audit.dropped"
	AuditDroppedHelp     = "Audit events dropped because the dispatcher buffer was full."
)

// Families lists every engine counter exactly once.
var Families = []Family{
	{Name: "sign_in", Help: "Credential and OAuth sign-in outcomes.", Members: []Member{
		{goIdentity.MetricSignInAuthorized, "authorized"},
		{goIdentity.MetricSignInRejected, "rejected"},
		{goIdentity.MetricSignInRateLimited, "locked_out"},
		{goIdentity.MetricSignInUnverified, "email_unverified"},
	}},
	{Name: "two_factor", Help: "Two-factor gate outcomes.", Members: []Member{
		{goIdentity.MetricTwoFactorRequired, "required"},
		{goIdentity.MetricTwoFactorConfirmed, "confirmed"},
		{goIdentity.MetricTwoFactorFailure, "failed"},
	}},
	{Name: "oauth", Help: "OAuth callback outcomes.", Members: []Member{
		{goIdentity.MetricOAuthLinked, "linked"},
		{goIdentity.MetricOAuthRejected, "rejected"},
	}},
	{Name: "token", Help: "Single-use token lifecycle events.", Members: []Member{
		{goIdentity.MetricTokenIssued, "issued"},
		{goIdentity.MetricTokenConsumed, "consumed"},
		{goIdentity.MetricTokenExpired, "expired"},
		{goIdentity.MetricTokenRejected, "rejected"},
		{goIdentity.MetricTokenRateLimited, "throttled"},
	}},
	{Name: "mail", Help: "Notification delivery failures.", Members: []Member{
		{goIdentity.MetricMailFailure, "failed"},
	}},
	{Name: "registration", Help: "Self-service registration outcomes.", Members: []Member{
		{goIdentity.MetricRegisterSuccess, "created"},
		{goIdentity.MetricRegisterDuplicate, "email_in_use"},
	}},
	{Name: "email_verification", Help: "Email verification outcomes, including email changes.", Members: []Member{
		{goIdentity.MetricEmailVerified, "verified"},
		{goIdentity.MetricEmailConflict, "email_in_use"},
	}},
	{Name: "password_reset", Help: "Password reset requests and completions.", Members: []Member{
		{goIdentity.MetricPasswordResetRequest, "requested"},
		{goIdentity.MetricPasswordResetSuccess, "completed"},
	}},
	{Name: "settings", Help: "Self-service settings outcomes.", Members: []Member{
		{goIdentity.MetricSettingsUpdated, "updated"},
		{goIdentity.MetricEmailChangeRequested, "email_change_pending"},
		{goIdentity.MetricPasswordChanged, "password_changed"},
		{goIdentity.MetricSettingsRejected, "rejected"},
	}},
	{Name: "session", Help: "Session artifact outcomes.", Members: []Member{
		{goIdentity.MetricSessionIssued, "issued"},
		{goIdentity.MetricSessionRejected, "rejected"},
	}},
}

// LatencyBounds are the upper bounds in seconds of the engine's latency
// buckets, rendered as le label values.
var LatencyBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets turns the engine's per-bucket counts into running totals.
// Short input is zero-filled; the last element is the sample count.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
