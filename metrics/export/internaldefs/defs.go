package internaldefs

import (
	"github.com/kmarlow/credauth"
)

// CounterDef maps a core counter to its exported name and help text.
type CounterDef struct {
	ID   credauth.MetricID
	Name string
	Help string
}

// CounterDefs is the shared definition table for all exporters. Both the
// Prometheus and OTel exporters iterate this slice, so the two surfaces can
// never disagree on names.
var CounterDefs = []CounterDef{
	{ID: credauth.MetricLoginSuccess, Name: "credauth_login_success_total", Help: "Successful login attempts."},
	{ID: credauth.MetricLoginFailure, Name: "credauth_login_failure_total", Help: "Failed login attempts."},
	{ID: credauth.MetricLoginRateLimited, Name: "credauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: credauth.MetricSessionCreated, Name: "credauth_session_created_total", Help: "Created refresh sessions."},
	{ID: credauth.MetricRefreshSuccess, Name: "credauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: credauth.MetricRefreshFailure, Name: "credauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: credauth.MetricRefreshRaceLost, Name: "credauth_refresh_race_lost_total", Help: "Refresh rotations lost to a concurrent winner."},
	{ID: credauth.MetricLogout, Name: "credauth_logout_total", Help: "Logout operations."},
	{ID: credauth.MetricCodeIssued, Name: "credauth_code_issued_total", Help: "Issued verification codes."},
	{ID: credauth.MetricCodeConsumed, Name: "credauth_code_consumed_total", Help: "Consumed verification codes."},
	{ID: credauth.MetricCodeRejected, Name: "credauth_code_rejected_total", Help: "Rejected verification code attempts."},
	{ID: credauth.MetricRegisterSuccess, Name: "credauth_register_success_total", Help: "Successful registrations."},
	{ID: credauth.MetricRegisterConflict, Name: "credauth_register_conflict_total", Help: "Registrations rejected for an email or username conflict."},
	{ID: credauth.MetricEmailSendFailure, Name: "credauth_email_send_failure_total", Help: "Verification emails that failed to send."},
}
