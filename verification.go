package credauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kmarlow/credauth/internal"
)

// CodeManager issues and consumes single-use, time-boxed verification
// codes. Email verification uses high-entropy hex link tokens; password
// reset uses fixed-width numeric OTPs users can type back.
//
// At most one unexpired code per (subject, purpose) is authoritative:
// issuing supersedes any prior code, and consuming deletes atomically so a
// code can never be redeemed twice, sequentially or concurrently.
type CodeManager struct {
	codes   CodeStore
	config  CodeConfig
	metrics *Metrics
	now     func() time.Time
}

// Issue generates a fresh code for subject+purpose, deletes any prior code
// of the same purpose for the subject, persists the new one, and returns it
// for delivery. The caller owns delivery (see [Engine.RequestPasswordReset]).
func (m *CodeManager) Issue(ctx context.Context, subject string, purpose Purpose) (string, error) {
	var (
		code string
		ttl  time.Duration
		err  error
	)
	switch purpose {
	case PurposeEmailVerify:
		code, err = internal.NewLinkToken()
		ttl = m.config.EmailVerifyTTL
	case PurposePasswordReset:
		code, err = internal.NewOTP(m.config.ResetOTPDigits)
		ttl = m.config.PasswordResetTTL
	default:
		return "", fmt.Errorf("unknown code purpose %q", purpose)
	}
	if err != nil {
		return "", fmt.Errorf("generate %s code: %w", purpose, err)
	}

	if err := m.codes.DeleteCodesForSubject(ctx, subject, purpose); err != nil {
		return "", storeFailure(err)
	}
	record := &VerificationCode{
		Subject:   subject,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: m.now().Add(ttl),
	}
	if err := m.codes.InsertCode(ctx, record); err != nil {
		return "", storeFailure(err)
	}

	m.metrics.inc(MetricCodeIssued)
	return code, nil
}

// Consume redeems a code exactly once and returns its subject. Missing,
// expired, superseded, and already-consumed codes all fail with the uniform
// [ErrCodeInvalid]; the delete-reports-affected-rows pattern makes the
// lookup and the consumption inseparable even under concurrent attempts.
func (m *CodeManager) Consume(ctx context.Context, code string, purpose Purpose) (string, error) {
	record, err := m.codes.FindCode(ctx, code, purpose, m.now())
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			m.metrics.inc(MetricCodeRejected)
			return "", ErrCodeInvalid
		}
		return "", storeFailure(err)
	}

	affected, err := m.codes.DeleteCode(ctx, code, purpose)
	if err != nil {
		return "", storeFailure(err)
	}
	if affected == 0 {
		// A concurrent Consume won between the find and the delete.
		m.metrics.inc(MetricCodeRejected)
		return "", ErrCodeInvalid
	}

	m.metrics.inc(MetricCodeConsumed)
	return record.Subject, nil
}
