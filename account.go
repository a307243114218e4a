package credauth

import (
	"context"
	"errors"
	"fmt"
)

// sendVerificationEmail issues an email-verify code for the identity and
// delivers it. Delivery failure is logged and reported as false; it never
// aborts the parent operation.
func (e *Engine) sendVerificationEmail(ctx context.Context, identity *Identity) bool {
	code, err := e.codes.Issue(ctx, identity.ID, PurposeEmailVerify)
	if err != nil {
		e.log.Warn(ctx, "verification code issue failed", "identity", identity.ID, "err", err)
		return false
	}
	body := fmt.Sprintf(`<p>Confirm your email address with this link token:</p><p><code>%s</code></p>`, code)
	if err := e.sender.Send(ctx, identity.Email, "Verify your email", body); err != nil {
		e.log.Warn(ctx, "verification email send failed", "identity", identity.ID, "err", err)
		e.metrics.inc(MetricEmailSendFailure)
		return false
	}
	return true
}

// RequestEmailVerification re-issues and re-sends the verification link for
// an identity, superseding any outstanding one. The returned flag reports
// delivery, not issuance.
func (e *Engine) RequestEmailVerification(ctx context.Context, identityID string) (bool, error) {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return false, ErrIdentityNotFound
		}
		return false, storeFailure(err)
	}
	return e.sendVerificationEmail(ctx, identity), nil
}

// ConfirmEmailVerification consumes a link token and marks its identity
// verified.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, code string) error {
	identityID, err := e.codes.Consume(ctx, code, PurposeEmailVerify)
	if err != nil {
		return err
	}
	if err := e.store.MarkEmailVerified(ctx, identityID); err != nil {
		return storeFailure(err)
	}
	return nil
}

// RequestPasswordReset issues a reset OTP for the account behind email and
// delivers it. Unknown emails return (false, nil), not an error, so the
// transport layer can answer uniformly without revealing whether the
// account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	identity, err := e.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return false, nil
		}
		return false, storeFailure(err)
	}

	code, err := e.codes.Issue(ctx, identity.ID, PurposePasswordReset)
	if err != nil {
		return false, err
	}
	body := fmt.Sprintf(`<p>Your password reset code is:</p><p><strong>%s</strong></p><p>It expires in %s.</p>`,
		code, e.config.Codes.PasswordResetTTL)
	if err := e.sender.Send(ctx, identity.Email, "Password reset code", body); err != nil {
		e.log.Warn(ctx, "reset email send failed", "identity", identity.ID, "err", err)
		e.metrics.inc(MetricEmailSendFailure)
		return false, nil
	}
	return true, nil
}

// ConfirmPasswordReset consumes a reset OTP, replaces the password hash,
// and closes every refresh session for the identity so stolen refresh
// tokens die with the old password.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	identityID, err := e.codes.Consume(ctx, code, PurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.store.UpdatePasswordHash(ctx, identityID, hash); err != nil {
		return storeFailure(err)
	}
	if err := e.store.DeleteRefreshRecordsForIdentity(ctx, identityID); err != nil {
		e.log.Warn(ctx, "session revocation after reset failed", "identity", identityID, "err", err)
	}
	return nil
}
