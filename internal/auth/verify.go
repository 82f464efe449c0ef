package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"epicnotes/internal/totp"
)

// CodePeriod is how long emailed one-time codes stay valid.
const CodePeriod = 10 * time.Minute

// Verifier issues and consumes one-time code challenges. It owns the
// one-time-use invariant: a code that validated once can never validate
// again.
type Verifier struct {
	repo   Repository
	engine *totp.Engine
	now    func() time.Time
}

// NewVerifier creates a Verifier.
func NewVerifier(repo Repository, engine *totp.Engine) *Verifier {
	return &Verifier{repo: repo, engine: engine, now: time.Now}
}

// Prepare creates (or replaces) the challenge for (target, type) and
// returns the code to deliver out-of-band. Records expire after period
// except for 2FA enrollment, which stays until confirmed or cancelled.
func (v *Verifier) Prepare(ctx context.Context, typ VerificationType, target string, period time.Duration) (string, error) {
	code, key, err := v.engine.Generate(totp.Params{Algorithm: "SHA256", Period: period})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	record := Verification{
		Target:    target,
		Type:      typ,
		Secret:    key.Secret,
		Algorithm: key.Algorithm,
		Digits:    key.Digits,
		Period:    key.Period,
		CharSet:   key.CharSet,
		CreatedAt: v.now(),
	}
	if typ != VerificationTwoFactorSetup && typ != VerificationTwoFactor {
		expiresAt := v.now().Add(period)
		record.ExpiresAt = &expiresAt
	}

	if err := v.repo.UpsertVerification(ctx, record); err != nil {
		return "", fmt.Errorf("store verification: %w", err)
	}
	return code, nil
}

// IsCodeValid checks the code against the outstanding challenge without
// consuming it. Missing, expired, or mismatched challenges all come back
// false.
func (v *Verifier) IsCodeValid(ctx context.Context, code string, typ VerificationType, target string) (bool, error) {
	record, err := v.repo.FindVerification(ctx, target, typ)
	if err != nil {
		return false, fmt.Errorf("find verification: %w", err)
	}
	if record == nil {
		return false, nil
	}

	return v.engine.Verify(code, totp.Key{
		Secret:    record.Secret,
		Algorithm: record.Algorithm,
		Digits:    record.Digits,
		Period:    record.Period,
		CharSet:   record.CharSet,
	}), nil
}

// Consume validates the code and deletes the challenge. The delete count
// decides the winner when two requests race on the same code: only the
// request that removed the row succeeds. 2FA challenges are standing
// secrets (authenticator app) and are validated without deletion.
func (v *Verifier) Consume(ctx context.Context, code string, typ VerificationType, target string) (bool, error) {
	ok, err := v.IsCodeValid(ctx, code, typ, target)
	if err != nil || !ok {
		return false, err
	}

	if typ == VerificationTwoFactor {
		return true, nil
	}

	count, err := v.repo.DeleteVerification(ctx, target, typ)
	if err != nil {
		return false, fmt.Errorf("delete verification: %w", err)
	}
	return count > 0, nil
}

// ConfirmTwoFactorSetup promotes a confirmed enrollment challenge into the
// standing 2FA record that gates future logins.
func (v *Verifier) ConfirmTwoFactorSetup(ctx context.Context, code, target string) (bool, error) {
	record, err := v.repo.FindVerification(ctx, target, VerificationTwoFactorSetup)
	if err != nil {
		return false, fmt.Errorf("find verification: %w", err)
	}
	if record == nil {
		return false, nil
	}

	ok := v.engine.Verify(code, totp.Key{
		Secret:    record.Secret,
		Algorithm: record.Algorithm,
		Digits:    record.Digits,
		Period:    record.Period,
		CharSet:   record.CharSet,
	})
	if !ok {
		return false, nil
	}

	promoted := *record
	promoted.Type = VerificationTwoFactor
	promoted.ExpiresAt = nil
	promoted.CreatedAt = v.now()
	if err := v.repo.UpsertVerification(ctx, promoted); err != nil {
		return false, fmt.Errorf("promote verification: %w", err)
	}
	if _, err := v.repo.DeleteVerification(ctx, target, VerificationTwoFactorSetup); err != nil {
		return false, fmt.Errorf("delete setup verification: %w", err)
	}
	return true, nil
}

// PrepareTwoFactor starts authenticator enrollment for the target. The
// returned record carries the shared secret the user scans into their app.
// The record does not expire; it sits as 2fa-verify until confirmed or
// replaced.
func (v *Verifier) PrepareTwoFactor(ctx context.Context, target string) (*Verification, error) {
	_, key, err := v.engine.Generate(totp.Params{Algorithm: "SHA256", Period: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	record := Verification{
		Target:    target,
		Type:      VerificationTwoFactorSetup,
		Secret:    key.Secret,
		Algorithm: key.Algorithm,
		Digits:    key.Digits,
		Period:    key.Period,
		CharSet:   key.CharSet,
		CreatedAt: v.now(),
	}
	if err := v.repo.UpsertVerification(ctx, record); err != nil {
		return nil, fmt.Errorf("store verification: %w", err)
	}
	return &record, nil
}

// TwoFactorEnabled reports whether the target has a standing 2FA record.
func (v *Verifier) TwoFactorEnabled(ctx context.Context, target string) (bool, error) {
	record, err := v.repo.FindVerification(ctx, target, VerificationTwoFactor)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// DisableTwoFactor removes the standing 2FA record for the user.
func (v *Verifier) DisableTwoFactor(ctx context.Context, target string) error {
	_, err := v.repo.DeleteVerification(ctx, target, VerificationTwoFactor)
	return err
}

// VerifyURL builds the link emailed to users, pointing at the verify
// endpoint with the code prefilled.
func VerifyURL(baseURL string, typ VerificationType, target, code, redirectTo string) string {
	q := url.Values{}
	q.Set("type", string(typ))
	q.Set("target", target)
	if code != "" {
		q.Set("code", code)
	}
	if redirectTo != "" {
		q.Set("redirectTo", redirectTo)
	}
	return baseURL + "/verify?" + q.Encode()
}
