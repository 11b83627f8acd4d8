package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/bestshop/bestshop/internal/shared"
	"github.com/bestshop/bestshop/internal/token"
)

// ResetRequestMessage is returned for every reset request that passes
// validation, whether or not the email is registered. Changing this for
// known emails would reintroduce the enumeration leak the flow exists to
// avoid.
const ResetRequestMessage = "If your email is registered, you will receive password reset instructions."

// RedeemResetInput carries the fields from the reset link form.
type RedeemResetInput struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=5,max=50"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// RequestReset issues a reset token for a registered email and mails the
// reset link. For an unknown email it does nothing. Both paths report the
// same message; only infrastructure failures surface as errors.
func (s *Service) RequestReset(ctx context.Context, rawEmail string) (string, error) {
	in := struct {
		Email string `validate:"required,email"`
	}{Email: rawEmail}
	if err := s.validate.Struct(in); err != nil {
		return "", validationError(err)
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return "", err
	}

	// Concurrent requests for the same email collapse into one issuance, so
	// a burst of retries yields a single live token and a single email.
	_, err, _ = s.resetGroup.Do(email, func() (any, error) {
		return nil, s.issueReset(ctx, email)
	})
	if err != nil {
		return "", err
	}
	return ResetRequestMessage, nil
}

func (s *Service) issueReset(ctx context.Context, email string) error {
	count, err := s.repo.CountUsersByEmail(ctx, email)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	tok, err := token.Generate()
	if err != nil {
		return err
	}
	err = s.repo.UpsertResetToken(ctx, ResetToken{
		Email:     email,
		Token:     tok,
		ExpiresAt: s.now().Add(s.cfg.ResetTokenTTL),
	})
	if err != nil {
		return err
	}

	subject, body := resetEmail(s.cfg.BaseURL, email, tok)
	if err := s.notifier.SendEmail(ctx, email, subject, body); err != nil {
		// Delivery failure stays internal: the caller still gets the generic
		// message, and the token remains redeemable if the mail retries.
		if !errors.Is(err, shared.ErrNotifierUnavailable) {
			err = errors.Join(shared.ErrNotifierUnavailable, err)
		}
		s.logger.Error("send reset email", slog.String("email", email), slog.Any("error", err))
	}
	return nil
}

// RedeemReset exchanges a valid reset token for a new password. The token is
// deleted in the same transaction that updates the digest, so it can never
// be redeemed twice.
func (s *Service) RedeemReset(ctx context.Context, in RedeemResetInput) error {
	if err := s.validate.Struct(in); err != nil {
		return validationError(err)
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return err
	}

	stored, err := s.repo.FindResetToken(ctx, email)
	if err != nil {
		return err
	}
	if s.now().After(stored.ExpiresAt) {
		// A dead token has no further use; purge it so the row does not
		// linger until the next issuance overwrites it.
		if err := s.repo.DeleteResetToken(ctx, email); err != nil {
			s.logger.Warn("purge expired reset token", slog.String("email", email), slog.Any("error", err))
		}
		return shared.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(in.Token)) != 1 {
		return shared.ErrTokenMismatch
	}

	digest, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	return s.repo.CompleteReset(ctx, email, digest)
}
