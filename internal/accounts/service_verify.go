package accounts

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/bestshop/bestshop/internal/shared"
)

// VerifyEmail redeems a verification token from the emailed link. Redemption
// is idempotent: a second attempt with the same token reports
// ErrTokenConsumed rather than failing harder.
func (s *Service) VerifyEmail(ctx context.Context, rawEmail, tok string) error {
	if rawEmail == "" || tok == "" {
		return fmt.Errorf("%w: invalid verification link", shared.ErrValidation)
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	stored, err := s.repo.FindVerificationToken(ctx, email)
	if err != nil {
		return err
	}
	if s.now().After(stored.ExpiresAt) {
		if err := s.repo.DeleteVerificationToken(ctx, email); err != nil {
			s.logger.Warn("purge expired verification token", slog.String("email", email), slog.Any("error", err))
		}
		return shared.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(tok)) != 1 {
		return shared.ErrTokenMismatch
	}
	if stored.Consumed {
		return shared.ErrTokenConsumed
	}

	return s.repo.CompleteVerification(ctx, email)
}
