package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bestshop/bestshop/internal/shared"
	"github.com/bestshop/bestshop/internal/token"
)

// RegisterInput carries the registration form fields. There is no role field:
// every account created through this path is a customer, and elevation happens
// through an administrative channel only.
type RegisterInput struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,max=32"`
	Address         string `json:"address" validate:"required"`
	Password        string `json:"password" validate:"required,min=5,max=50"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// Register validates the input, creates the account, and issues a
// verification token. The verification email is dispatched on a best-effort
// basis: a notification failure is logged but never fails the registration,
// so a flaky mail relay cannot strand a created account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountUsersByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, shared.ErrDuplicateEmail
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// The unique index remains the authoritative guard: a concurrent
	// registration that wins the race between the count and this insert
	// surfaces here as ErrDuplicateEmail.
	id, err := s.repo.InsertUser(ctx, NewUser{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          email,
		Phone:          in.Phone,
		Address:        in.Address,
		PasswordDigest: digest,
		Role:           RoleCustomer,
	})
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:        id,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     email,
		Phone:     in.Phone,
		Address:   in.Address,
		Role:      RoleCustomer,
	}

	s.issueVerification(ctx, user)
	return user, nil
}

// issueVerification persists a fresh verification token and emails the link.
// Failures are logged only; the account already exists at this point.
func (s *Service) issueVerification(ctx context.Context, user *User) {
	tok, err := token.Generate()
	if err != nil {
		s.logger.Error("generate verification token", slog.String("email", user.Email), slog.Any("error", err))
		return
	}
	err = s.repo.UpsertVerificationToken(ctx, VerificationToken{
		Email:     user.Email,
		Token:     tok,
		ExpiresAt: s.now().Add(s.cfg.VerificationTokenTTL),
	})
	if err != nil {
		s.logger.Error("store verification token", slog.String("email", user.Email), slog.Any("error", err))
		return
	}

	subject, body := verificationEmail(s.cfg.BaseURL, user.Email, tok, user.FirstName)
	if err := s.notifier.SendEmail(ctx, user.Email, subject, body); err != nil {
		if !errors.Is(err, shared.ErrNotifierUnavailable) {
			err = errors.Join(shared.ErrNotifierUnavailable, err)
		}
		s.logger.Error("send verification email", slog.String("email", user.Email), slog.Any("error", err))
	}
}
