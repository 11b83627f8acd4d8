package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bestshop/bestshop/internal/shared"
)

// dummyDigest keeps the cost of a login against an unknown email comparable
// to one against a known email, so response timing does not reveal which
// addresses are registered.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginInput carries the login form fields.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// classify reduces the lookup and password comparison to a single outcome.
// An unknown email and a wrong password are indistinguishable to the caller.
func classify(user *User, passwordMatch bool) error {
	if user == nil || !passwordMatch {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// Login verifies the submitted credentials and returns the account on
// success. The caller is responsible for binding the returned identity to a
// session.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.hasher.Verify(in.Password, dummyDigest)
			return nil, classify(nil, false)
		}
		return nil, err
	}

	match := s.hasher.Verify(in.Password, user.PasswordDigest)
	if err := classify(user, match); err != nil {
		return nil, err
	}

	s.maybeRehash(ctx, user, in.Password)
	return user, nil
}

// SessionIdentity maps an account to the fields a session carries.
func SessionIdentity(u *User) shared.Identity {
	return shared.Identity{
		UserID:      u.ID,
		DisplayName: u.DisplayName(),
		Email:       u.Email,
		Role:        string(u.Role),
	}
}

// maybeRehash upgrades legacy digests opportunistically after a successful
// verification. A failure leaves the old digest in place and the login
// unaffected.
func (s *Service) maybeRehash(ctx context.Context, user *User, plaintext string) {
	if !s.hasher.NeedsRehash(user.PasswordDigest) {
		return
	}
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		s.logger.Warn("rehash digest", slog.String("email", user.Email), slog.Any("error", err))
		return
	}
	if err := s.repo.UpdatePasswordDigest(ctx, user.Email, digest); err != nil {
		s.logger.Warn("store rehashed digest", slog.String("email", user.Email), slog.Any("error", err))
		return
	}
	user.PasswordDigest = digest
}
