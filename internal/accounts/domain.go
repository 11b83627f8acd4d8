package accounts

import (
	"fmt"
	"time"

	"golang.org/x/text/secure/precis"

	"github.com/bestshop/bestshop/internal/shared"
)

// Role classifies an account for routing after login.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Valid reports whether the role is one of the recognized set.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// User represents a registered account.
type User struct {
	ID             int64
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Address        string
	PasswordDigest string
	Role           Role
	Verified       bool
	CreatedAt      time.Time
}

// DisplayName returns the name shown in the session after login.
func (u *User) DisplayName() string {
	return u.FirstName
}

// NewUser carries the fields required to create an account.
type NewUser struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Address        string
	PasswordDigest string
	Role           Role
}

// ResetToken is the single live password-reset token for an email.
type ResetToken struct {
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// VerificationToken is the single live email-verification token for an email.
type VerificationToken struct {
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	Consumed  bool
}

// NormalizeEmail canonicalizes an email address through the PRECIS
// UsernameCaseMapped profile, lowercasing it so lookups are case-insensitive.
// Empty input is rejected here rather than left to caller-side validation.
func NormalizeEmail(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: email: empty", shared.ErrValidation)
	}
	normalized, err := precis.UsernameCaseMapped.String(raw)
	if err != nil {
		return "", fmt.Errorf("%w: email: %v", shared.ErrValidation, err)
	}
	return normalized, nil
}
