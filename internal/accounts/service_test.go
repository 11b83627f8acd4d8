package accounts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestshop/bestshop/internal/password"
	"github.com/bestshop/bestshop/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users        map[string]*User
	resetTokens  map[string]*ResetToken
	verifyTokens map[string]*VerificationToken
	nextUserID   int64

	// Error injection
	countError  error
	insertError error
	upsertError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:        make(map[string]*User),
		resetTokens:  make(map[string]*ResetToken),
		verifyTokens: make(map[string]*VerificationToken),
		nextUserID:   1,
	}
}

func (m *mockRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepository) CountUsersByEmail(ctx context.Context, email string) (int64, error) {
	if m.countError != nil {
		return 0, m.countError
	}
	if _, ok := m.users[email]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *mockRepository) InsertUser(ctx context.Context, user NewUser) (int64, error) {
	if m.insertError != nil {
		return 0, m.insertError
	}
	if _, ok := m.users[user.Email]; ok {
		return 0, shared.ErrDuplicateEmail
	}
	id := m.nextUserID
	m.nextUserID++
	m.users[user.Email] = &User{
		ID:             id,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Email,
		Phone:          user.Phone,
		Address:        user.Address,
		PasswordDigest: user.PasswordDigest,
		Role:           user.Role,
		CreatedAt:      time.Now().UTC(),
	}
	return id, nil
}

func (m *mockRepository) UpdatePasswordDigest(ctx context.Context, email, digest string) error {
	u, ok := m.users[email]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordDigest = digest
	return nil
}

func (m *mockRepository) UpsertResetToken(ctx context.Context, tok ResetToken) error {
	if m.upsertError != nil {
		return m.upsertError
	}
	tok.CreatedAt = time.Now().UTC()
	m.resetTokens[tok.Email] = &tok
	return nil
}

func (m *mockRepository) FindResetToken(ctx context.Context, email string) (*ResetToken, error) {
	tok, ok := m.resetTokens[email]
	if !ok {
		return nil, shared.ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *mockRepository) DeleteResetToken(ctx context.Context, email string) error {
	delete(m.resetTokens, email)
	return nil
}

func (m *mockRepository) CompleteReset(ctx context.Context, email, digest string) error {
	u, ok := m.users[email]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordDigest = digest
	delete(m.resetTokens, email)
	return nil
}

func (m *mockRepository) UpsertVerificationToken(ctx context.Context, tok VerificationToken) error {
	if m.upsertError != nil {
		return m.upsertError
	}
	tok.Consumed = false
	tok.CreatedAt = time.Now().UTC()
	m.verifyTokens[tok.Email] = &tok
	return nil
}

func (m *mockRepository) FindVerificationToken(ctx context.Context, email string) (*VerificationToken, error) {
	tok, ok := m.verifyTokens[email]
	if !ok {
		return nil, shared.ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *mockRepository) DeleteVerificationToken(ctx context.Context, email string) error {
	delete(m.verifyTokens, email)
	return nil
}

func (m *mockRepository) CompleteVerification(ctx context.Context, email string) error {
	tok, ok := m.verifyTokens[email]
	if !ok || tok.Consumed {
		return shared.ErrTokenConsumed
	}
	tok.Consumed = true
	if u, ok := m.users[email]; ok {
		u.Verified = true
	}
	return nil
}

var _ Repository = (*mockRepository)(nil)

// ============================================================================
// MOCK NOTIFIER
// ============================================================================

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type mockNotifier struct {
	sent      []sentEmail
	sendError error
}

func (n *mockNotifier) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if n.sendError != nil {
		return n.sendError
	}
	n.sent = append(n.sent, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func newTestService(t *testing.T) (*Service, *mockRepository, *mockNotifier) {
	t.Helper()
	repo := newMockRepository()
	notifier := &mockNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, repo, password.NewHasher(true), notifier, ServiceConfig{
		BaseURL:              "https://shop.example.com",
		ResetTokenTTL:        24 * time.Hour,
		VerificationTokenTTL: 24 * time.Hour,
	})
	return svc, repo, notifier
}

func registerInput() RegisterInput {
	return RegisterInput{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Phone:           "+15550100",
		Address:         "12 Analytical Way",
		Password:        "difference engine",
		ConfirmPassword: "difference engine",
	}
}

func registerTestUser(t *testing.T, svc *Service) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	return user
}

func legacyDigest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// REGISTRATION TESTS
// ============================================================================

func TestRegister(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, RoleCustomer, user.Role)

	stored, err := repo.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "difference engine", stored.PasswordDigest)
	assert.False(t, stored.Verified)

	// A verification token was issued and mailed.
	tok, err := repo.FindVerificationToken(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, tok.Consumed)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ada@example.com", notifier.sent[0].To)
	assert.Contains(t, notifier.sent[0].Subject, "Verify")
	assert.Contains(t, notifier.sent[0].Body, tok.Token)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	in := registerInput()
	in.Email = "Ada@Example.COM"
	user, err := svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = repo.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	_, err := svc.Register(ctx, registerInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestRegisterDuplicateEmailDifferentCase(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	in := registerInput()
	in.Email = "ADA@example.com"
	_, err := svc.Register(ctx, in)
	assert.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*RegisterInput){
		"missing first name":   func(in *RegisterInput) { in.FirstName = "" },
		"malformed email":      func(in *RegisterInput) { in.Email = "not-an-email" },
		"missing address":      func(in *RegisterInput) { in.Address = "" },
		"password too short":   func(in *RegisterInput) { in.Password = "abcd"; in.ConfirmPassword = "abcd" },
		"password too long":    func(in *RegisterInput) { s := strings.Repeat("x", 51); in.Password = s; in.ConfirmPassword = s },
		"confirmation differs": func(in *RegisterInput) { in.ConfirmPassword = "something else" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := registerInput()
			mutate(&in)
			_, err := svc.Register(ctx, in)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestRegisterSucceedsWhenEmailSendFails(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()
	notifier.sendError = errors.New("relay down")

	user, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)
	require.NotNil(t, user)

	// The token is still on record for a later resend.
	_, err = repo.FindVerificationToken(ctx, "ada@example.com")
	require.NoError(t, err)
}

// ============================================================================
// LOGIN TESTS
// ============================================================================

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	user, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "difference engine"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	identity := SessionIdentity(user)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "Ada", identity.DisplayName)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "customer", identity.Role)
}

func TestLoginEmailCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	_, err := svc.Login(ctx, LoginInput{Email: "ADA@Example.com", Password: "difference engine"})
	require.NoError(t, err)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	// Unknown email and wrong password collapse into the same outcome.
	_, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "difference engine"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginInput{Email: "", Password: "secret"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: ""})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestLoginRehashesLegacyDigest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	repo.users["ada@example.com"].PasswordDigest = legacyDigest("difference engine")

	_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "difference engine"})
	require.NoError(t, err)

	stored, err := repo.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordDigest, "$2"), "legacy digest should be upgraded to bcrypt")

	// The upgraded digest still verifies.
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "difference engine"})
	require.NoError(t, err)
}

func TestLoginLegacyDigestRejectedWhenDisabled(t *testing.T) {
	repo := newMockRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, repo, password.NewHasher(false), &mockNotifier{}, ServiceConfig{BaseURL: "https://shop.example.com"})

	_, err := repo.InsertUser(context.Background(), NewUser{
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		Address:        "12 Analytical Way",
		PasswordDigest: legacyDigest("difference engine"),
		Role:           RoleCustomer,
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), LoginInput{Email: "ada@example.com", Password: "difference engine"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

// ============================================================================
// PASSWORD RESET TESTS
// ============================================================================

func TestRequestResetKnownEmail(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	notifier.sent = nil

	msg, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, ResetRequestMessage, msg)

	tok, err := repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ada@example.com", notifier.sent[0].To)
	assert.Contains(t, notifier.sent[0].Body, tok.Token)
}

func TestRequestResetUnknownEmail(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	msg, err := svc.RequestReset(ctx, "nobody@example.com")
	require.NoError(t, err)

	// Same message as the registered case, no token, no email.
	assert.Equal(t, ResetRequestMessage, msg)
	_, err = repo.FindResetToken(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
	assert.Empty(t, notifier.sent)
}

func TestRequestResetMalformedEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RequestReset(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRequestResetReplacesPriorToken(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	_, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	first, err := repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)

	_, err = svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	second, err := repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)

	// The superseded token no longer redeems.
	err = svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           first.Token,
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	})
	assert.ErrorIs(t, err, shared.ErrTokenMismatch)
}

func TestRequestResetSucceedsWhenEmailSendFails(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	notifier.sendError = errors.New("relay down")

	msg, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, ResetRequestMessage, msg)

	// The token stays live so a retried delivery can still be redeemed.
	_, err = repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)
}

func TestRedeemReset(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	_, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	tok, err := repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)

	err = svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           tok.Token,
		NewPassword:     "analytical engine",
		ConfirmPassword: "analytical engine",
	})
	require.NoError(t, err)

	// Old password is dead, new one works.
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "difference engine"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "analytical engine"})
	require.NoError(t, err)

	// The token was consumed with the digest update.
	err = svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           tok.Token,
		NewPassword:     "yet another one",
		ConfirmPassword: "yet another one",
	})
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestRedeemResetWrongToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	_, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	err = svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           "bogus-token",
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	})
	assert.ErrorIs(t, err, shared.ErrTokenMismatch)

	// The password is unchanged after a failed redemption.
	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "difference engine"})
	require.NoError(t, err)
}

func TestRedeemResetExpiredToken(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	_, err := svc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	tok, err := repo.FindResetToken(ctx, "ada@example.com")
	require.NoError(t, err)

	in := RedeemResetInput{
		Email:           "ada@example.com",
		Token:           tok.Token,
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	}

	// Exactly at the expiry instant the token still redeems.
	svc.now = func() time.Time { return tok.ExpiresAt }
	cp := in
	cp.Token = "probe"
	assert.ErrorIs(t, svc.RedeemReset(ctx, cp), shared.ErrTokenMismatch)

	// One second past expiry it does not, and the dead row is purged.
	svc.now = func() time.Time { return tok.ExpiresAt.Add(time.Second) }
	assert.ErrorIs(t, svc.RedeemReset(ctx, in), shared.ErrTokenExpired)
	_, err = repo.FindResetToken(ctx, "ada@example.com")
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestRedeemResetUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.RedeemReset(context.Background(), RedeemResetInput{
		Email:           "nobody@example.com",
		Token:           "whatever",
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	})
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestRedeemResetValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           "tok",
		NewPassword:     "abcd",
		ConfirmPassword: "abcd",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = svc.RedeemReset(ctx, RedeemResetInput{
		Email:           "ada@example.com",
		Token:           "tok",
		NewPassword:     "new password",
		ConfirmPassword: "different",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ============================================================================
// EMAIL VERIFICATION TESTS
// ============================================================================

func TestVerifyEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	tok, err := repo.FindVerificationToken(ctx, "ada@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(ctx, "ada@example.com", tok.Token))

	user, err := repo.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, user.Verified)

	// The link is single-use: replaying it reports the consumed state.
	err = svc.VerifyEmail(ctx, "ada@example.com", tok.Token)
	assert.ErrorIs(t, err, shared.ErrTokenConsumed)
}

func TestVerifyEmailWrongToken(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)

	err := svc.VerifyEmail(ctx, "ada@example.com", "bogus-token")
	assert.ErrorIs(t, err, shared.ErrTokenMismatch)

	user, err := repo.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, user.Verified)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc)
	tok, err := repo.FindVerificationToken(ctx, "ada@example.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return tok.ExpiresAt.Add(time.Second) }
	err = svc.VerifyEmail(ctx, "ada@example.com", tok.Token)
	assert.ErrorIs(t, err, shared.ErrTokenExpired)

	// The expired row was purged along the way.
	_, err = repo.FindVerificationToken(ctx, "ada@example.com")
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestVerifyEmailUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.VerifyEmail(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestVerifyEmailMissingParams(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.VerifyEmail(ctx, "", "tok"), shared.ErrValidation)
	assert.ErrorIs(t, svc.VerifyEmail(ctx, "ada@example.com", ""), shared.ErrValidation)
}

// ============================================================================
// DOMAIN TESTS
// ============================================================================

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("Ada@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got)

	_, err = NormalizeEmail("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleCustomer.Valid())
	assert.False(t, Role("root").Valid())
}
