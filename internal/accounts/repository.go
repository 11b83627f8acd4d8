package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bestshop/bestshop/internal/platform/db"
	"github.com/bestshop/bestshop/internal/shared"
)

// Repository defines persistence operations for the credential store.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CountUsersByEmail(ctx context.Context, email string) (int64, error)
	InsertUser(ctx context.Context, user NewUser) (int64, error)
	UpdatePasswordDigest(ctx context.Context, email, digest string) error

	UpsertResetToken(ctx context.Context, tok ResetToken) error
	FindResetToken(ctx context.Context, email string) (*ResetToken, error)
	DeleteResetToken(ctx context.Context, email string) error
	// CompleteReset updates the password digest and removes the live reset
	// token in a single transaction.
	CompleteReset(ctx context.Context, email, digest string) error

	UpsertVerificationToken(ctx context.Context, tok VerificationToken) error
	FindVerificationToken(ctx context.Context, email string) (*VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, email string) error
	// CompleteVerification marks the token consumed and the user verified in
	// a single transaction.
	CompleteVerification(ctx context.Context, email string) error
}

const uniqueViolation = "23505"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindUserByEmail fetches a user by normalized email.
func (r *PGRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, address, password_digest, role, verified, created_at
		FROM users WHERE email = $1`, email)
	var user User
	if err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Phone,
		&user.Address, &user.PasswordDigest, &user.Role, &user.Verified, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, storeErr("find user", err)
	}
	return &user, nil
}

// CountUsersByEmail reports how many accounts use the email.
func (r *PGRepository) CountUsersByEmail(ctx context.Context, email string) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&count); err != nil {
		return 0, storeErr("count users", err)
	}
	return count, nil
}

// InsertUser creates an account. The unique index on email is the
// authoritative duplicate guard; a violation surfaces as ErrDuplicateEmail
// regardless of any pre-check the caller ran.
func (r *PGRepository) InsertUser(ctx context.Context, user NewUser) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, phone, address, password_digest, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`,
		user.FirstName, user.LastName, user.Email, user.Phone, user.Address,
		user.PasswordDigest, user.Role).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, shared.ErrDuplicateEmail
		}
		return 0, storeErr("insert user", err)
	}
	return id, nil
}

// UpdatePasswordDigest replaces the stored digest for the email.
func (r *PGRepository) UpdatePasswordDigest(ctx context.Context, email, digest string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_digest = $2 WHERE email = $1`, email, digest)
	if err != nil {
		return storeErr("update digest", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpsertResetToken installs tok as the single live reset token for its email.
// The single-statement upsert makes concurrent issuers converge on the last
// writer.
func (r *PGRepository) UpsertResetToken(ctx context.Context, tok ResetToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (email, token, expiry_date, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (email) DO UPDATE
		SET token = EXCLUDED.token, expiry_date = EXCLUDED.expiry_date, created_at = now()`,
		tok.Email, tok.Token, tok.ExpiresAt)
	if err != nil {
		return storeErr("upsert reset token", err)
	}
	return nil
}

// FindResetToken returns the live reset token for the email.
func (r *PGRepository) FindResetToken(ctx context.Context, email string) (*ResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, token, expiry_date, created_at
		FROM password_reset_tokens WHERE email = $1`, email)
	var tok ResetToken
	if err := row.Scan(&tok.Email, &tok.Token, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrTokenNotFound
		}
		return nil, storeErr("find reset token", err)
	}
	return &tok, nil
}

// DeleteResetToken removes the live reset token for the email.
func (r *PGRepository) DeleteResetToken(ctx context.Context, email string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE email = $1`, email); err != nil {
		return storeErr("delete reset token", err)
	}
	return nil
}

// CompleteReset applies the new digest and consumes the token atomically.
func (r *PGRepository) CompleteReset(ctx context.Context, email, digest string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET password_digest = $2 WHERE email = $1`, email, digest)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE email = $1`, email)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return storeErr("complete reset", err)
	}
	return nil
}

// UpsertVerificationToken installs tok as the single live verification token
// for its email, clearing any consumed marker from a prior token.
func (r *PGRepository) UpsertVerificationToken(ctx context.Context, tok VerificationToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_verification_tokens (email, token, expiry_date, consumed, created_at)
		VALUES ($1, $2, $3, FALSE, now())
		ON CONFLICT (email) DO UPDATE
		SET token = EXCLUDED.token, expiry_date = EXCLUDED.expiry_date, consumed = FALSE, created_at = now()`,
		tok.Email, tok.Token, tok.ExpiresAt)
	if err != nil {
		return storeErr("upsert verification token", err)
	}
	return nil
}

// FindVerificationToken returns the live verification token for the email.
func (r *PGRepository) FindVerificationToken(ctx context.Context, email string) (*VerificationToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, token, expiry_date, consumed, created_at
		FROM email_verification_tokens WHERE email = $1`, email)
	var tok VerificationToken
	if err := row.Scan(&tok.Email, &tok.Token, &tok.ExpiresAt, &tok.Consumed, &tok.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrTokenNotFound
		}
		return nil, storeErr("find verification token", err)
	}
	return &tok, nil
}

// DeleteVerificationToken removes the live verification token for the email.
func (r *PGRepository) DeleteVerificationToken(ctx context.Context, email string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE email = $1`, email); err != nil {
		return storeErr("delete verification token", err)
	}
	return nil
}

// CompleteVerification marks the token consumed and the user verified.
func (r *PGRepository) CompleteVerification(ctx context.Context, email string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE email_verification_tokens SET consumed = TRUE
			WHERE email = $1 AND consumed = FALSE`, email)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrTokenConsumed
		}
		_, err = tx.Exec(ctx, `UPDATE users SET verified = TRUE WHERE email = $1`, email)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrTokenConsumed) {
			return err
		}
		return storeErr("complete verification", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("accounts: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}

var _ Repository = (*PGRepository)(nil)
