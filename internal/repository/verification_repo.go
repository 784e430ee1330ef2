package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"session-auth/internal/model"
)

// VerificationRepository stores email verification codes in
// email_verifications, keyed by lower-cased address.
type VerificationRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewVerificationRepository(pool *pgxpool.Pool, timeout time.Duration) *VerificationRepository {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &VerificationRepository{pool: pool, timeout: timeout}
}

func (r *VerificationRepository) Find(ctx context.Context, email string) (model.EmailVerification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var v model.EmailVerification
	err := r.pool.QueryRow(ctx,
		`SELECT email, code, verified, created_at FROM email_verifications WHERE email = $1`,
		verificationKey(email)).Scan(&v.Email, &v.Code, &v.Verified, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EmailVerification{}, model.ErrVerificationNotFound
	}
	if err != nil {
		return model.EmailVerification{}, upstream("find email verification", err)
	}
	return v, nil
}

// Save inserts or replaces the pending code for an address.
func (r *VerificationRepository) Save(ctx context.Context, v model.EmailVerification) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_verifications (email, code, verified, created_at)
		 VALUES (@email, @code, @verified, @created_at)
		 ON CONFLICT (email) DO UPDATE
		 SET code = EXCLUDED.code, verified = EXCLUDED.verified, created_at = EXCLUDED.created_at`,
		pgx.NamedArgs{
			"email":      verificationKey(v.Email),
			"code":       v.Code,
			"verified":   v.Verified,
			"created_at": v.CreatedAt,
		})
	if err != nil {
		return upstream("save email verification", err)
	}
	return nil
}

func (r *VerificationRepository) MarkVerified(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE email_verifications SET verified = true WHERE email = $1`, verificationKey(email))
	if err != nil {
		return upstream("mark email verified", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrVerificationNotFound
	}
	return nil
}

// Delete is idempotent.
func (r *VerificationRepository) Delete(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM email_verifications WHERE email = $1`, verificationKey(email)); err != nil {
		return upstream("delete email verification", err)
	}
	return nil
}

func verificationKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
