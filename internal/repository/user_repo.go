package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"session-auth/internal/model"
)

const userColumns = `id, email, password_hash, nickname, profile_image, role, provider,
		        provider_id, status, status_changed_at, created_at, updated_at`

type UserRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewUserRepository(pool *pgxpool.Pool, timeout time.Duration) *UserRepository {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &UserRepository{pool: pool, timeout: timeout}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanAccount(row, "find user by id")
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanAccount(row, "find user by email")
}

func (r *UserRepository) FindByProvider(ctx context.Context, provider model.Provider, providerID string) (model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`,
		string(provider), providerID)
	return scanAccount(row, "find user by provider")
}

func (r *UserRepository) FindStatusByID(ctx context.Context, id int64) (model.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM users WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrUserNotFound
	}
	if err != nil {
		return "", upstream("find user status", err)
	}
	return model.Status(status), nil
}

func (r *UserRepository) Create(ctx context.Context, account *model.Account) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.StatusChangedAt = now

	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, nickname, profile_image, role, provider,
		                    provider_id, status, status_changed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		account.Email, account.PasswordHash, account.Nickname, account.ProfileImage,
		string(account.Role), string(account.Provider), account.ProviderID, string(account.Status),
		account.StatusChangedAt, account.CreatedAt, account.UpdatedAt).Scan(&account.ID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return model.ErrUserAlreadyExists.WithDetails(pgErr.ConstraintName)
	}
	if err != nil {
		return upstream("create user", err)
	}
	return nil
}

func (r *UserRepository) UpdateNickname(ctx context.Context, id int64, nickname string) error {
	return r.exec(ctx, "update nickname",
		`UPDATE users SET nickname = $2, updated_at = $3 WHERE id = $1`,
		id, nickname, time.Now().UTC())
}

func (r *UserRepository) UpdateProfileImage(ctx context.Context, id int64, url string) error {
	return r.exec(ctx, "update profile image",
		`UPDATE users SET profile_image = $2, updated_at = $3 WHERE id = $1`,
		id, url, time.Now().UTC())
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	now := time.Now().UTC()
	return r.exec(ctx, "update status",
		`UPDATE users SET status = $2, status_changed_at = $3, updated_at = $3 WHERE id = $1`,
		id, string(status), now)
}

// LinkProvider writes provider identity onto an account only while it is
// still LOCAL. It reports false when a concurrent link got there first.
func (r *UserRepository) LinkProvider(ctx context.Context, id int64, provider model.Provider, providerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET provider = $2, provider_id = $3, updated_at = $4
		 WHERE id = $1 AND provider = $5`,
		id, string(provider), providerID, time.Now().UTC(), string(model.ProviderLocal))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, model.ErrProviderAlreadyLinked.WithDetails("provider identity belongs to another account")
	}
	if err != nil {
		return false, upstream("link provider", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) exec(ctx context.Context, op string, sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return upstream(op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanAccount(row pgx.Row, op string) (model.Account, error) {
	var (
		a        model.Account
		role     string
		provider string
		status   string
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Nickname, &a.ProfileImage, &role, &provider,
		&a.ProviderID, &status, &a.StatusChangedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.Account{}, upstream(op, err)
	}

	a.Role = model.Role(role)
	a.Provider = model.Provider(provider)
	a.Status = model.Status(status)
	return a, nil
}

// upstream tags a store failure as transient so callers never mistake it for
// a semantic outcome.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrUpstreamUnavailable, err)
}
