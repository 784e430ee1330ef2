package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"session-auth/internal/model"
)

// MemoryUserRepository keeps accounts in process. It mirrors the unique
// constraints of the users table (email, provider+provider_id) so the
// services see the same conflicts they would against PostgreSQL.
type MemoryUserRepository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]model.Account
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{accounts: map[int64]model.Account{}}
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id int64) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, upstream("find user by id", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return model.Account{}, model.ErrUserNotFound
	}
	return account, nil
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, upstream("find user by email", err)
	}

	key := strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if strings.ToLower(account.Email) == key {
			return account, nil
		}
	}
	return model.Account{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) FindByProvider(ctx context.Context, provider model.Provider, providerID string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, upstream("find user by provider", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Provider == provider && account.ProviderID != nil && *account.ProviderID == providerID {
			return account, nil
		}
	}
	return model.Account{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) FindStatusByID(ctx context.Context, id int64) (model.Status, error) {
	account, err := r.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return account.Status, nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, account *model.Account) error {
	if err := ctx.Err(); err != nil {
		return upstream("create user", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(account.Email))
	for _, existing := range r.accounts {
		if strings.ToLower(existing.Email) == email {
			return model.ErrUserAlreadyExists.WithDetails("users_email_key")
		}
		if account.ProviderID != nil && existing.ProviderID != nil &&
			existing.Provider == account.Provider && *existing.ProviderID == *account.ProviderID {
			return model.ErrUserAlreadyExists.WithDetails("users_provider_identity_key")
		}
	}

	now := time.Now().UTC()
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = now
	account.UpdatedAt = now
	account.StatusChangedAt = now
	r.accounts[account.ID] = *account
	return nil
}

func (r *MemoryUserRepository) UpdateNickname(ctx context.Context, id int64, nickname string) error {
	return r.update(ctx, "update nickname", id, func(a *model.Account) {
		a.Nickname = nickname
	})
}

func (r *MemoryUserRepository) UpdateProfileImage(ctx context.Context, id int64, url string) error {
	return r.update(ctx, "update profile image", id, func(a *model.Account) {
		a.ProfileImage = &url
	})
}

func (r *MemoryUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.update(ctx, "update password", id, func(a *model.Account) {
		a.PasswordHash = &passwordHash
	})
}

func (r *MemoryUserRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	return r.update(ctx, "update status", id, func(a *model.Account) {
		a.Status = status
		a.StatusChangedAt = time.Now().UTC()
	})
}

func (r *MemoryUserRepository) LinkProvider(ctx context.Context, id int64, provider model.Provider, providerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, upstream("link provider", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok || account.Provider != model.ProviderLocal {
		return false, nil
	}
	for _, existing := range r.accounts {
		if existing.Provider == provider && existing.ProviderID != nil && *existing.ProviderID == providerID {
			return false, model.ErrProviderAlreadyLinked.WithDetails("provider identity belongs to another account")
		}
	}

	account.Provider = provider
	account.ProviderID = &providerID
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return true, nil
}

func (r *MemoryUserRepository) update(ctx context.Context, op string, id int64, mutate func(*model.Account)) error {
	if err := ctx.Err(); err != nil {
		return upstream(op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return model.ErrUserNotFound
	}
	mutate(&account)
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return nil
}
