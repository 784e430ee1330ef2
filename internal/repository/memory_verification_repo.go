package repository

import (
	"context"
	"sync"

	"session-auth/internal/model"
)

type MemoryVerificationRepository struct {
	mu      sync.Mutex
	entries map[string]model.EmailVerification
}

func NewMemoryVerificationRepository() *MemoryVerificationRepository {
	return &MemoryVerificationRepository{entries: map[string]model.EmailVerification{}}
}

func (r *MemoryVerificationRepository) Find(ctx context.Context, email string) (model.EmailVerification, error) {
	if err := ctx.Err(); err != nil {
		return model.EmailVerification{}, upstream("find email verification", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[verificationKey(email)]
	if !ok {
		return model.EmailVerification{}, model.ErrVerificationNotFound
	}
	return v, nil
}

func (r *MemoryVerificationRepository) Save(ctx context.Context, v model.EmailVerification) error {
	if err := ctx.Err(); err != nil {
		return upstream("save email verification", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v.Email = verificationKey(v.Email)
	r.entries[v.Email] = v
	return nil
}

func (r *MemoryVerificationRepository) MarkVerified(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return upstream("mark email verified", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := verificationKey(email)
	v, ok := r.entries[key]
	if !ok {
		return model.ErrVerificationNotFound
	}
	v.Verified = true
	r.entries[key] = v
	return nil
}

func (r *MemoryVerificationRepository) Delete(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return upstream("delete email verification", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, verificationKey(email))
	return nil
}
