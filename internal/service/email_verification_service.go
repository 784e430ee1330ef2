package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"session-auth/internal/event"
	"session-auth/internal/model"
	"session-auth/internal/util"
)

const (
	defaultCodeTTL = 5 * time.Minute
	codeDigits     = 6

	verificationSubject = "Your verification code"
)

// EmailVerificationService proves control of an address before sign-up.
// Codes are six digits, live for the configured TTL and are replaced on
// every resend.
type EmailVerificationService struct {
	store    VerificationStore
	accounts AccountStore
	mailer   Mailer
	bus      event.Bus
	ttl      time.Duration
	now      func() time.Time
}

func NewEmailVerificationService(store VerificationStore, accounts AccountStore, mailer Mailer, bus event.Bus, ttl time.Duration) *EmailVerificationService {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	return &EmailVerificationService{
		store:    store,
		accounts: accounts,
		mailer:   mailer,
		bus:      bus,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *EmailVerificationService) WithClock(now func() time.Time) *EmailVerificationService {
	s.now = now
	return s
}

// SendCode mails a fresh code. Registered addresses are refused and
// already verified ones are reported without sending anything.
func (s *EmailVerificationService) SendCode(ctx context.Context, raw string) (model.VerificationStatus, error) {
	email, err := util.NormalizeEmail(raw)
	if err != nil {
		return model.VerificationStatus{}, err
	}

	_, err = s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return model.VerificationStatus{}, model.ErrUserAlreadyExists
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return model.VerificationStatus{}, err
	}

	existing, err := s.store.Find(ctx, email)
	switch {
	case err == nil && existing.Verified:
		return model.VerificationStatus{Email: email, Verified: true}, nil
	case err != nil && !errors.Is(err, model.ErrVerificationNotFound):
		return model.VerificationStatus{}, err
	}

	code, err := generateCode()
	if err != nil {
		return model.VerificationStatus{}, err
	}
	if err := s.store.Save(ctx, model.EmailVerification{Email: email, Code: code, CreatedAt: s.now().UTC()}); err != nil {
		return model.VerificationStatus{}, err
	}

	body := fmt.Sprintf("Enter this code to verify your email address:\n\n%s\n\nIt expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.mailer.Send(ctx, email, verificationSubject, body); err != nil {
		slog.Error("verification mail failed", "to", email, "error", err)
		return model.VerificationStatus{}, model.ErrMailDelivery
	}

	publish(ctx, s.bus, event.TypeVerificationSent, 0, nil, map[string]any{"email": email})
	return model.VerificationStatus{Email: email, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// VerifyCode marks the address verified. An expired code is removed so the
// caller has to request a new one.
func (s *EmailVerificationService) VerifyCode(ctx context.Context, raw string, code string) (model.VerificationStatus, error) {
	email, err := util.NormalizeEmail(raw)
	if err != nil {
		return model.VerificationStatus{}, err
	}

	pending, err := s.store.Find(ctx, email)
	if err != nil {
		return model.VerificationStatus{}, err
	}
	if pending.Verified {
		return model.VerificationStatus{Email: email, Verified: true}, nil
	}

	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(strings.TrimSpace(code))) != 1 {
		publish(ctx, s.bus, event.TypeEmailVerified, 0, model.ErrVerificationMismatch, map[string]any{"email": email})
		return model.VerificationStatus{}, model.ErrVerificationMismatch
	}
	if s.now().After(pending.CreatedAt.Add(s.ttl)) {
		if err := s.store.Delete(ctx, email); err != nil {
			slog.Warn("failed to drop expired verification", "email", email, "error", err)
		}
		return model.VerificationStatus{}, model.ErrVerificationExpired
	}

	if err := s.store.MarkVerified(ctx, email); err != nil {
		return model.VerificationStatus{}, err
	}
	publish(ctx, s.bus, event.TypeEmailVerified, 0, nil, map[string]any{"email": email})
	return model.VerificationStatus{Email: email, Verified: true}, nil
}

func (s *EmailVerificationService) IsVerified(ctx context.Context, email string) (bool, error) {
	v, err := s.store.Find(ctx, email)
	if errors.Is(err, model.ErrVerificationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Verified, nil
}

// Consume drops the record once the address has been used to sign up.
func (s *EmailVerificationService) Consume(ctx context.Context, email string) error {
	return s.store.Delete(ctx, email)
}

func generateCode() (string, error) {
	upper := big.NewInt(900000)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()+100000), nil
}
