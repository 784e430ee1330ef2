package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"session-auth/internal/event"
	"session-auth/internal/model"
	"session-auth/internal/repository"
	"session-auth/internal/session"
	"session-auth/internal/storage"
	"session-auth/internal/token"
	"session-auth/internal/util"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef-test"
	testAccessTTL  = 2 * time.Hour
	testRefreshTTL = 168 * time.Hour
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *fakeClock
	codec    *token.Codec
	store    session.Store
	sessions *session.Manager
	accounts AccountStore
	repo     *repository.MemoryUserRepository
	issuer   *SessionIssuer
	bus      *event.InMemoryBus
	uploader *storage.MockUploader
	provider *stubProvider
	mailer   *recordingMailer
	codes    *repository.MemoryVerificationRepository
	authOpts []func(*harness) AuthOption

	verify   *EmailVerificationService
	auth     *AuthService
	refresh  *RefreshService
	identity *IdentityService
	profile  *ProfileService
}

type harnessOption func(*harness)

// withSessionStore swaps the session backend, e.g. for a failing or gated store.
func withSessionStore(wrap func(*session.MemoryStore) session.Store) harnessOption {
	return func(h *harness) {
		memory := h.store.(*session.MemoryStore)
		h.store = wrap(memory)
	}
}

func withAccountStore(wrap func(*repository.MemoryUserRepository) AccountStore) harnessOption {
	return func(h *harness) {
		h.accounts = wrap(h.repo)
	}
}

// withSignupImages lets Join take a profile image.
func withSignupImages() harnessOption {
	return func(h *harness) {
		h.authOpts = append(h.authOpts, func(h *harness) AuthOption { return WithProfileImages(h.profile) })
	}
}

// withRequiredVerification makes Join refuse unverified addresses.
func withRequiredVerification() harnessOption {
	return func(h *harness) {
		h.authOpts = append(h.authOpts, func(h *harness) AuthOption { return WithEmailVerification(h.verify) })
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(testSecret, "session-auth-test")
	require.NoError(t, err)
	codec = codec.WithClock(clock.Now)

	memory := session.NewMemoryStore()
	memory.SetClock(clock.Now)
	repo := repository.NewMemoryUserRepository()

	h := &harness{
		clock:    clock,
		codec:    codec,
		store:    memory,
		repo:     repo,
		accounts: repo,
		bus:      event.NewBus(),
		uploader: &storage.MockUploader{},
		provider: &stubProvider{},
		mailer:   &recordingMailer{},
		codes:    repository.NewMemoryVerificationRepository(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.sessions = session.NewManager(h.store, time.Second).WithClock(clock.Now)
	h.issuer, err = NewSessionIssuer(codec, h.sessions, testAccessTTL, testRefreshTTL)
	require.NoError(t, err)

	filter := util.NewWordFilter([]string{"badword"})
	h.profile = NewProfileService(h.accounts, h.issuer, h.uploader, filter, h.bus, 1<<20)
	h.verify = NewEmailVerificationService(h.codes, h.accounts, h.mailer, h.bus, 5*time.Minute).WithClock(clock.Now)

	authOpts := []AuthOption{WithBcryptCost(bcrypt.MinCost)}
	for _, opt := range h.authOpts {
		authOpts = append(authOpts, opt(h))
	}
	h.auth = NewAuthService(h.accounts, h.issuer, h.sessions, codec, filter, h.bus, nil, authOpts...)
	h.refresh = NewRefreshService(h.accounts, h.issuer, h.sessions, codec, h.bus, nil)
	h.identity = NewIdentityService(h.accounts, h.issuer, codec, 10*time.Minute, filter, h.bus, nil, h.provider)

	return h
}

func (h *harness) join(t *testing.T, email string) model.TokenPair {
	t.Helper()

	pair, err := h.auth.Join(context.Background(), model.JoinRequest{Email: email, Password: "s3cret!pw", Nickname: "student1"})
	require.NoError(t, err)
	return pair
}

func (h *harness) bound(t *testing.T, userID int64, kind session.Kind) string {
	t.Helper()

	value, found, err := h.sessions.Lookup(context.Background(), userID, kind)
	require.NoError(t, err)
	if !found {
		return ""
	}
	return value
}

func principalOf(pair model.TokenPair) model.Principal {
	return model.Principal{
		UserID:       pair.User.ID,
		Nickname:     pair.User.Nickname,
		ProfileImage: pair.User.ProfileImage,
		Role:         pair.User.Role,
	}
}

// stubProvider answers every code with the profile stored under it.
type stubProvider struct {
	mu       sync.Mutex
	profiles map[string]model.ProviderProfile
}

func (p *stubProvider) Name() model.Provider { return model.ProviderNaver }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code string, _ string) (model.ProviderProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.profiles[code]
	if !ok {
		return model.ProviderProfile{}, model.ErrOAuthExchange.WithDetails("unknown code")
	}
	return profile, nil
}

func (p *stubProvider) add(code string, profile model.ProviderProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profiles == nil {
		p.profiles = map[string]model.ProviderProfile{}
	}
	p.profiles[code] = profile
}

func naverProfile(providerID string, email string) model.ProviderProfile {
	return model.ProviderProfile{
		Provider:    model.ProviderNaver,
		ProviderID:  providerID,
		Email:       email,
		DisplayName: "네이버유저",
	}
}

// failingStore fails every call the way an unreachable Redis would.
type failingStore struct{}

func (failingStore) Bind(context.Context, int64, session.Kind, string, time.Duration) error {
	return context.DeadlineExceeded
}

func (failingStore) Lookup(context.Context, int64, session.Kind) (string, bool, error) {
	return "", false, context.DeadlineExceeded
}

func (failingStore) Unbind(context.Context, int64, session.Kind) error {
	return context.DeadlineExceeded
}

type sentMail struct {
	to      string
	subject string
	body    string
}

// recordingMailer keeps every message; fail makes the next sends error.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) Send(_ context.Context, to string, subject string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *recordingMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}
