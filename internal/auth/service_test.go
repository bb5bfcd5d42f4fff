package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for service tests. It mirrors the
// semantics of the Postgres implementation, including atomic Consume.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]TokenRecord
	seq    int
	now    func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*User),
		tokens: make(map[string]TokenRecord),
		now:    time.Now,
	}
}

func (m *memStore) Users() UserStore   { return m }
func (m *memStore) Tokens() TokenStore { return m }

func (m *memStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	if u.ID == "" {
		m.seq++
		u.ID = fmt.Sprintf("user-%d", m.seq)
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindByVerificationToken(_ context.Context, token string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationToken != "" && u.VerificationToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) MarkEmailVerified(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsEmailVerified = true
	u.VerificationToken = ""
	return nil
}

func (m *memStore) UpdateProfile(_ context.Context, userID string, upd UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Salutation != nil {
		u.Salutation = *upd.Salutation
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.MiddleName != nil {
		u.MiddleName = *upd.MiddleName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) AssignOrganization(_ context.Context, userID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.OrganizationID = orgID
	return nil
}

func (m *memStore) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (m *memStore) Insert(_ context.Context, recs ...TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if _, exists := m.tokens[rec.JTI]; exists {
			return ErrDuplicateJTI
		}
	}
	for _, rec := range recs {
		m.tokens[rec.JTI] = rec
	}
	return nil
}

func (m *memStore) FindActive(_ context.Context, jti, tokenType string) (TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[jti]
	if !ok || rec.TokenType != tokenType || rec.Revoked || !rec.ExpiresAt.After(m.now()) {
		return TokenRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Consume(_ context.Context, jti, tokenType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[jti]
	if !ok || rec.TokenType != tokenType || rec.Revoked || !rec.ExpiresAt.After(m.now()) {
		return "", ErrNotFound
	}
	rec.Revoked = true
	m.tokens[jti] = rec
	return rec.UserID, nil
}

func (m *memStore) Revoke(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[jti]
	if !ok {
		return nil
	}
	rec.Revoked = true
	m.tokens[jti] = rec
	return nil
}

func (m *memStore) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, rec := range m.tokens {
		if rec.UserID == userID && !rec.Revoked && rec.ExpiresAt.After(m.now()) {
			rec.Revoked = true
			m.tokens[jti] = rec
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T, store *memStore, opts ...ServiceOption) *Service {
	t.Helper()
	codec, err := NewCodec("service-test-secret")
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	opts = append([]ServiceOption{WithBcryptCost(4)}, opts...)
	svc, err := NewService(store, codec, opts...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func registerUser(t *testing.T, svc *Service, email string) (*User, TokenPair) {
	t.Helper()
	user, pair, err := svc.Register(context.Background(), RegisterParams{
		Email:     email,
		Password:  "s3cret-pass",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user, pair
}

func TestRegisterIssuesPair(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)

	user, pair := registerUser(t, svc, "ada@example.com")
	if user.ID == "" {
		t.Fatal("expected user id")
	}
	if user.IsEmailVerified {
		t.Fatal("new user must start unverified")
	}
	if user.VerificationToken == "" {
		t.Fatal("expected a verification token")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if len(store.tokens) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(store.tokens))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t, newMemStore())

	registerUser(t, svc, "ada@example.com")
	_, _, err := svc.Register(context.Background(), RegisterParams{
		Email:     "ada@example.com",
		Password:  "other-pass",
		FirstName: "Ada",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterParams{Email: "no-at-sign", Password: "x", FirstName: "A"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Password: "  ", FirstName: "A"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank password: expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, _ := registerUser(t, svc, "ada@example.com")

	if _, _, err := svc.Login(ctx, "ada@example.com", "s3cret-pass"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	if err := svc.VerifyEmail(ctx, user.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("Login after verification failed: %v", err)
	}
}

func TestLoginGateDisabled(t *testing.T) {
	svc := newTestService(t, newMemStore(), WithVerificationGate(false))

	registerUser(t, svc, "ada@example.com")
	if _, _, err := svc.Login(context.Background(), "ada@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("Login with gate disabled failed: %v", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	svc := newTestService(t, newMemStore(), WithVerificationGate(false))
	ctx := context.Background()

	registerUser(t, svc, "ada@example.com")

	// Unknown email and wrong password are indistinguishable.
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyEmailSingleUse(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	user, _ := registerUser(t, svc, "ada@example.com")
	token := user.VerificationToken

	if err := svc.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("first VerifyEmail failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("second VerifyEmail: expected ErrInvalidVerificationToken, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	_, pair := registerUser(t, svc, "ada@example.com")

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a fresh refresh token")
	}

	// The consumed token is single-use.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replayed refresh: expected ErrInvalidToken, got %v", err)
	}

	// The new token still works.
	if _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("chained Refresh failed: %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	_, pair := registerUser(t, svc, "ada@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidToken):
			losses++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("got %d winners and %d losers, want exactly one of each", wins, losses)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(t, newMemStore())

	_, pair := registerUser(t, svc, "ada@example.com")
	if _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}
}

func TestResolveUser(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	user, pair := registerUser(t, svc, "ada@example.com")

	resolved, err := svc.ResolveUser(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ResolveUser failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved user %q, want %q", resolved.ID, user.ID)
	}

	// A refresh token is not a bearer credential.
	if _, err := svc.ResolveUser(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token, got %v", err)
	}
}

func TestLogoutRevokesEverything(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	user, pair := registerUser(t, svc, "ada@example.com")

	revoked, err := svc.Logout(ctx, user.ID)
	if err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked %d records, want 2", revoked)
	}

	if _, err := svc.ResolveUser(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access after logout: expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout: expected ErrInvalidToken, got %v", err)
	}

	// Second logout is a no-op.
	revoked, err = svc.Logout(ctx, user.ID)
	if err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("second logout revoked %d records, want 0", revoked)
	}

	// Sessions issued after logout are unaffected.
	fresh, err := svc.IssuePair(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssuePair after logout failed: %v", err)
	}
	resolved, err := svc.ResolveUser(ctx, fresh.AccessToken)
	if err != nil {
		t.Fatalf("ResolveUser with post-logout pair failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved user %q, want %q", resolved.ID, user.ID)
	}
}

func TestExpiredRefreshRejected(t *testing.T) {
	store := newMemStore()
	base := time.Now()
	current := base
	store.now = func() time.Time { return current }
	svc := newTestService(t, store, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, pair := registerUser(t, svc, "ada@example.com")

	current = base.Add(8 * 24 * time.Hour)
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired refresh, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	user, pair := registerUser(t, svc, "ada@example.com")

	if err := svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, err := svc.ResolveUser(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access after deletion: expected ErrInvalidToken, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after deletion: expected ErrInvalidCredentials, got %v", err)
	}
}

type failingMailer struct{ calls int }

func (f *failingMailer) SendVerificationMail(context.Context, string, string) error {
	f.calls++
	return errors.New("smtp unreachable")
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	m := &failingMailer{}
	svc := newTestService(t, newMemStore(), WithVerificationMail(true), WithMailer(m))

	user, _ := registerUser(t, svc, "ada@example.com")
	if m.calls != 1 {
		t.Fatalf("mailer called %d times, want 1", m.calls)
	}
	if user.ID == "" {
		t.Fatal("registration must succeed despite mail failure")
	}
}
