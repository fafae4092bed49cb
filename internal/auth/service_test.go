package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

type memoryRepo struct {
	nextID   int64
	accounts map[int64]*Account
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, accounts: make(map[int64]*Account)}
}

func (m *memoryRepo) CreateAccount(_ context.Context, acct Account) (int64, error) {
	for _, existing := range m.accounts {
		if existing.UsernameFold == acct.UsernameFold || existing.Email == acct.Email {
			return 0, shared.ErrDuplicate
		}
	}
	acct.ID = m.nextID
	m.nextID++
	acct.CreatedAt = time.Now()
	m.accounts[acct.ID] = &acct
	return acct.ID, nil
}

func (m *memoryRepo) find(match func(*Account) bool) (*Account, error) {
	for _, acct := range m.accounts {
		if match(acct) {
			out := *acct
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) FindByLogin(_ context.Context, fold string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.UsernameFold == fold })
}

func (m *memoryRepo) FindByActivationToken(_ context.Context, token string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.ActivationToken != nil && *a.ActivationToken == token })
}

func (m *memoryRepo) Activate(_ context.Context, id int64) error {
	acct, ok := m.accounts[id]
	if !ok || acct.IsActivated {
		return shared.ErrNotFound
	}
	acct.IsActivated = true
	acct.ActivationToken = nil
	acct.ActivationExpiresAt = nil
	return nil
}

func (m *memoryRepo) FindByEmail(_ context.Context, email string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.Email == email })
}

func (m *memoryRepo) SetResetToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	acct, ok := m.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	acct.ResetToken = &token
	acct.ResetExpiresAt = &expiresAt
	return nil
}

func (m *memoryRepo) FindByResetToken(_ context.Context, token string) (*Account, error) {
	return m.find(func(a *Account) bool { return a.ResetToken != nil && *a.ResetToken == token })
}

func (m *memoryRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	acct, ok := m.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	acct.PasswordHash = hash
	acct.ResetToken = nil
	acct.ResetExpiresAt = nil
	return nil
}

type mailRecorder struct {
	activations []string
	resets      []string
}

func (m *mailRecorder) SendActivation(_ context.Context, _, _, token string) error {
	m.activations = append(m.activations, token)
	return nil
}

func (m *mailRecorder) SendPasswordReset(_ context.Context, _, _, token string) error {
	m.resets = append(m.resets, token)
	return nil
}

func newTestService() (*Service, *memoryRepo, *mailRecorder) {
	repo := newMemoryRepo()
	mail := &mailRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, mail, logger), repo, mail
}

const goodPassword = "Sup3r!secret"

func register(t *testing.T, svc *Service) *Account {
	t.Helper()
	acct, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice_01",
		Email:    "alice@example.com",
		Password: goodPassword,
	})
	require.NoError(t, err)
	return acct
}

func TestRegister_HappyPath(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)

	stored := repo.accounts[acct.ID]
	assert.Equal(t, "alice_01", stored.Username)
	assert.Equal(t, "alice_01", stored.UsernameFold)
	assert.False(t, stored.IsActivated)
	assert.NotEqual(t, goodPassword, stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(goodPassword)))
	require.Len(t, mail.activations, 1)
	require.NotNil(t, stored.ActivationToken)
	assert.Equal(t, *stored.ActivationToken, mail.activations[0])
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []RegisterInput{
		{Username: "ab", Email: "a@b.com", Password: goodPassword},           // too short
		{Username: "bad name", Email: "a@b.com", Password: goodPassword},     // space
		{Username: "semi;colon", Email: "a@b.com", Password: goodPassword},   // metacharacter
		{Username: "alice", Email: "not-an-email", Password: goodPassword},   // bad email
		{Username: "alice", Email: "a@b.com", Password: "short1!"},           // too short
		{Username: "alice", Email: "a@b.com", Password: "alllowercase1!"},    // no upper
		{Username: "alice", Email: "a@b.com", Password: "NoDigitsHere!"},     // no digit
		{Username: "alice", Email: "a@b.com", Password: "NoSpecials123"},     // no symbol
	}
	for _, input := range cases {
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, httpx.ErrValidation, "%+v", input)
	}
}

func TestRegister_CasefoldedUsernameCollision(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "ALICE_01",
		Email:    "other@example.com",
		Password: goodPassword,
	})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestActivate(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)

	require.NoError(t, svc.Activate(context.Background(), mail.activations[0]))
	assert.True(t, repo.accounts[acct.ID].IsActivated)
	assert.Nil(t, repo.accounts[acct.ID].ActivationToken)

	// The token is burned.
	assert.ErrorIs(t, svc.Activate(context.Background(), mail.activations[0]), httpx.ErrNotFound)
}

func TestActivate_Expired(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)
	past := time.Now().Add(-time.Hour)
	repo.accounts[acct.ID].ActivationExpiresAt = &past

	assert.ErrorIs(t, svc.Activate(context.Background(), mail.activations[0]), httpx.ErrRejected)
}

func TestAuthenticate(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)
	ctx := context.Background()

	// Before activation the password is accepted but login is refused.
	_, err := svc.Authenticate(ctx, "alice_01", goodPassword)
	assert.ErrorIs(t, err, shared.ErrAccountNotActivated)

	require.NoError(t, svc.Activate(ctx, mail.activations[0]))

	got, err := svc.Authenticate(ctx, "alice_01", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	// Lookup is case-insensitive.
	_, err = svc.Authenticate(ctx, "ALICE_01", goodPassword)
	assert.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice_01", "Wrong1!pass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", goodPassword)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.accounts[acct.ID].IsBlocked = true
	_, err = svc.Authenticate(ctx, "alice_01", goodPassword)
	assert.ErrorIs(t, err, shared.ErrAccountBlocked)
}

func TestAuthenticate_TimingPadIsRealHash(t *testing.T) {
	// The unknown-username path compares against this pad so a miss costs
	// the same bcrypt work as a wrong password. A malformed pad would fail
	// the parse instantly and make response timing reveal which usernames
	// exist.
	cost, err := bcrypt.Cost(timingPadHash)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}

func TestPasswordReset_Flow(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)
	ctx := context.Background()
	require.NoError(t, svc.Activate(ctx, mail.activations[0]))

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	require.Len(t, mail.resets, 1)
	require.NotNil(t, repo.accounts[acct.ID].ResetToken)

	const newPassword = "N3w!password"
	require.NoError(t, svc.ResetPassword(ctx, mail.resets[0], newPassword))

	_, err := svc.Authenticate(ctx, "alice_01", newPassword)
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "alice_01", goodPassword)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Token is single-use.
	assert.ErrorIs(t, svc.ResetPassword(ctx, mail.resets[0], newPassword), httpx.ErrNotFound)
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	svc, _, mail := newTestService()
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, mail.resets)
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	svc, repo, mail := newTestService()
	acct := register(t, svc)
	ctx := context.Background()
	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	past := time.Now().Add(-time.Minute)
	repo.accounts[acct.ID].ResetExpiresAt = &past

	assert.ErrorIs(t, svc.ResetPassword(ctx, mail.resets[0], "N3w!password"), httpx.ErrRejected)
}

func TestPasswordReset_WeakPasswordRefused(t *testing.T) {
	svc, _, mail := newTestService()
	register(t, svc)
	ctx := context.Background()
	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, mail.resets[0], "weak"), httpx.ErrValidation)
}
