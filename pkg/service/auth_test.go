package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
)

// memorySessions is a map-backed stand-in for the Redis session store.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]string)}
}

func (m *memorySessions) StoreSession(_ context.Context, token, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = userID
	return nil
}

func (m *memorySessions) SessionUserID(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.sessions[token]
	if !ok {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

func (m *memorySessions) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func newAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	store, _ := newTestStore(t)
	return service.NewAuthService(store, newMemorySessions(), time.Hour, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, "Jane", "jane@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	token, logged, err := auth.Login(ctx, "jane@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, logged.ID)

	resolved, err := auth.Resolve(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, "Jane", "jane@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, _, err = auth.Login(ctx, "jane@example.com", "wrong")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, _, err = auth.Login(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, "Jane", "jane@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = auth.Register(ctx, "Other", "jane@example.com", "another-pass")
	assert.True(t, service.IsValidation(err))
}

func TestResolve_UnknownTokenIsAnonymous(t *testing.T) {
	auth := newAuthService(t)

	user, err := auth.Resolve(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = auth.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestLogout_RevokesSession(t *testing.T) {
	auth := newAuthService(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, "Jane", "jane@example.com", "s3cret-pass")
	require.NoError(t, err)
	token, _, err := auth.Login(ctx, "jane@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, token))

	user, err := auth.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, user)
}
