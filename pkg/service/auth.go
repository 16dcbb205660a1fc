package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

// SessionStore maps opaque bearer tokens to user ids.
type SessionStore interface {
	StoreSession(ctx context.Context, token, userID string, ttl time.Duration) error
	SessionUserID(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
}

type AuthService struct {
	store    repository.Store
	sessions SessionStore
	ttl      time.Duration
	logger   *zap.Logger
}

func NewAuthService(store repository.Store, sessions SessionStore, ttl time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{store: store, sessions: sessions, ttl: ttl, logger: logger}
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, validationf("name and email are required")
	}
	if len(password) < 8 {
		return nil, validationf("password must be at least 8 characters")
	}
	if _, err := s.store.Users().ByEmail(ctx, email); err == nil {
		return nil, validationf("email %s is already registered", email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a session token. The API layer runs
// cart reconciliation right after a successful login.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.store.Users().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrUnauthorized
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrUnauthorized
	}

	token := uuid.NewString()
	if err := s.sessions.StoreSession(ctx, token, user.ID, s.ttl); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// Resolve maps a bearer token back to a user. Unknown or expired tokens
// resolve to anonymous (nil user, no error).
func (s *AuthService) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	userID, err := s.sessions.SessionUserID(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("session points at missing user", zap.String("user_id", userID))
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
