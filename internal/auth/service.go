package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt limit
)

type userStore interface {
	CreateUser(ctx context.Context, email, passwordHash string, displayName *string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (User, error)
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	RevokeToken(ctx context.Context, userID uuid.UUID, tokenHash string) error
}

// Service registers users, issues token pairs and resolves identities.
type Service struct {
	store   userStore
	cfg     config.AuthConfig
	nowFunc func() time.Time
	parser  *jwt.Parser
}

// NewService creates a Service over store.
func NewService(store userStore, cfg config.AuthConfig) *Service {
	s := &Service{store: store, cfg: cfg, nowFunc: time.Now}
	s.parser = newTokenParser(func() time.Time { return s.nowFunc() })
	return s
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName *string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult contains user and token information.
type AuthResult struct {
	User   User
	Tokens TokenPair
}

// Register creates a user and signs them in.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email, err := checkCredentials(input.Email, input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash), input.DisplayName)
	switch {
	case errors.Is(err, ErrEmailAlreadyExists):
		return AuthResult{}, ErrEmailAlreadyExists
	case err != nil:
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}
	return s.startSession(ctx, user)
}

// Login checks credentials and issues a fresh token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email, err := checkCredentials(input.Email, input.Password)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return AuthResult{}, ErrInvalidCredentials
	case err != nil:
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.startSession(ctx, user)
}

// Refresh trades a refresh token for a new pair. Each refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	stored, hash, err := s.findRefresh(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, err
	}
	if !stored.Usable(s.nowFunc()) {
		return AuthResult{}, ErrInvalidRefreshToken
	}

	user, err := s.store.FindUserByID(ctx, stored.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return AuthResult{}, ErrInvalidRefreshToken
	case err != nil:
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	if err := s.store.RevokeToken(ctx, stored.UserID, hash); err != nil {
		return AuthResult{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.startSession(ctx, user)
}

// Logout revokes the refresh token. Unknown or empty tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	stored, hash, err := s.findRefresh(ctx, refreshToken)
	if errors.Is(err, ErrInvalidRefreshToken) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.RevokeToken(ctx, stored.UserID, hash)
}

// LookupByEmail resolves a registered user's id, used to address shares.
func (s *Service) LookupByEmail(ctx context.Context, email string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	return user.ID.String(), nil
}

func (s *Service) findRefresh(ctx context.Context, token string) (RefreshToken, string, error) {
	if strings.TrimSpace(token) == "" {
		return RefreshToken{}, "", ErrInvalidRefreshToken
	}
	hash := s.refreshHash(token)
	stored, err := s.store.FindRefreshToken(ctx, hash)
	switch {
	case errors.Is(err, ErrInvalidRefreshToken):
		return RefreshToken{}, "", ErrInvalidRefreshToken
	case err != nil:
		return RefreshToken{}, "", fmt.Errorf("find refresh token: %w", err)
	}
	return stored, hash, nil
}

// startSession signs an access token and persists a new refresh token.
func (s *Service) startSession(ctx context.Context, user User) (AuthResult, error) {
	now := s.nowFunc()

	access, accessExpiry, err := s.signAccessToken(user, now)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, refreshHash, err := s.newRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}

	refreshExpiry := now.Add(s.cfg.RefreshTokenTTL)
	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshHash, refreshExpiry); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	return AuthResult{
		User: user.SafeUser(),
		Tokens: TokenPair{
			AccessToken:        access,
			AccessTokenExpiry:  accessExpiry,
			RefreshToken:       refresh,
			RefreshTokenExpiry: refreshExpiry,
		},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkCredentials returns the normalized email when both fields are acceptable.
func checkCredentials(email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return "", ErrInvalidCredentials
	}
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return "", ErrInvalidCredentials
	}
	return email, nil
}
