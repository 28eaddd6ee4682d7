package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

// AuthService coordinates login and operator accounts.
type AuthService struct {
	deps       Dependencies
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// UserInput describes a new operator account.
type UserInput struct {
	Username  string
	Email     string
	Password  string
	Superuser bool
}

// LoginResult carries an issued access token.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps Dependencies) *AuthService {
	return &AuthService{
		deps:       deps.withDefaults(),
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL()),
		bcryptCost: cfg.BcryptCost,
	}
}

// TokenManager exposes the token manager for the auth middleware.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Login authenticates an active user by username and password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.deps.Repos.Users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, apperrors.NewUnauthorized("user is inactive")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Username, user.Superuser)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.deps.Logger.Info("user logged in", zap.String("user_id", user.ID))
	return &LoginResult{User: user, Token: token, ExpiresAt: exp}, nil
}

// CreateUser adds an operator account. Only superusers may create accounts.
func (s *AuthService) CreateUser(ctx context.Context, actor domain.Actor, input UserInput) (*domain.User, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	return s.createUser(ctx, input)
}

// EnsureUser returns the account named by input, creating it when absent. Used by seeding.
func (s *AuthService) EnsureUser(ctx context.Context, input UserInput) (*domain.User, bool, error) {
	existing, err := s.deps.Repos.Users.GetByUsername(ctx, strings.TrimSpace(input.Username))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	user, err := s.createUser(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *AuthService) createUser(ctx context.Context, input UserInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	fields := map[string]string{}
	if username == "" {
		fields["username"] = "username is required"
	}
	if email != "" && !apperrors.ValidEmail(email) {
		fields["email"] = "email must be a valid email address"
	}
	if len(input.Password) < 8 {
		fields["password"] = "password must be at least 8 characters long"
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid user", map[string]any{"fields": fields})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Superuser:    input.Superuser,
		Active:       true,
	}
	if err := s.deps.Repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewFieldError("username", "username is already taken")
		}
		return nil, err
	}
	s.deps.Logger.Info("user created", zap.String("user_id", user.ID), zap.Bool("superuser", user.Superuser))
	return user, nil
}
