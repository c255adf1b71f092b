// Package service holds the business rules between the HTTP handlers and the stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/repository"
)

// AuthService registers users from provider logins and manages their credentials.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult is a logged-in user plus the session token to put in their cookie.
type AuthResult struct {
	User         *model.User
	SessionToken string
}

// LoginOrRegister finds the user for a provider identity, creating it on first login, and
// issues a session token. An existing user's stored email and name are left as they are.
func (s *AuthService) LoginOrRegister(ctx context.Context, p *auth.Profile) (*AuthResult, error) {
	if p == nil || p.Provider == "" || p.ProviderID == "" {
		return nil, apperror.ValidationFailed("provider_id", "provider identity is incomplete")
	}

	user, err := s.users.GetByProvider(ctx, p.Provider, p.ProviderID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.register(ctx, p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up %s user %s: %w", p.Provider, p.ProviderID, err)
	}

	token, err := s.tokens.Generate(user.ID, user.SessionVersion)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating session for user %d: %w", user.ID, err)
	}

	s.logger.Info("user authenticated",
		slog.Int64("userID", user.ID),
		slog.String("provider", p.Provider),
	)
	return &AuthResult{User: user, SessionToken: token}, nil
}

func (s *AuthService) register(ctx context.Context, p *auth.Profile) (*model.User, error) {
	if p.Email == "" {
		return nil, apperror.ValidationFailed("email", "identity provider did not return an email address")
	}

	user := &model.User{
		Email:         p.Email,
		Name:          p.Name,
		OAuthProvider: p.Provider,
		OAuthID:       p.ProviderID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// The email is already owned by an account from another provider.
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "an account with this email already exists",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("provider", p.Provider),
	)
	return user, nil
}

// RotateAPIToken issues a fresh API token for the user. The previous token stops working
// immediately.
func (s *AuthService) RotateAPIToken(ctx context.Context, userID int64) (string, error) {
	token, err := auth.GenerateAPIToken()
	if err != nil {
		return "", err
	}
	if err := s.users.SetAPIToken(ctx, userID, token); err != nil {
		return "", fmt.Errorf("service/auth: storing api token for user %d: %w", userID, err)
	}

	s.logger.Info("api token rotated", slog.Int64("userID", userID))
	return token, nil
}

// AuthenticateAPIToken resolves an API token to its user. Unknown tokens are unauthorized.
func (s *AuthService) AuthenticateAPIToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.Unauthorized("API token is missing")
	}

	user, err := s.users.GetByAPIToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid API token")
		}
		return nil, fmt.Errorf("service/auth: looking up api token: %w", err)
	}
	return user, nil
}

// GetUser loads the user a session belongs to.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", id, err)
	}
	return user, nil
}

// Logout revokes every session token issued to the user so far. API tokens are unaffected.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	version, err := s.users.BumpSessionVersion(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/auth: revoking sessions for user %d: %w", userID, err)
	}

	s.logger.Info("sessions revoked",
		slog.Int64("userID", userID),
		slog.Int64("sessionVersion", version),
	)
	return nil
}
