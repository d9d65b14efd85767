package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/auth"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
	"github.com/sakif/chore-tracker/internal/watch"
)

// MinPasswordLength matches what the mobile sign-up screen enforces.
const MinPasswordLength = 6

// AuthService is the authentication collaborator: it creates identities,
// signs them in and out, and announces identity changes on the hub.
type AuthService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	hub       *watch.Hub
	logger    *slog.Logger
}

func NewAuthService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	hub *watch.Hub,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		hub:       hub,
		logger:    logger,
	}
}

// AuthResult is returned by every successful sign-in path.
type AuthResult struct {
	User  *model.User
	Token auth.Token
}

type SignUpInput struct {
	DisplayName     string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignUp creates the identity and its empty profile (hasFamily=false) in one
// transaction, so a new user is never left without a profile document.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	name := cleanText(in.DisplayName)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if name == "" || email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, apperror.ValidationFailed("", "please fill in all fields")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirmPassword", "passwords do not match")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password should be at least %d characters", MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{Email: email, DisplayName: name, PasswordHash: hash}
	if err := s.register(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignIn answers every failure with the same message so the endpoint cannot
// be used to find out which emails have accounts.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "please fill in all fields")
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignOut revokes the caller's token and tells that session's streams the
// identity is gone.
func (s *AuthService) SignOut(ctx context.Context, claims auth.Claims) {
	s.tokens.Revoke(claims.TokenID, claims.ExpiresAt)
	s.hub.Publish(watch.Event{
		Topic: watch.IdentityTopic(claims.UserID),
		Value: watch.SignedOut{TokenID: claims.TokenID},
	})
	s.logger.InfoContext(ctx, "user signed out", slog.String("userID", claims.UserID))
}

func (s *AuthService) UpdateDisplayName(ctx context.Context, userID, name string) (*model.User, error) {
	name = cleanText(name)
	if name == "" {
		return nil, apperror.ValidationFailed("displayName", "display name cannot be empty")
	}
	if err := s.store.Users().UpdateDisplayName(ctx, userID, name); err != nil {
		return nil, fmt.Errorf("service/auth: renaming %s: %w", userID, err)
	}
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reloading %s: %w", userID, err)
	}
	s.hub.Publish(watch.Event{Topic: watch.IdentityTopic(userID), Value: user})
	return user, nil
}

// LoginOrRegisterGitHub signs in the account linked to the GitHub id, or
// creates one. An existing password account with the same email is not
// linked automatically; that would let anyone who controls a GitHub account
// with a matching address take it over.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.store.Users().GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "user authenticated via GitHub", slog.String("userID", user.ID))
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up githubID=%d: %w", gh.ID, err)
	}

	id := gh.ID
	user = &model.User{
		Email:       strings.ToLower(gh.Email),
		DisplayName: cleanText(gh.DisplayName()),
		GitHubID:    &id,
	}
	if err := s.register(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AuthService) ValidateToken(tokenStr string) (auth.Claims, error) {
	claims, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("service/auth: %w", err)
	}
	return claims, nil
}

func (s *AuthService) register(ctx context.Context, user *model.User) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Profiles().Upsert(ctx, model.Cleared(user.ID))
	})
	if err != nil {
		return fmt.Errorf("service/auth: registering %s: %w", user.Email, err)
	}
	s.hub.Publish(watch.Event{Topic: watch.IdentityTopic(user.ID), Value: user})
	s.hub.Publish(watch.Event{Topic: watch.ProfileTopic(user.ID), Value: model.Cleared(user.ID)})
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: tok}, nil
}
