package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/auth"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/watch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type authFixture struct {
	store  *fakeStore
	hub    *watch.Hub
	tokens *auth.TokenService
	svc    *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	hub := watch.NewHub()
	t.Cleanup(hub.Close)

	store := newFakeStore()
	return &authFixture{
		store:  store,
		hub:    hub,
		tokens: tokens,
		svc:    NewAuthService(store, tokens, auth.NewPasswordService(bcrypt.MinCost), hub, discardLogger()),
	}
}

func (f *authFixture) signUp(t *testing.T, name, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), SignUpInput{
		DisplayName: name, Email: email, Password: "hunter22", ConfirmPassword: "hunter22",
	})
	require.NoError(t, err)
	return res
}

func TestSignUp_CreatesUserAndEmptyProfile(t *testing.T) {
	f := newAuthFixture(t)

	res := f.signUp(t, "  Ada ", "Ada@Example.com")

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "Ada", res.User.DisplayName)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.NotEqual(t, "hunter22", res.User.PasswordHash)

	claims, err := f.svc.ValidateToken(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	p, err := f.store.Profiles().Get(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.False(t, p.HasFamily)
	assert.Nil(t, p.FamilyID)
}

func TestSignUp_NormalizesDisplayName(t *testing.T) {
	f := newAuthFixture(t)
	// e followed by a combining acute accent becomes the single code point é.
	res := f.signUp(t, "Jose\u0301", "jose@example.com")
	assert.Equal(t, "Jos\u00e9", res.User.DisplayName)
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    SignUpInput
		field string
	}{
		{"missing name", SignUpInput{Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter22"}, ""},
		{"blank name", SignUpInput{DisplayName: "   ", Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter22"}, ""},
		{"missing confirm", SignUpInput{DisplayName: "A", Email: "a@b.co", Password: "hunter22"}, ""},
		{"mismatch", SignUpInput{DisplayName: "A", Email: "a@b.co", Password: "hunter22", ConfirmPassword: "hunter23"}, "confirmPassword"},
		{"short", SignUpInput{DisplayName: "A", Email: "a@b.co", Password: "abc", ConfirmPassword: "abc"}, "password"},
		{"bad email", SignUpInput{DisplayName: "A", Email: "not-an-email", Password: "hunter22", ConfirmPassword: "hunter22"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.SignUp(context.Background(), tt.in)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
			assert.Zero(t, f.store.writeCount())
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signUp(t, "Ada", "ada@example.com")

	_, err := f.svc.SignUp(context.Background(), SignUpInput{
		DisplayName: "Imposter", Email: "ADA@example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSignUp_ProfileFailureLeavesNoUser(t *testing.T) {
	f := newAuthFixture(t)
	f.store.failOn["profiles.upsert"] = errors.New("backend unavailable")

	_, err := f.svc.SignUp(context.Background(), SignUpInput{
		DisplayName: "Ada", Email: "ada@example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	})
	require.Error(t, err)
	assert.Empty(t, f.store.snapshot().users)
}

func TestSignIn(t *testing.T) {
	f := newAuthFixture(t)
	created := f.signUp(t, "Ada", "ada@example.com")
	ctx := context.Background()

	res, err := f.svc.SignIn(ctx, " ADA@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, res.User.ID)

	_, err = f.svc.SignIn(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = f.svc.SignIn(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = f.svc.SignIn(ctx, "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSignOut_RevokesAndPublishes(t *testing.T) {
	f := newAuthFixture(t)
	res := f.signUp(t, "Ada", "ada@example.com")
	claims, err := f.svc.ValidateToken(res.Token.Value)
	require.NoError(t, err)

	sub := f.hub.Subscribe(watch.IdentityTopic(res.User.ID))
	defer sub.Close()

	f.svc.SignOut(context.Background(), claims)

	_, err = f.svc.ValidateToken(res.Token.Value)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)

	ev := <-sub.C()
	assert.Equal(t, watch.SignedOut{TokenID: claims.TokenID}, ev.Value)
}

func TestUpdateDisplayName(t *testing.T) {
	f := newAuthFixture(t)
	res := f.signUp(t, "Ada", "ada@example.com")
	sub := f.hub.Subscribe(watch.IdentityTopic(res.User.ID))
	defer sub.Close()

	u, err := f.svc.UpdateDisplayName(context.Background(), res.User.ID, " Ada Lovelace ")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.DisplayName)

	ev := <-sub.C()
	require.IsType(t, &model.User{}, ev.Value)
	assert.Equal(t, "Ada Lovelace", ev.Value.(*model.User).DisplayName)

	_, err = f.svc.UpdateDisplayName(context.Background(), res.User.ID, "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestLoginOrRegisterGitHub(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 583231, Login: "octocat", Email: "Octo@Example.com"}

	first, err := f.svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.User.DisplayName)
	assert.Equal(t, "octo@example.com", first.User.Email)

	p, err := f.store.Profiles().Get(ctx, first.User.ID)
	require.NoError(t, err)
	assert.False(t, p.HasFamily)

	again, err := f.svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
	assert.Len(t, f.store.snapshot().users, 1)

	_, err = f.svc.LoginOrRegisterGitHub(ctx, nil)
	assert.Error(t, err)
}

func TestLoginOrRegisterGitHub_EmailTakenByPasswordAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.signUp(t, "Ada", "ada@example.com")

	_, err := f.svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "ada", Email: "ada@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetUserByID(t *testing.T) {
	f := newAuthFixture(t)
	res := f.signUp(t, "Ada", "ada@example.com")

	u, err := f.svc.GetUserByID(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)

	_, err = f.svc.GetUserByID(context.Background(), "")
	assert.Error(t, err)

	_, err = f.svc.GetUserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
