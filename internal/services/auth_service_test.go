package services

import (
	"context"
	"errors"
	"testing"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubTokenIssuer struct {
	err error
}

func (s stubTokenIssuer) GenerateAccessToken(userID, username, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-" + userID + "-" + username, nil
}

func newTestAuthService(tokens TokenIssuer) (AuthService, *repositories.MemoryUserRepository) {
	repo := repositories.NewMemoryUserRepository()
	svc := NewAuthService(repo, tokens).(*authService)
	svc.bcryptCost = bcrypt.MinCost
	return svc, repo
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestAuthService(stubTokenIssuer{})

	user, err := svc.RegisterUser(ctx, models.RegistrationPayload{Username: " ana ", Password: "secreto", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Empty(t, user.PasswordHash)

	stored, err := repo.FindUserByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secreto")))

	resp, err := svc.LoginUser(ctx, models.Credentials{Username: "ana", Password: "secreto"})
	require.NoError(t, err)
	assert.Equal(t, "token-"+user.ID+"-ana", resp.Token)
	assert.Empty(t, resp.User.PasswordHash)
	assert.Equal(t, "Ana", resp.User.Name)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(stubTokenIssuer{})

	_, err := svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "x"})
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "x", Name: "Ana"})
	require.NoError(t, err)
	_, err = svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "y", Name: "Otra"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(stubTokenIssuer{})
	_, err := svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "secreto", Name: "Ana"})
	require.NoError(t, err)

	_, err = svc.LoginUser(ctx, models.Credentials{Username: "ana", Password: "mal"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.LoginUser(ctx, models.Credentials{Username: "nadie", Password: "secreto"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LoginTokenFailure(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(stubTokenIssuer{err: errors.New("boom")})
	_, err := svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "secreto", Name: "Ana"})
	require.NoError(t, err)

	_, err = svc.LoginUser(ctx, models.Credentials{Username: "ana", Password: "secreto"})
	assert.ErrorIs(t, err, ErrTokenGeneration)
}

func TestAuthService_GetUserProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(stubTokenIssuer{})
	user, err := svc.RegisterUser(ctx, models.RegistrationPayload{Username: "ana", Password: "secreto", Name: "Ana"})
	require.NoError(t, err)

	profile, err := svc.GetUserProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", profile.Username)
	assert.Empty(t, profile.PasswordHash)

	_, err = svc.GetUserProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
