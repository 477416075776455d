package services

import (
	"context"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("регистрация создает клиента", func(t *testing.T) {
		result, err := env.auth.Register(ctx, RegisterInput{
			Email:     "  Marie.Dupont@Example.com ",
			Password:  "secret123",
			FirstName: "Marie",
			LastName:  "Dupont",
		})
		require.NoError(t, err)
		assert.Equal(t, "marie.dupont@example.com", result.User.Email)
		assert.Equal(t, models.RoleClient, result.User.Role)
		assert.NotEmpty(t, result.Tokens.AccessToken)
		assert.NotEmpty(t, result.Tokens.RefreshToken)
	})

	t.Run("повторная регистрация", func(t *testing.T) {
		_, err := env.auth.Register(ctx, RegisterInput{Email: "marie.dupont@example.com", Password: "secret123"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("слишком короткий пароль", func(t *testing.T) {
		_, err := env.auth.Register(ctx, RegisterInput{Email: "new@example.com", Password: "123"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "password", verr.Fields[0].Field)
	})

	t.Run("вход без учета регистра email", func(t *testing.T) {
		result, err := env.auth.Login(ctx, "MARIE.DUPONT@example.com", "secret123")
		require.NoError(t, err)
		assert.NotNil(t, result.User.LastLogin)

		user, err := env.auth.Authenticate(ctx, result.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, user.ID)
	})

	t.Run("неверный пароль", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "marie.dupont@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("неизвестный email", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "nobody@example.com", "secret123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthService_DisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)

	login, err := env.auth.Login(ctx, tech.Email, testutils.TestPassword)
	require.NoError(t, err)

	t.Run("блокировка запрещает вход и отзывает refresh", func(t *testing.T) {
		toggled, err := env.users.ToggleActive(ctx, admin, tech.ID)
		require.NoError(t, err)
		assert.False(t, toggled.IsActive)

		_, err = env.auth.Login(ctx, tech.Email, testutils.TestPassword)
		assert.ErrorIs(t, err, ErrAccountDisabled)

		_, err = env.auth.Authenticate(ctx, login.Tokens.AccessToken)
		assert.ErrorIs(t, err, ErrAccountDisabled)

		var stored models.User
		require.NoError(t, env.db.First(&stored, tech.ID).Error)
		assert.Empty(t, stored.RefreshToken)
	})

	t.Run("повторное переключение возвращает доступ", func(t *testing.T) {
		toggled, err := env.users.ToggleActive(ctx, admin, tech.ID)
		require.NoError(t, err)
		assert.True(t, toggled.IsActive)

		_, err = env.auth.Login(ctx, tech.Email, testutils.TestPassword)
		assert.NoError(t, err)

		_, err = env.auth.Refresh(ctx, login.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenInvalid, "старый refresh токен отозван")
	})

	t.Run("администратор не блокирует сам себя", func(t *testing.T) {
		_, err := env.users.ToggleActive(ctx, admin, admin.ID)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestAuthService_RefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)

	login, err := env.auth.Login(ctx, client.Email, testutils.TestPassword)
	require.NoError(t, err)

	t.Run("access токен не подходит для обновления", func(t *testing.T) {
		_, err := env.auth.Refresh(ctx, login.Tokens.AccessToken)
		assert.Error(t, err)
	})

	t.Run("обновление по refresh токену", func(t *testing.T) {
		refreshed, err := env.auth.Refresh(ctx, login.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, refreshed.Tokens.AccessToken)
		login = refreshed
	})

	t.Run("после выхода refresh недействителен", func(t *testing.T) {
		require.NoError(t, env.auth.Logout(ctx, client.ID))
		_, err := env.auth.Refresh(ctx, login.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
